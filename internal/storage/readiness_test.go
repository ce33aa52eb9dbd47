package storage

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
)

func TestCollectionReady(t *testing.T) {
	tests := []struct {
		status qdrant.CollectionStatus
		want   bool
	}{
		{qdrant.CollectionStatus_Green, true},
		{qdrant.CollectionStatus_Yellow, true},
		{qdrant.CollectionStatus_Grey, true},
		{qdrant.CollectionStatus_Red, false},
		{qdrant.CollectionStatus_UnknownCollectionStatus, false},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, collectionReady(tt.status))
		})
	}
}
