package storage

import (
	"errors"
	"fmt"
)

var (
	ErrConnectFailed     = errors.New("vector index connect failed")
	ErrWriteFailed       = errors.New("vector index write failed")
	ErrReadFailed        = errors.New("vector index read failed")
	ErrIndexNotReady     = errors.New("vector index not ready")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrIndexEmpty means there is nothing to retrieve from yet. It is a read failure.
	ErrIndexEmpty = fmt.Errorf("%w: index is absent or empty", ErrReadFailed)
)
