package embedding

import "errors"

var (
	ErrModelUnavailable  = errors.New("embedding model unavailable")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
