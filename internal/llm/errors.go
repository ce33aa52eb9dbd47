package llm

import "errors"

var (
	ErrModelUnavailable = errors.New("language model unavailable")
	ErrInferenceFailed  = errors.New("language model inference failed")
)
