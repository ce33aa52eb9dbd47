package document

import "errors"

var (
	ErrUnsupportedFormat = errors.New("document type not supported")
	ErrIOFailure         = errors.New("document i/o failure")
)
