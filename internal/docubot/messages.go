package docubot

import (
	"errors"
	"net/http"

	"github.com/mike-a-ellis/docubot/internal/document"
	"github.com/mike-a-ellis/docubot/internal/storage"
)

// User-facing messages. The spelling of MsgUnsupported is what existing clients match on.
const (
	MsgUnsupported = "Uploded document type not supported!"
	MsgUploadAgain = "INTERNAL SERVER ERROR. Kindly upload the document again!"
	MsgAskAgain    = "INTERNAL SERVER ERROR. Kindly ask the query again!"
	MsgNoIndex     = "No document has been indexed yet. Kindly upload a document first!"
)

// Response is the outcome of one /predict call. Exactly one of Result, Detail or
// Error is meaningful, chosen by Body.
type Response struct {
	Status int
	Result *string
	Detail string
	Error  string
}

// Body returns the JSON body for the response:
// {"result": ...}, {"status_code": ..., "detail": ...} or {"Error": ...}.
func (r Response) Body() any {
	switch {
	case r.Error != "":
		return map[string]string{"Error": r.Error}
	case r.Detail != "":
		return map[string]any{"status_code": r.Status, "detail": r.Detail}
	default:
		return map[string]*string{"result": r.Result}
	}
}

// Message returns the text a user should see for r.
func (r Response) Message() string {
	switch {
	case r.Error != "":
		return r.Error
	case r.Detail != "":
		return r.Detail
	case r.Result != nil:
		return *r.Result
	default:
		return ""
	}
}

// ErrorResponse maps a pipeline error onto the soft-fail contract.
func ErrorResponse(err error) Response {
	switch {
	case errors.Is(err, document.ErrUnsupportedFormat):
		return Response{Status: http.StatusNotAcceptable, Detail: MsgUnsupported}
	case errors.Is(err, storage.ErrWriteFailed):
		return Response{Status: http.StatusInternalServerError, Detail: MsgUploadAgain}
	case errors.Is(err, storage.ErrIndexEmpty):
		return Response{Status: http.StatusInternalServerError, Detail: MsgNoIndex}
	case errors.Is(err, storage.ErrReadFailed):
		return Response{Status: http.StatusInternalServerError, Detail: MsgAskAgain}
	default:
		return Response{Status: http.StatusInternalServerError, Error: err.Error()}
	}
}

// UserMessage is ErrorResponse(err).Message().
func UserMessage(err error) string {
	return ErrorResponse(err).Message()
}
