package errors

import (
	"net/http"

	"github.com/livecart/lc-checkout/pkg/status"
)

// AppError carries the HTTP status code and application status code alongside
// the human readable message, so transport handlers can map any error coming
// out of a use case without type switching on domain types.
type AppError struct {
	HTTPStatusCode int
	Status         string
	Message        string
}

func (e *AppError) Error() string {
	return e.Message
}

func New(httpStatusCode int, appStatus string, message string) error {
	return &AppError{
		HTTPStatusCode: httpStatusCode,
		Status:         appStatus,
		Message:        message,
	}
}

// Destruct unwraps err into an AppError. Errors that were not constructed by
// this package are treated as internal server errors.
func Destruct(err error) *AppError {
	if ae, ok := err.(*AppError); ok {
		return ae
	}

	return &AppError{
		HTTPStatusCode: http.StatusInternalServerError,
		Status:         status.INTERNAL_SERVER_ERROR,
		Message:        err.Error(),
	}
}
