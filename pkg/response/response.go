package response

import (
	"net/http"

	"warehouse-billing/pkg/apperror"
)

// Response represents a standard API response format
type Response struct {
	Status     string      `json:"status"`      // "success" or "error"
	StatusCode int         `json:"status_code"` // HTTP status code
	Code       string      `json:"code,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
	Retryable  bool        `json:"retryable,omitempty"`
}

// Page is the data envelope of list endpoints.
type Page struct {
	Items interface{} `json:"items"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

// Success returns a standard success response wrapping the data
func Success(statusCode int, data interface{}) Response {
	return Response{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
	}
}

// Error returns a standard error response wrapping the error message
func Error(statusCode int, err string) Response {
	return Response{
		Status:     "error",
		StatusCode: statusCode,
		Error:      err,
	}
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperror.Kind) int {
	switch kind {
	case apperror.KindValidation:
		return http.StatusBadRequest
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindConflict, apperror.KindInvalidState:
		return http.StatusConflict
	case apperror.KindLocked:
		return http.StatusLocked
	case apperror.KindPreconditionFailed:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// FromError builds the error response for err. Unclassified errors are
// reported as internal without leaking their text.
func FromError(err error) (int, Response) {
	appErr, ok := apperror.As(err)
	if !ok {
		return http.StatusInternalServerError, Response{
			Status:     "error",
			StatusCode: http.StatusInternalServerError,
			Code:       apperror.CodeInternal,
			Error:      "internal error",
		}
	}
	status := StatusFor(appErr.Kind)
	msg := appErr.Message
	if appErr.Kind == apperror.KindInternal {
		msg = "internal error"
	}
	return status, Response{
		Status:     "error",
		StatusCode: status,
		Code:       appErr.Code,
		Error:      msg,
		Retryable:  appErr.Retryable(),
	}
}
