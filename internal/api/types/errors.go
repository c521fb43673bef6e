package types

import (
	"errors"
	"net/http"

	appErr "github.com/appforge/engine/pkg/errors"
)

func FromAppError(err error) *APIError {
	if err == nil {
		return nil
	}
	var ae *appErr.AppError
	if errors.As(err, &ae) {
		out := &APIError{Code: string(ae.Code), Message: ae.Message}
		if stage := appErr.Stage(err); stage != "" {
			out.Details = "stage: " + stage
		}
		return out
	}
	return &APIError{Code: string(appErr.CodeUnknown), Message: err.Error()}
}

// StatusFor maps an error's code to an HTTP status.
func StatusFor(err error) int {
	switch {
	case appErr.IsCode(err, appErr.CodeNotFound):
		return http.StatusNotFound
	case appErr.IsCode(err, appErr.CodeInvalid):
		return http.StatusBadRequest
	case appErr.IsCode(err, appErr.CodeConflict), appErr.IsCode(err, appErr.CodeAlreadyExists):
		return http.StatusConflict
	case appErr.IsCode(err, appErr.CodeUnauthorized):
		return http.StatusUnauthorized
	case appErr.IsCode(err, appErr.CodeUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
