package common

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorBody is the error payload returned by the API. The human readable
// message lives under "error" so storefront clients can show it directly.
type ErrorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// JSON writes the provided value to the response writer as JSON.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError renders an error response using the canonical error shape.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, ErrorBody{Error: message, Code: code, Details: details})
}

// WriteError maps err onto an HTTP response. AppErrors keep their status and
// code; anything else is reported as fallbackStatus with the error text.
func WriteError(w http.ResponseWriter, err error, fallbackStatus int) {
	if err == nil {
		JSONError(w, http.StatusInternalServerError, CodeInternal, "unknown error", nil)
		return
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = fallbackStatus
		}
		code := appErr.Code
		if code == "" {
			code = CodeInternal
		}
		JSONError(w, status, code, appErr.Message, appErr.Details)
		return
	}
	if fallbackStatus == 0 {
		fallbackStatus = http.StatusInternalServerError
	}
	JSONError(w, fallbackStatus, CodeInternal, err.Error(), nil)
}
