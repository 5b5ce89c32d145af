// Package httputil provides HTTP handler utilities for consistent error handling,
// JSON encoding/decoding, and request parsing.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/cacchoeira/FinanceProject/pkg/apperrors"
)

// ErrorResponse is the body of every error answer
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	_ = WriteJSON(w, status, ErrorResponse{Error: message})
}

// WriteAPIError maps err onto the error taxonomy and writes it.
// Only the classified message is sent; wrapped causes stay server-side.
func WriteAPIError(w http.ResponseWriter, err error) {
	appErr := apperrors.As(err)
	if appErr == nil {
		appErr = apperrors.Internal("internal server error", nil)
	}
	WriteErrorMessage(w, appErr.StatusCode(), appErr.Message)
}

// WriteInternalError writes a generic 500 without exposing the cause
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
}
