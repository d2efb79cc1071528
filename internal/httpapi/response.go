// Package httpapi implements the server-boundary response contract:
// the fixed error-code table, the success/error JSON envelope, the
// exception-to-response translator and the status API handlers.
package httpapi

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the error half of the wire envelope.
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type"`
	Details any    `json:"details,omitempty"`
}

// Response is the JSON envelope every endpoint answers with.
type Response struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// NewErrorResponse builds the error envelope for a key. customMessage,
// when non-empty, overrides the default message only; code and status
// always come from the table. details is attached only when non-nil.
func NewErrorResponse(key ErrorKey, customMessage string, details any) Response {
	resolved, entry := Lookup(key)

	message := entry.Message
	if customMessage != "" {
		message = customMessage
	}

	body := &ErrorBody{
		Code:    entry.Code,
		Message: message,
		Type:    string(resolved),
	}
	if details != nil {
		body.Details = details
	}

	return Response{Success: false, Error: body}
}

// NewSuccessResponse builds the success envelope.
func NewSuccessResponse(data any, message string) Response {
	return Response{Success: true, Message: message, Data: data}
}

// WriteError writes an error envelope with the key's table status.
func WriteError(w http.ResponseWriter, key ErrorKey, customMessage string, details any) {
	writeJSON(w, StatusFor(key), NewErrorResponse(key, customMessage, details))
}

// WriteSuccess writes a success envelope with HTTP 200.
func WriteSuccess(w http.ResponseWriter, data any, message string) {
	writeJSON(w, http.StatusOK, NewSuccessResponse(data, message))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
