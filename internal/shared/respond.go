package shared

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the JSON error envelope every handler replies with.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request. Details is only filled in development.
type ErrorDetail struct {
	Status  int            `json:"status"`
	Message string         `json:"message"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteJSON encodes v as the response body with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError replies with an [ErrorBody] carrying status and message.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorBody{Error: ErrorDetail{Status: status, Message: message}})
}

// WriteErrorDetail replies with a fully populated [ErrorDetail].
func WriteErrorDetail(w http.ResponseWriter, detail ErrorDetail) {
	WriteJSON(w, detail.Status, ErrorBody{Error: detail})
}
