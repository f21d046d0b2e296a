package httpmw

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the JSON error envelope shared by middleware and API handlers
type ErrorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteJSON writes v with the given status, encoding errors are ignored since headers are already sent
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes an ErrorBody with success=false
func WriteError(w http.ResponseWriter, status int, errMsg, message string) {
	WriteJSON(w, status, ErrorBody{Success: false, Error: errMsg, Message: message})
}
