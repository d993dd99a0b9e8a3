package api

import (
	"encoding/json"
	"net/http"
)

// Envelope is the response shape shared by every endpoint
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Success wraps a payload in a successful envelope
func Success(data interface{}) Envelope {
	return Envelope{Success: true, Data: data}
}

// Failure wraps an error message in a failed envelope
func Failure(message string) Envelope {
	return Envelope{Success: false, Error: message}
}

func writeEnvelope(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}
