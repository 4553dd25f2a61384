package common

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
)

type ErrorResponse struct {
	Error   string       `json:"error"`
	Details []FieldError `json:"details,omitempty"`
}

func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, ErrorResponse{Error: message})
}

// RespondWithDomainError writes err with the status HTTPStatusFromError picks.
// Server-side failures are reported with a generic message; the cause is only logged.
func RespondWithDomainError(w http.ResponseWriter, err error) {
	status := HTTPStatusFromError(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		log.Printf("ERROR: request failed: %v", err)
		RespondWithError(w, status, "internal server error")
		return
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		RespondWithJSON(w, status, ErrorResponse{Error: ErrValidation.Error(), Details: vErr.Fields})
		return
	}
	RespondWithError(w, status, err.Error())
}

func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
