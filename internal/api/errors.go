package api

import (
	"encoding/json"
	"net/http"
)

// Error codes returned in Error.Code.
const (
	CodeInvalidRequest = "invalid_request"
	CodeJobExists      = "job_exists"
	CodeNoJob          = "no_job"
	CodeNotFound       = "not_found"
	CodeRateLimited    = "rate_limited"
	CodeInternal       = "internal"
)

// Error is the JSON body of every non-2xx response.
type Error struct {
	Status  int               `json:"-"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details []ValidationError `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func respondError(w http.ResponseWriter, e *Error) {
	respondJSON(w, e.Status, e)
}
