package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/optimode/mailprobe/batch"
)

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// HandleError maps err to a status code and writes it.
func HandleError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, batch.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, batch.ErrEmptyBatch),
		errors.Is(err, batch.ErrTooManyEmails),
		errors.Is(err, batch.ErrJobNotCompleted),
		errors.Is(err, batch.ErrNoEmailColumn):
		return http.StatusBadRequest
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}
