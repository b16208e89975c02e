package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fpang/mystic-studio/internal/imagedata"
	"github.com/fpang/mystic-studio/internal/session"
	"github.com/rs/zerolog/log"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug().Err(err).Msg("Failed to write JSON response")
	}
}

func httpError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// controllerError maps controller errors to HTTP statuses.
func controllerError(w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.Is(err, session.ErrNotFound):
		httpError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrEditInProgress):
		httpError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrUploadTooLarge), errors.As(err, &maxBytesErr):
		httpError(w, http.StatusRequestEntityTooLarge, "uploaded file is too large")
	case errors.Is(err, imagedata.ErrNotImage):
		httpError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Msg("Request failed")
		httpError(w, http.StatusInternalServerError, "internal error")
	}
}
