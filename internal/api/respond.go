package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/syncops/eventhooks/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// respondStoreError maps validation failures to 400 and anything else to
// 500 with the given fallback message.
func respondStoreError(w http.ResponseWriter, err error, fallback string) {
	if errors.Is(err, domain.ErrInvalidInput) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, fallback)
}
