package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/venuecast/venuecast-core/internal/command"
)

// handleListOperations returns recent batch records, newest first.
//
// Query parameters:
//   - limit: maximum batches to return (the dispatcher clamps bounds)
func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil {
			writeInvalidRequest(w, "limit must be an integer")
			return
		}
		limit = n
	}

	batches := s.dispatcher.ListBatches(limit)

	writeJSON(w, http.StatusOK, map[string]any{
		"operations": batches,
		"count":      len(batches),
	})
}

// handleGetOperation returns one batch record by ID.
func (s *Server) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	batch, err := s.dispatcher.GetBatch(id)
	if err != nil {
		if errors.Is(err, command.ErrBatchNotFound) {
			writeNotFound(w, "operation not found")
			return
		}
		writeInternalError(w, "failed to get operation")
		return
	}

	writeJSON(w, http.StatusOK, batch)
}
