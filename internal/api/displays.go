package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/venuecast/venuecast-core/internal/command"
	"github.com/venuecast/venuecast-core/internal/display"
)

// DisplayView is one display plus its live status, the shape every
// display read returns.
type DisplayView struct {
	display.Display
	Status command.StatusEntry `json:"status"`
}

// CommandRequest is the body of POST .../commands.
type CommandRequest struct {
	Command string `json:"command"`
}

// CommandAccepted is the 202 body for a single-display command.
type CommandAccepted struct {
	OperationID string        `json:"operation_id"`
	DisplayID   string        `json:"display_id"`
	Command     string        `json:"command"`
	Status      command.Phase `json:"status"`
}

// handleListDisplays returns all displays with live status.
//
// Query parameters:
//   - group: filter by group (inside, outside)
func (s *Server) handleListDisplays(w http.ResponseWriter, r *http.Request) {
	var displays []display.Display

	if groupStr := r.URL.Query().Get("group"); groupStr != "" {
		group, ok := parseGroup(groupStr)
		if !ok {
			writeValidationFailed(w, "unknown group: "+groupStr)
			return
		}
		displays = s.registry.ListByGroup(group)
	} else {
		displays = s.registry.List()
	}

	views := make([]DisplayView, len(displays))
	for i, d := range displays {
		views[i] = s.displayView(d)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"displays": views,
		"count":    len(views),
	})
}

// handleGetDisplay returns a single display with live status.
func (s *Server) handleGetDisplay(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	disp, err := s.registry.Get(id)
	if err != nil {
		if errors.Is(err, display.ErrDisplayNotFound) {
			writeNotFound(w, "display not found")
			return
		}
		writeInternalError(w, "failed to get display")
		return
	}

	writeJSON(w, http.StatusOK, s.displayView(*disp))
}

// handleDisplayCommand dispatches one command against one display.
//
// The command is acknowledged with 202 before any device I/O happens;
// the outcome arrives via the WebSocket status channel. A display with
// an operation already in flight answers 409 rather than queueing.
func (s *Server) handleDisplayCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w, "invalid JSON body")
		return
	}

	cmd, err := command.ParseCommand(req.Command)
	if err != nil {
		writeValidationFailed(w, "command must be one of on, off, check")
		return
	}

	operationID, err := s.dispatcher.Dispatch(id, cmd)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, CommandAccepted{
		OperationID: operationID,
		DisplayID:   id,
		Command:     string(cmd),
		Status:      command.PhaseConnecting,
	})
}

// handleDisplayHistory returns recent operations for one display.
//
// Query parameters:
//   - limit: maximum entries to return (the store clamps bounds)
func (s *Server) handleDisplayHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// 404 unknown displays rather than answering an empty history.
	if _, err := s.registry.Get(id); err != nil {
		if errors.Is(err, display.ErrDisplayNotFound) {
			writeNotFound(w, "display not found")
			return
		}
		writeInternalError(w, "failed to get display")
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil {
			writeInvalidRequest(w, "limit must be an integer")
			return
		}
		limit = n
	}

	entries, err := s.history.GetHistory(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("history query failed", "display_id", id, "error", err)
		writeInternalError(w, "failed to query history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"display_id": id,
		"history":    entries,
		"count":      len(entries),
	})
}

// displayView joins a display with its status board entry.
func (s *Server) displayView(d display.Display) DisplayView {
	status, ok := s.board.Get(d.ID)
	if !ok {
		status = command.StatusEntry{
			DisplayID:  d.ID,
			Phase:      command.PhaseIdle,
			PowerState: display.PowerStateUnknown,
		}
	}
	return DisplayView{Display: d, Status: status}
}

// writeDispatchError maps dispatcher errors onto the response envelope.
func (s *Server) writeDispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, display.ErrDisplayNotFound):
		writeNotFound(w, "display not found")
	case errors.Is(err, display.ErrGroupNotFound):
		writeNotFound(w, "group not found")
	case errors.Is(err, command.ErrDisplayBusy):
		writeDisplayBusy(w, "operation already in progress")
	case errors.Is(err, command.ErrUnknownCommand):
		writeValidationFailed(w, "command must be one of on, off, check")
	case errors.Is(err, command.ErrDispatcherClosed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "shutting down")
	default:
		s.logger.Error("dispatch failed", "error", err)
		writeInternalError(w, "failed to dispatch command")
	}
}

// parseGroup validates a group query value.
func parseGroup(s string) (display.Group, bool) {
	for _, g := range display.AllGroups() {
		if string(g) == s {
			return g, true
		}
	}
	return "", false
}
