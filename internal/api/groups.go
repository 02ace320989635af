package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/venuecast/venuecast-core/internal/command"
	"github.com/venuecast/venuecast-core/internal/display"
)

// GroupView is one group with its member count.
type GroupView struct {
	Name        string `json:"name"`
	MemberCount int    `json:"member_count"`
}

// handleListGroups returns the display groups with member counts.
// The "all" pseudo-group is included so the UI can offer All-On /
// All-Off / Check-Status without hardcoding the target name.
func (s *Server) handleListGroups(w http.ResponseWriter, _ *http.Request) {
	groups := make([]GroupView, 0, len(display.AllGroups())+1)
	for _, g := range display.AllGroups() {
		groups = append(groups, GroupView{
			Name:        string(g),
			MemberCount: len(s.registry.ListByGroup(g)),
		})
	}
	groups = append(groups, GroupView{
		Name:        display.TargetAll,
		MemberCount: s.registry.Count(),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"groups": groups,
		"count":  len(groups),
	})
}

// handleGroupCommand dispatches one command against every member of a
// group target (inside, outside or all).
//
// The response is 202 with a snapshot of the new batch: members that
// were busy are already marked skipped, the rest are still running.
// The finished batch arrives via the WebSocket operations channel.
func (s *Server) handleGroupCommand(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "group")

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

	batch, err := s.dispatcher.DispatchGroup(target, cmd)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, batch)
}
