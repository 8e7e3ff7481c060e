package handler

import (
	"net/http"

	"github.com/freeeve/conquest/api/internal/auth"
	"github.com/freeeve/conquest/api/internal/service"
)

// PhaseHandler handles phase-related endpoints.
type PhaseHandler struct {
	svc *service.SessionService
}

// NewPhaseHandler creates a PhaseHandler.
func NewPhaseHandler(svc *service.SessionService) *PhaseHandler {
	return &PhaseHandler{svc: svc}
}

// ListPhases handles GET /api/v1/sessions/{id}/phases
func (h *PhaseHandler) ListPhases(w http.ResponseWriter, r *http.Request) {
	phases, err := h.svc.PhaseHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if phases == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, phases)
}

// CurrentPhase handles GET /api/v1/sessions/{id}/phases/current
func (h *PhaseHandler) CurrentPhase(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	snap, err := h.svc.CurrentSnapshot(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"phase":             snap.Phase,
		"turn_number":       snap.TurnNumber,
		"current_player_id": snap.CurrentPlayerID(),
		"version":           snap.Version,
		"winner":            snap.Winner,
	})
}
