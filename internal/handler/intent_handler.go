package handler

import (
	"errors"
	"net/http"

	"github.com/freeeve/conquest/api/internal/auth"
	"github.com/freeeve/conquest/api/internal/logger"
	"github.com/freeeve/conquest/api/internal/service"
	"github.com/freeeve/conquest/api/pkg/conquest"
)

// IntentHandler accepts player intents.
type IntentHandler struct {
	svc *service.SessionService
}

// NewIntentHandler creates an IntentHandler.
func NewIntentHandler(svc *service.SessionService) *IntentHandler {
	return &IntentHandler{svc: svc}
}

// SubmitIntent handles POST /api/v1/sessions/{id}/intents. The reply is always
// a conquest.Response; a stale intent also carries the current snapshot so the
// client can resync without a second request.
func (h *IntentHandler) SubmitIntent(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	sessionID := r.PathValue("id")

	var in conquest.Intent
	if err := decodeJSON(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, conquest.Response{Reason: "invalid request body"})
		return
	}
	if in.Action == "" {
		writeJSON(w, http.StatusBadRequest, conquest.Response{Reason: "action is required"})
		return
	}

	snap, err := h.svc.SubmitIntent(r.Context(), sessionID, userID, in)
	if err != nil {
		status := statusFor(err)
		resp := conquest.Respond(snap, err)
		if status == http.StatusInternalServerError {
			l := logger.ForSession(r.Context(), sessionID)
			l.Error().Err(err).Str("action", string(in.Action)).Msg("Intent failed")
			resp.Reason = "internal error"
		}
		if errors.Is(err, conquest.ErrStaleVersion) {
			if cur, cerr := h.svc.CurrentSnapshot(r.Context(), sessionID, userID); cerr == nil {
				resp.Snapshot = cur
			}
		}
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, conquest.Respond(snap, nil))
}
