package handler

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/conquest/api/internal/auth"
	"github.com/freeeve/conquest/api/internal/model"
	"github.com/freeeve/conquest/api/internal/repository"
)

const maxDisplayName = 40

// UserHandler handles player profile endpoints.
type UserHandler struct {
	userRepo repository.UserRepository
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(userRepo repository.UserRepository) *UserHandler {
	return &UserHandler{userRepo: userRepo}
}

// publicUser hides provider identifiers from other players.
type publicUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

func (h *UserHandler) find(w http.ResponseWriter, r *http.Request, id string) *model.User {
	user, err := h.userRepo.FindByID(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("userId", id).Msg("Failed to load user")
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return nil
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return nil
	}
	return user
}

// GetMe handles GET /api/v1/users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	if user := h.find(w, r, auth.UserIDFromContext(r.Context())); user != nil {
		writeJSON(w, http.StatusOK, user)
	}
}

// UpdateMe handles PATCH /api/v1/users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	var req struct {
		DisplayName string `json:"display_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DisplayName == "" || len(req.DisplayName) > maxDisplayName {
		writeError(w, http.StatusBadRequest, "display_name must be 1-40 characters")
		return
	}

	if err := h.userRepo.UpdateDisplayName(r.Context(), userID, req.DisplayName); err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("Failed to update display name")
		writeError(w, http.StatusInternalServerError, "failed to update user")
		return
	}
	if user := h.find(w, r, userID); user != nil {
		writeJSON(w, http.StatusOK, user)
	}
}

// GetUser handles GET /api/v1/users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	if user := h.find(w, r, r.PathValue("id")); user != nil {
		writeJSON(w, http.StatusOK, publicUser{ID: user.ID, DisplayName: user.DisplayName, AvatarURL: user.AvatarURL})
	}
}
