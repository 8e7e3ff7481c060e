package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/conquest/api/internal/auth"
	"github.com/freeeve/conquest/api/internal/repository"
)

const stateCookie = "conquest_oauth_state"

// AuthHandler handles OAuth2 login flows and token refresh.
type AuthHandler struct {
	provider auth.Provider
	jwtMgr   *auth.JWTManager
	userRepo repository.UserRepository
	devMode  bool
}

// NewAuthHandler creates an AuthHandler. provider may be nil when no OAuth
// credentials are configured.
func NewAuthHandler(provider auth.Provider, jwtMgr *auth.JWTManager, userRepo repository.UserRepository, devMode bool) *AuthHandler {
	return &AuthHandler{provider: provider, jwtMgr: jwtMgr, userRepo: userRepo, devMode: devMode}
}

// Login redirects to the provider's consent screen with a state cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		writeError(w, http.StatusNotFound, "oauth not configured")
		return
	}
	state := randomState()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.provider.LoginURL(state), http.StatusTemporaryRedirect)
}

// Callback handles the OAuth2 redirect back from the provider.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		writeError(w, http.StatusNotFound, "oauth not configured")
		return
	}
	cookie, err := r.Cookie(stateCookie)
	state := r.URL.Query().Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		writeError(w, http.StatusBadRequest, "state mismatch")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing code parameter")
		return
	}

	profile, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		log.Warn().Err(err).Str("provider", h.provider.Name()).Msg("OAuth exchange failed")
		writeError(w, http.StatusUnauthorized, "oauth exchange failed")
		return
	}

	user, err := h.userRepo.Upsert(r.Context(), h.provider.Name(), profile.ID, profile.Name, profile.Picture)
	if err != nil {
		log.Error().Err(err).Str("provider", h.provider.Name()).Msg("Failed to upsert user")
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	h.issue(w, user.ID)
}

// RefreshToken exchanges a refresh token for a new token pair.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims, err := h.jwtMgr.ValidateRefresh(req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	h.issue(w, claims.UserID)
}

// DevLogin upserts a named local user and returns a token pair. Only served in
// dev mode; bots and local testing sign in through it.
func (h *AuthHandler) DevLogin(w http.ResponseWriter, r *http.Request) {
	if !h.devMode {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing name parameter")
		return
	}

	user, err := h.userRepo.Upsert(r.Context(), "dev", fmt.Sprintf("dev-%s", name), name, "")
	if err != nil {
		log.Error().Err(err).Str("name", name).Msg("Failed to upsert dev user")
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	h.issue(w, user.ID)
}

func (h *AuthHandler) issue(w http.ResponseWriter, userID string) {
	tokens, err := h.jwtMgr.GenerateTokenPair(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate tokens")
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func randomState() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
