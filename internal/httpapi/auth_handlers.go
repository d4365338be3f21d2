package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"toolgate.org/internal/audit"
	"toolgate.org/internal/auth"
	"toolgate.org/internal/events"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type identityResponse struct {
	ID     string   `json:"id"`
	Email  string   `json:"email"`
	Status string   `json:"status"`
	Roles  []string `json:"roles"`
}

type loginResponse struct {
	auth.TokenPair
	Identity identityResponse `json:"identity"`
}

func identityPayload(identity *auth.Identity) identityResponse {
	return identityResponse{
		ID:     identity.ID,
		Email:  identity.Email,
		Status: identity.Status,
		Roles:  auth.NormalizeRoles(identity.Roles),
	}
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	identity, err := a.tokens.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, auth.ErrAlreadyExists):
			writeError(w, r, http.StatusConflict, "email already registered")
		default:
			writeError(w, r, http.StatusInternalServerError, "registration failed")
		}
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"identity_id": identity.ID,
		"email":       identity.Email,
	})
	writeJSON(w, http.StatusCreated, identityPayload(identity))
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pair, identity, err := a.tokens.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			a.publish(events.Event{Kind: events.KindAuthFailed,
				Detail: map[string]any{"email": strings.TrimSpace(strings.ToLower(req.Email))}})
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "login failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"identity_id": identity.ID,
	})
	writeJSON(w, http.StatusOK, loginResponse{
		TokenPair: pair,
		Identity:  identityPayload(identity),
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pair, identity, err := a.tokens.Rotate(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			// Covers the replay of an already-rotated token too; the
			// loser of a rotation race lands here.
			a.publish(events.Event{Kind: events.KindReplayDetected})
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "refresh failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.refresh", map[string]any{
		"identity_id": identity.ID,
	})
	a.publish(events.Event{Kind: events.KindTokenRotated, IdentityID: identity.ID})
	writeJSON(w, http.StatusOK, loginResponse{
		TokenPair: pair,
		Identity:  identityPayload(identity),
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	identityID, ok := auth.IdentityIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	identity, err := a.tokens.Identity(r.Context(), identityID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "identity not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, identityPayload(identity))
}

func (a *API) publish(evt events.Event) {
	if a.bus != nil {
		a.bus.Publish(evt)
	}
}
