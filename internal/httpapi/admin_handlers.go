package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"toolgate.org/internal/audit"
	"toolgate.org/internal/auth"
	"toolgate.org/internal/events"
	"toolgate.org/internal/obs"
	"toolgate.org/internal/sessions"
)

type grantRoleRequest struct {
	Role string `json:"role"`
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	var (
		list []sessions.Session
		err  error
	)
	if identityID := strings.TrimSpace(r.URL.Query().Get("identity_id")); identityID != "" {
		list, err = a.registry.ListByIdentity(r.Context(), identityID)
	} else {
		list, err = a.registry.List(r.Context())
		if err == nil {
			obs.SetActiveSessions(len(list))
		}
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "session listing failed")
		return
	}
	if list == nil {
		list = []sessions.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": list,
		"count":    len(list),
	})
}

func (a *API) handleSessionByHandle(w http.ResponseWriter, r *http.Request) {
	handle := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/admin/sessions/"), "/")
	if handle == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if err := a.registry.Delete(r.Context(), handle); err != nil {
		writeError(w, r, http.StatusInternalServerError, "session delete failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "admin.session.delete", map[string]any{
		"handle": handle,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRevokeIdentity(w http.ResponseWriter, r *http.Request) {
	identityID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/admin/revocations/identity/"), "/")
	if identityID == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := a.tokens.RevokeAll(r.Context(), identityID); err != nil {
		if errors.Is(err, auth.ErrInvalidInput) {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, r, http.StatusInternalServerError, "revocation failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "admin.revoke.identity", map[string]any{
		"target_identity_id": identityID,
	})
	a.publish(events.Event{Kind: events.KindTokenRevoked, IdentityID: identityID,
		Detail: map[string]any{"scope": "identity"}})
	writeJSON(w, http.StatusOK, map[string]any{"status": "revoked"})
}

func (a *API) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	jti := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/admin/revocations/token/"), "/")
	if jti == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := a.tokens.RevokeToken(r.Context(), jti); err != nil {
		if errors.Is(err, auth.ErrInvalidInput) {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, r, http.StatusInternalServerError, "revocation failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "admin.revoke.token", map[string]any{
		"jti": jti,
	})
	a.publish(events.Event{Kind: events.KindTokenRevoked,
		Detail: map[string]any{"scope": "token", "jti": jti}})
	writeJSON(w, http.StatusOK, map[string]any{"status": "revoked"})
}

func (a *API) handleIdentityScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/admin/identities/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	identityID := parts[0]

	switch parts[1] {
	case "roles":
		a.handleIdentityRoles(w, r, identityID)
	case "status":
		a.handleIdentityStatus(w, r, identityID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleIdentityRoles(w http.ResponseWriter, r *http.Request, identityID string) {
	var req grantRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var (
		err   error
		event string
	)
	switch r.Method {
	case http.MethodPost:
		err = a.tokens.GrantRole(r.Context(), identityID, req.Role)
		event = "admin.role.grant"
	case http.MethodDelete:
		err = a.tokens.RevokeRole(r.Context(), identityID, req.Role)
		event = "admin.role.revoke"
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
		return
	}
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, auth.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "identity not found")
		default:
			writeError(w, r, http.StatusInternalServerError, "role update failed")
		}
		return
	}
	_ = audit.LogEvent(r.Context(), event, map[string]any{
		"target_identity_id": identityID,
		"role":               req.Role,
	})
	identity, err := a.tokens.Identity(r.Context(), identityID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, identityPayload(identity))
}

func (a *API) handleIdentityStatus(w http.ResponseWriter, r *http.Request, identityID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req setStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.tokens.SetStatus(r.Context(), identityID, req.Status); err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, auth.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "identity not found")
		default:
			writeError(w, r, http.StatusInternalServerError, "status update failed")
		}
		return
	}
	_ = audit.LogEvent(r.Context(), "admin.identity.status", map[string]any{
		"target_identity_id": identityID,
		"status":             req.Status,
	})
	identity, err := a.tokens.Identity(r.Context(), identityID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, identityPayload(identity))
}

// handleEvents streams security events to admin subscribers over SSE.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.bus == nil {
		writeError(w, r, http.StatusServiceUnavailable, "event feed disabled")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := a.bus.Subscribe(r.Context())

	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for event := range ch {
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}
