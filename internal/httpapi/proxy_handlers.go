package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"toolgate.org/internal/auth"
	"toolgate.org/internal/jsonrpc"
	"toolgate.org/internal/proxy"
	"toolgate.org/internal/relay"
	"toolgate.org/internal/sessions"
)

func (a *API) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.handleMCPCall(w, r)
	case http.MethodGet:
		a.handleMCPKeepalive(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleMCPCall(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req jsonrpc.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			jsonrpc.NewErrorResponse(nil, jsonrpc.CodeParseError, "invalid JSON"))
		return
	}

	handle := strings.TrimSpace(r.Header.Get(clientSessionHeader))
	out, err := a.proxy.Call(r.Context(), claims, handle, &req)
	if err != nil {
		a.writeMCPError(w, r, req.ID, err)
		return
	}

	if out.SessionHandle != "" {
		w.Header().Set(clientSessionHeader, out.SessionHandle)
	}
	if out.Response == nil {
		// Notification: accepted, nothing to return.
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if wantsEventStream(r) {
		writeSSEResponse(w, out.Response)
		return
	}
	writeJSON(w, http.StatusOK, out.Response)
}

func (a *API) writeMCPError(w http.ResponseWriter, r *http.Request, id *jsonrpc.RequestID, err error) {
	var (
		verr   *proxy.ValidationError
		denied *proxy.DeniedError
		rle    *proxy.RateLimitedError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest,
			jsonrpc.NewErrorResponse(id, jsonrpc.CodeInvalidRequest, verr.Message))
	case errors.As(err, &rle):
		w.Header().Set("Retry-After", retryAfterSeconds(rle.RetryAfter))
		writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
	case errors.As(err, &denied):
		writeError(w, r, http.StatusForbidden, denied.Reason)
	case errors.Is(err, proxy.ErrSessionExpired):
		writeError(w, r, http.StatusNotFound, "session expired, initialize again")
	case errors.Is(err, relay.ErrTimeout):
		writeError(w, r, http.StatusGatewayTimeout, "upstream timeout")
	default:
		writeError(w, r, http.StatusBadGateway, "upstream error")
	}
}

// handleMCPKeepalive holds an event stream open on an established
// session, extending its inactivity window while the client listens.
func (a *API) handleMCPKeepalive(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	handle := strings.TrimSpace(r.Header.Get(clientSessionHeader))
	if handle == "" {
		writeError(w, r, http.StatusBadRequest, "session header is required")
		return
	}
	sess, err := a.registry.Get(r.Context(), handle)
	if err != nil || sess.IdentityID != claims.Subject {
		writeError(w, r, http.StatusNotFound, "session expired, initialize again")
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
	w.Header().Set(clientSessionHeader, handle)

	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := a.registry.Touch(r.Context(), handle); errors.Is(err, sessions.ErrNotFound) {
				return
			}
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func writeSSEResponse(w http.ResponseWriter, resp *jsonrpc.Response) {
	payload, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "encoding failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte("event: message\ndata: "))
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n\n"))
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
