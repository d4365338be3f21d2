// Package httpapi is the gateway's HTTP surface: auth endpoints, the
// proxied JSON-RPC entrypoint, the admin surface, and the usual
// health/readiness/metrics plumbing.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"toolgate.org/internal/auth"
	"toolgate.org/internal/events"
	"toolgate.org/internal/obs"
	"toolgate.org/internal/proxy"
	"toolgate.org/internal/sessions"
)

// clientSessionHeader carries the gateway-minted session handle in both
// directions between client and gateway.
const clientSessionHeader = "Toolgate-Session-Id"

// ReadyProbe checks dependencies for the readiness endpoint.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Config wires the API's dependencies.
type Config struct {
	Tokens       *auth.Service
	Proxy        *proxy.Service
	Registry     sessions.Registry
	Bus          *events.Bus
	Ready        ReadyProbe
	Version      string
	MaxBodyBytes int64
}

// API is the HTTP layer.
type API struct {
	mux          *http.ServeMux
	tokens       *auth.Service
	proxy        *proxy.Service
	registry     sessions.Registry
	bus          *events.Bus
	readyProbe   ReadyProbe
	version      string
	maxBodyBytes int64
}

func New(cfg Config) *API {
	a := &API{
		mux:          http.NewServeMux(),
		tokens:       cfg.Tokens,
		proxy:        cfg.Proxy,
		registry:     cfg.Registry,
		bus:          cfg.Bus,
		readyProbe:   cfg.Ready,
		version:      cfg.Version,
		maxBodyBytes: cfg.MaxBodyBytes,
	}
	if a.maxBodyBytes <= 0 {
		a.maxBodyBytes = 1 << 20
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)

	// proxied JSON-RPC entrypoint
	a.mux.HandleFunc("/v1/mcp", a.handleMCP)

	// admin surface
	admin := RequireRole("admin")
	a.mux.Handle("/v1/admin/sessions", admin(http.HandlerFunc(a.handleSessions)))
	a.mux.Handle("/v1/admin/sessions/", admin(http.HandlerFunc(a.handleSessionByHandle)))
	a.mux.Handle("/v1/admin/revocations/identity/", admin(http.HandlerFunc(a.handleRevokeIdentity)))
	a.mux.Handle("/v1/admin/revocations/token/", admin(http.HandlerFunc(a.handleRevokeToken)))
	a.mux.Handle("/v1/admin/identities/", admin(http.HandlerFunc(a.handleIdentityScoped)))
	a.mux.Handle("/v1/admin/events", admin(http.HandlerFunc(a.handleEvents)))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "toolgate",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "toolgate",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
