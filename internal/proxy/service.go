// Package proxy is the request pipeline behind the gateway's proxied
// endpoint: admit, authorize, attach the backend session, forward, and
// map upstream failures to the gateway's error taxonomy.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"toolgate.org/internal/audit"
	"toolgate.org/internal/auth"
	"toolgate.org/internal/events"
	"toolgate.org/internal/jsonrpc"
	"toolgate.org/internal/obs"
	"toolgate.org/internal/policy"
	"toolgate.org/internal/ratelimit"
	"toolgate.org/internal/relay"
	"toolgate.org/internal/sessions"
)

// Upstream forwards a JSON-RPC call to the backend tool server.
type Upstream interface {
	Call(ctx context.Context, sessionID string, req *jsonrpc.Request) (*relay.Result, error)
}

// protocolMethods need authentication but no tool grant: they carry no
// tool semantics of their own.
var protocolMethods = map[string]bool{
	"initialize":                true,
	"ping":                      true,
	"tools/list":                true,
	"notifications/initialized": true,
	"notifications/cancelled":   true,
}

// retryableMethods may be re-sent once after an upstream timeout.
// initialize is excluded: it creates backend state.
var retryableMethods = map[string]bool{
	"ping":       true,
	"tools/list": true,
}

// Outcome is a completed proxied call.
type Outcome struct {
	Response *jsonrpc.Response
	// SessionHandle is the handle the client must echo on subsequent
	// calls. Set on initialize, echoed back unchanged otherwise.
	SessionHandle string
}

// Service wires the pipeline stages together.
type Service struct {
	upstream Upstream
	engine   *policy.Engine
	limiter  ratelimit.Limiter
	registry sessions.Registry
	bus      *events.Bus
}

// NewService builds the pipeline. bus may be nil when no event feed is
// attached.
func NewService(upstream Upstream, engine *policy.Engine, limiter ratelimit.Limiter, registry sessions.Registry, bus *events.Bus) *Service {
	return &Service{
		upstream: upstream,
		engine:   engine,
		limiter:  limiter,
		registry: registry,
		bus:      bus,
	}
}

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Call runs one proxied request through the full pipeline. handle is
// the client's session handle, empty on initialize.
func (s *Service) Call(ctx context.Context, claims *auth.Claims, handle string, req *jsonrpc.Request) (*Outcome, error) {
	if err := req.Validate(); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	admit, err := s.limiter.Admit(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if !admit.Allowed {
		obs.ObserveRateLimited()
		s.publish(events.Event{Kind: events.KindRateLimited, IdentityID: claims.Subject})
		return nil, &RateLimitedError{RetryAfter: admit.RetryAfter}
	}

	label := req.Method
	retryable := retryableMethods[req.Method]

	switch {
	case req.Method == "tools/call":
		var params toolCallParams
		if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
			return nil, &ValidationError{Message: "tools/call requires a name param"}
		}
		label = params.Name
		target := policy.ResolveTarget(params.Name, params.Arguments)
		var action policy.Action
		if target.CRUD {
			action = target.Action
		}
		decision := s.engine.Authorize(claims.Roles, params.Name, target.Resource, action)
		if !decision.Allowed {
			obs.ObserveProxyCall(label, "deny")
			s.deny(ctx, claims.Subject, params.Name, target, decision.Reason)
			return nil, &DeniedError{
				Tool:     params.Name,
				Resource: target.Resource,
				Action:   action,
				Reason:   decision.Reason,
			}
		}
		retryable = policy.ReadOnly(params.Name, params.Arguments)
	case protocolMethods[req.Method]:
	default:
		obs.ObserveProxyCall(label, "deny")
		s.deny(ctx, claims.Subject, req.Method, policy.Target{}, policy.ReasonToolNotPermitted)
		return nil, &DeniedError{Tool: req.Method, Reason: policy.ReasonToolNotPermitted}
	}

	if req.Method == "initialize" {
		return s.initialize(ctx, claims, label, req)
	}
	return s.forward(ctx, claims, handle, label, retryable, req)
}

// initialize opens a backend session and mints the client handle that
// stands for it.
func (s *Service) initialize(ctx context.Context, claims *auth.Claims, label string, req *jsonrpc.Request) (*Outcome, error) {
	res, err := s.call(ctx, "", req)
	if err != nil {
		obs.ObserveProxyCall(label, "error")
		return nil, err
	}
	if res.SessionID == "" {
		obs.ObserveProxyCall(label, "error")
		return nil, errors.New("proxy: upstream did not establish a session")
	}

	handle := uuid.NewString()
	sess := sessions.Session{
		Handle:     handle,
		UpstreamID: res.SessionID,
		IdentityID: claims.Subject,
	}
	if err := s.registry.Put(ctx, sess); err != nil {
		return nil, err
	}
	obs.ObserveProxyCall(label, "allow")
	s.publish(events.Event{Kind: events.KindSessionOpened, IdentityID: claims.Subject,
		Detail: map[string]any{"handle": handle}})
	return &Outcome{Response: res.Response, SessionHandle: handle}, nil
}

// forward relays a call on an established session, retrying once after
// an upstream timeout when the call is known side-effect free.
func (s *Service) forward(ctx context.Context, claims *auth.Claims, handle, label string, retryable bool, req *jsonrpc.Request) (*Outcome, error) {
	if handle == "" {
		return nil, ErrSessionExpired
	}
	sess, err := s.registry.Get(ctx, handle)
	if err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			s.publish(events.Event{Kind: events.KindSessionExpired, IdentityID: claims.Subject,
				Detail: map[string]any{"handle": handle}})
			return nil, ErrSessionExpired
		}
		return nil, err
	}
	if sess.IdentityID != claims.Subject {
		// A handle is only valid for the identity that opened it.
		return nil, ErrSessionExpired
	}

	res, err := s.call(ctx, sess.UpstreamID, req)
	if errors.Is(err, relay.ErrTimeout) && retryable {
		res, err = s.call(ctx, sess.UpstreamID, req)
	}
	if err != nil {
		if errors.Is(err, relay.ErrSessionNotFound) {
			_ = s.registry.Delete(ctx, handle)
			s.publish(events.Event{Kind: events.KindSessionExpired, IdentityID: claims.Subject,
				Detail: map[string]any{"handle": handle}})
			obs.ObserveProxyCall(label, "error")
			return nil, ErrSessionExpired
		}
		obs.ObserveProxyCall(label, "error")
		return nil, err
	}

	_ = s.registry.Touch(ctx, handle)
	if res.SessionID != "" && res.SessionID != sess.UpstreamID {
		// The upstream re-keyed the session; track what it last sent.
		sess.UpstreamID = res.SessionID
		_ = s.registry.Put(ctx, sess)
	}
	obs.ObserveProxyCall(label, "allow")
	return &Outcome{Response: res.Response, SessionHandle: handle}, nil
}

func (s *Service) call(ctx context.Context, sessionID string, req *jsonrpc.Request) (*relay.Result, error) {
	start := time.Now()
	res, err := s.upstream.Call(ctx, sessionID, req)
	obs.ObserveUpstream(time.Since(start))
	return res, err
}

func (s *Service) deny(ctx context.Context, identityID, tool string, target policy.Target, reason string) {
	_ = audit.LogEvent(ctx, "authz.denied", map[string]any{
		"tool":     tool,
		"resource": target.Resource,
		"action":   string(target.Action),
		"reason":   reason,
	})
	s.publish(events.Event{Kind: events.KindAuthzDenied, IdentityID: identityID,
		Detail: map[string]any{"tool": tool, "reason": reason}})
}

func (s *Service) publish(evt events.Event) {
	if s.bus != nil {
		s.bus.Publish(evt)
	}
}
