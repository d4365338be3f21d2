// Package relay performs the upstream half of a proxied call: it
// serializes calls per backend session, forwards the JSON-RPC envelope,
// and demultiplexes the streamed reply down to the one response frame
// matching the request id.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"toolgate.org/internal/jsonrpc"
)

const defaultTimeout = 30 * time.Second

// Result is the outcome of one upstream call.
type Result struct {
	Response *jsonrpc.Response
	// SessionID is the backend session id observed on the response, if
	// any. The caller stores it; the relay never invents one.
	SessionID string
}

// Client forwards JSON-RPC calls to the backend tool server.
type Client struct {
	http          *http.Client
	endpoint      string
	sessionHeader string
	timeout       time.Duration

	mu    sync.Mutex
	locks map[string]chan struct{}
}

// Option configures Client.
type Option func(*Client)

// WithHTTPClient overrides the transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds the wait for a terminal response frame.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithSessionHeader overrides the upstream session header name.
func WithSessionHeader(name string) Option {
	return func(c *Client) {
		if name = strings.TrimSpace(name); name != "" {
			c.sessionHeader = name
		}
	}
}

// New builds a Client for the given upstream endpoint URL.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		http:          &http.Client{},
		endpoint:      strings.TrimRight(endpoint, "/"),
		sessionHeader: "Mcp-Session-Id",
		timeout:       defaultTimeout,
		locks:         make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call forwards req upstream. When sessionID is non-empty the call is
// serialized against other calls on the same session, so two logical
// calls never interleave their stream frames. Calls on distinct
// sessions proceed concurrently.
func (c *Client) Call(ctx context.Context, sessionID string, req *jsonrpc.Request) (*Result, error) {
	if sessionID != "" {
		release, err := c.acquire(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		defer release()
	}
	return c.do(ctx, sessionID, req)
}

// acquire takes the per-session lock, giving up if the caller's context
// is canceled first so an abandoned client cannot starve retries.
func (c *Client) acquire(ctx context.Context, sessionID string) (func(), error) {
	c.mu.Lock()
	lock, ok := c.locks[sessionID]
	if !ok {
		lock = make(chan struct{}, 1)
		c.locks[sessionID] = lock
	}
	c.mu.Unlock()

	select {
	case lock <- struct{}{}:
		return func() { <-lock }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) do(ctx context.Context, sessionID string, req *jsonrpc.Request) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("relay: marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		httpReq.Header.Set(c.sessionHeader, sessionID)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("relay: upstream call: %w", err)
	}
	defer resp.Body.Close()

	result := &Result{SessionID: resp.Header.Get(c.sessionHeader)}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrSessionNotFound
	case resp.StatusCode == http.StatusAccepted:
		// Notification accepted, nothing to read.
		return result, nil
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("relay: upstream status %d", resp.StatusCode)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch mediaType {
	case "text/event-stream":
		rpc, err := FindResponse(resp.Body, req.ID)
		if err != nil {
			// A deadline firing mid-stream surfaces as a read error.
			if ctx.Err() != nil {
				return nil, ErrTimeout
			}
			return nil, err
		}
		result.Response = rpc
		return result, nil
	default:
		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ErrTimeout
			}
			return nil, err
		}
		if len(bytes.TrimSpace(payload)) == 0 {
			return result, nil
		}
		var rpc jsonrpc.Response
		if err := json.Unmarshal(payload, &rpc); err != nil {
			return nil, fmt.Errorf("relay: decode upstream response: %w", err)
		}
		result.Response = &rpc
		return result, nil
	}
}
