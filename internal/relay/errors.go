package relay

import "errors"

var (
	// ErrTimeout means no frame carrying the awaited response id
	// arrived before the upstream deadline.
	ErrTimeout = errors.New("relay: upstream timeout")
	// ErrSessionNotFound means the upstream no longer recognizes the
	// session id attached to the call.
	ErrSessionNotFound = errors.New("relay: upstream session not found")
	// ErrNoResponse means the upstream stream ended without a frame
	// matching the request id.
	ErrNoResponse = errors.New("relay: stream ended without matching response")
)
