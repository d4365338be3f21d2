package relay

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"toolgate.org/internal/jsonrpc"
)

// FrameDecoder reads server-sent event frames and yields each frame's
// data payload. Multi-line data fields are joined with newlines per the
// SSE wire format.
type FrameDecoder struct {
	scanner *bufio.Scanner
}

// NewFrameDecoder wraps an event-stream reader.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &FrameDecoder{scanner: sc}
}

// Next returns the next frame's data payload, or io.EOF when the
// stream ends. Frames without data (comments, bare event lines) are
// skipped.
func (d *FrameDecoder) Next() ([]byte, error) {
	var data []string
	for d.scanner.Scan() {
		line := d.scanner.Text()
		switch {
		case line == "":
			// Blank line terminates a frame.
			if len(data) > 0 {
				return []byte(strings.Join(data, "\n")), nil
			}
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// event:, id:, retry:, and comment lines carry no payload.
		}
	}
	if err := d.scanner.Err(); err != nil {
		return nil, err
	}
	if len(data) > 0 {
		return []byte(strings.Join(data, "\n")), nil
	}
	return nil, io.EOF
}

// decodeState tracks progress through the demultiplexing loop.
type decodeState int

const (
	stateExpectFrame decodeState = iota
	stateParseInner
	stateDone
)

// FindResponse consumes frames until one carries the JSON-RPC response
// whose id matches want, then stops reading. A frame's payload may be a
// response directly, or may itself be an event stream whose inner
// frames hold the response. Frames for other ids, notifications, and
// progress events are skipped.
func FindResponse(r io.Reader, want *jsonrpc.RequestID) (*jsonrpc.Response, error) {
	outer := NewFrameDecoder(r)
	state := stateExpectFrame
	var (
		payload []byte
		resp    *jsonrpc.Response
	)
	for state != stateDone {
		switch state {
		case stateExpectFrame:
			var err error
			payload, err = outer.Next()
			if err == io.EOF {
				return nil, ErrNoResponse
			}
			if err != nil {
				return nil, err
			}
			if resp = matchResponse(payload, want); resp != nil {
				state = stateDone
				break
			}
			if looksLikeEventStream(payload) {
				state = stateParseInner
			}
		case stateParseInner:
			inner := NewFrameDecoder(bytes.NewReader(payload))
			for {
				innerPayload, err := inner.Next()
				if err != nil {
					break
				}
				if resp = matchResponse(innerPayload, want); resp != nil {
					state = stateDone
					break
				}
			}
			if state != stateDone {
				state = stateExpectFrame
			}
		}
	}
	return resp, nil
}

// matchResponse parses a payload as a JSON-RPC response and returns it
// only when its id matches want.
func matchResponse(payload []byte, want *jsonrpc.RequestID) *jsonrpc.Response {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var resp jsonrpc.Response
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil
	}
	if resp.Version != jsonrpc.ProtocolVersion {
		return nil
	}
	if resp.Result == nil && resp.Error == nil {
		return nil
	}
	if !resp.ID.Equal(want) {
		return nil
	}
	return &resp
}

func looksLikeEventStream(payload []byte) bool {
	trimmed := bytes.TrimSpace(payload)
	return bytes.HasPrefix(trimmed, []byte("data:")) || bytes.HasPrefix(trimmed, []byte("event:"))
}
