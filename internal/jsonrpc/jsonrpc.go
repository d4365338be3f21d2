// Package jsonrpc holds the JSON-RPC 2.0 envelope types exchanged with
// the backend tool server.
package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the only accepted jsonrpc field value.
const ProtocolVersion = "2.0"

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

const (
	CodeParseError     ErrorCode = -32700
	CodeInvalidRequest ErrorCode = -32600
	CodeMethodNotFound ErrorCode = -32601
	CodeInvalidParams  ErrorCode = -32602
	CodeInternalError  ErrorCode = -32603
)

// Request is a JSON-RPC request (ID set) or notification (ID absent).
type Request struct {
	Version string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      *RequestID      `json:"id,omitempty"`
}

// Validate checks envelope shape without touching params.
func (r *Request) Validate() error {
	if r.Version != ProtocolVersion {
		return fmt.Errorf("jsonrpc version must be %q", ProtocolVersion)
	}
	if r.Method == "" {
		return fmt.Errorf("method is required")
	}
	return nil
}

// IsNotification reports whether the request expects no response.
func (r *Request) IsNotification() bool {
	return r.ID == nil || r.ID.IsNil()
}

// Response is a JSON-RPC response carrying exactly one of Result or Error.
type Response struct {
	Version string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      *RequestID      `json:"id,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewResponse builds a successful response for id.
func NewResponse(id *RequestID, result any) (*Response, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Response{Version: ProtocolVersion, Result: payload, ID: id}, nil
}

// NewErrorResponse builds an error response for id.
func NewErrorResponse(id *RequestID, code ErrorCode, message string) *Response {
	return &Response{
		Version: ProtocolVersion,
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	}
}
