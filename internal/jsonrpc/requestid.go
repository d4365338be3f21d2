package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// RequestID is a JSON-RPC id, which the wire allows to be either a
// string or a number. Correlation between a proxied request and the
// frame carrying its response compares ids with Equal.
type RequestID struct {
	value any
}

// NewRequestID wraps a string or integer id.
func NewRequestID(value any) *RequestID {
	switch v := value.(type) {
	case string:
		return &RequestID{value: v}
	case int:
		return &RequestID{value: int64(v)}
	case int64:
		return &RequestID{value: v}
	case float64:
		return &RequestID{value: v}
	default:
		return &RequestID{}
	}
}

// IsNil reports whether the id carries no value.
func (id *RequestID) IsNil() bool {
	return id == nil || id.value == nil
}

// String renders the id for logging and map keys.
func (id *RequestID) String() string {
	if id.IsNil() {
		return ""
	}
	if s, ok := id.value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", id.value)
}

// Equal reports whether two ids match on the wire. A numeric id equals
// another numeric id with the same value regardless of how the decoder
// typed it.
func (id *RequestID) Equal(other *RequestID) bool {
	if id.IsNil() || other.IsNil() {
		return false
	}
	if id.value == other.value {
		return true
	}
	a, aok := numeric(id.value)
	b, bok := numeric(other.value)
	return aok && bok && a == b
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id == nil || id.value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(id.value)
}

func (id *RequestID) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		if num == float64(int64(num)) {
			id.value = int64(num)
		} else {
			id.value = num
		}
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		id.value = str
		return nil
	}
	return fmt.Errorf("id must be a string or number, got %s", string(data))
}
