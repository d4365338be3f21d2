package jsonrpc

import (
	"encoding/json"
	"testing"
)

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"valid request", `{"jsonrpc":"2.0","method":"tools/call","id":1}`, false},
		{"valid notification", `{"jsonrpc":"2.0","method":"notifications/progress"}`, false},
		{"wrong version", `{"jsonrpc":"1.0","method":"ping","id":1}`, true},
		{"missing method", `{"jsonrpc":"2.0","id":1}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req Request
			if err := json.Unmarshal([]byte(tt.raw), &req); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if err := req.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"string id", `"abc"`, "abc"},
		{"integer id", `42`, "42"},
		{"float id", `1.5`, "1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id RequestID
			if err := json.Unmarshal([]byte(tt.raw), &id); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if id.String() != tt.want {
				t.Fatalf("String = %q, want %q", id.String(), tt.want)
			}
			out, err := json.Marshal(&id)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(out) != tt.raw {
				t.Fatalf("round trip = %s, want %s", out, tt.raw)
			}
		})
	}

	var id RequestID
	if err := json.Unmarshal([]byte(`{"nested":true}`), &id); err == nil {
		t.Fatal("object id accepted")
	}
}

func TestRequestIDEqual(t *testing.T) {
	var fromWire RequestID
	if err := json.Unmarshal([]byte(`7`), &fromWire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !fromWire.Equal(NewRequestID(7)) {
		t.Fatal("wire-decoded 7 != NewRequestID(7)")
	}
	if !NewRequestID("abc").Equal(NewRequestID("abc")) {
		t.Fatal("equal string ids differ")
	}
	if NewRequestID("7").Equal(NewRequestID(7)) {
		t.Fatal(`string "7" matched number 7`)
	}
	if NewRequestID(1).Equal(nil) {
		t.Fatal("id matched nil")
	}
}

func TestIsNotification(t *testing.T) {
	var req Request
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"ping"}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !req.IsNotification() {
		t.Fatal("request without id should be a notification")
	}
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"ping","id":"x"}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.IsNotification() {
		t.Fatal("request with id should not be a notification")
	}
}
