package relay

import (
	"errors"
	"io"
	"strings"
	"testing"

	"toolgate.org/internal/jsonrpc"
)

func TestFrameDecoderNext(t *testing.T) {
	stream := "event: message\ndata: one\n\n: comment\n\ndata: two\ndata: lines\n\n"
	d := NewFrameDecoder(strings.NewReader(stream))

	first, err := d.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(first) != "one" {
		t.Fatalf("first frame = %q", first)
	}

	second, err := d.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(second) != "two\nlines" {
		t.Fatalf("second frame = %q", second)
	}

	if _, err := d.Next(); err != io.EOF {
		t.Fatalf("err = %v, want io.EOF", err)
	}
}

func TestFindResponseDirectFrame(t *testing.T) {
	stream := "event: message\n" +
		`data: {"jsonrpc":"2.0","id":7,"result":{"ok":true}}` + "\n\n"
	resp, err := FindResponse(strings.NewReader(stream), jsonrpc.NewRequestID(7))
	if err != nil {
		t.Fatalf("FindResponse: %v", err)
	}
	if resp.ID.String() != "7" {
		t.Fatalf("id = %s", resp.ID)
	}
}

func TestFindResponseSkipsUnrelatedFrames(t *testing.T) {
	stream := `data: {"jsonrpc":"2.0","method":"notifications/progress","params":{"p":1}}` + "\n\n" +
		`data: {"jsonrpc":"2.0","id":99,"result":{}}` + "\n\n" +
		"data: not even json\n\n" +
		`data: {"jsonrpc":"2.0","id":7,"result":{"ok":true}}` + "\n\n"
	resp, err := FindResponse(strings.NewReader(stream), jsonrpc.NewRequestID(7))
	if err != nil {
		t.Fatalf("FindResponse: %v", err)
	}
	if resp.ID.String() != "7" {
		t.Fatalf("id = %s, want 7", resp.ID)
	}
}

func TestFindResponseNestedStream(t *testing.T) {
	// The outer frame's payload is itself an event stream whose inner
	// frame carries the response.
	inner := "event: message\n" +
		`data: {"jsonrpc":"2.0","id":"req-1","result":{"rows":3}}` + "\n\n"
	var outer strings.Builder
	outer.WriteString("event: message\n")
	for _, line := range strings.Split(strings.TrimRight(inner, "\n"), "\n") {
		outer.WriteString("data: " + line + "\n")
	}
	outer.WriteString("\n")

	resp, err := FindResponse(strings.NewReader(outer.String()), jsonrpc.NewRequestID("req-1"))
	if err != nil {
		t.Fatalf("FindResponse: %v", err)
	}
	if resp.ID.String() != "req-1" {
		t.Fatalf("id = %s", resp.ID)
	}
}

func TestFindResponseStopsAtMatch(t *testing.T) {
	// The reader would block if the decoder kept reading past the
	// matching frame; a pipe with nothing further proves it stops.
	pr, pw := io.Pipe()
	go func() {
		pw.Write([]byte(`data: {"jsonrpc":"2.0","id":1,"result":{}}` + "\n\n"))
		// Nothing more is written and the pipe stays open.
	}()
	done := make(chan error, 1)
	go func() {
		_, err := FindResponse(pr, jsonrpc.NewRequestID(1))
		done <- err
	}()
	if err := <-done; err != nil {
		t.Fatalf("FindResponse: %v", err)
	}
	pw.Close()
}

func TestFindResponseStreamEnds(t *testing.T) {
	stream := `data: {"jsonrpc":"2.0","id":99,"result":{}}` + "\n\n"
	_, err := FindResponse(strings.NewReader(stream), jsonrpc.NewRequestID(7))
	if !errors.Is(err, ErrNoResponse) {
		t.Fatalf("err = %v, want ErrNoResponse", err)
	}
}
