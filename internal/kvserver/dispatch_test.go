//go:build linux

package kvserver

import "testing"

func newTestServer() *Server {
	return &Server{store: NewStore()}
}

func TestProcessArrayPing(t *testing.T) {
	s := newTestServer()
	reply, ok := s.process(nil, []byte("*1\r\n$4\r\nPING\r\n"))
	if !ok || string(reply) != "+PONG\r\n" {
		t.Fatalf("got (%q, %v), want (\"+PONG\\r\\n\", true)", reply, ok)
	}
}

func TestProcessInlinePing(t *testing.T) {
	s := newTestServer()
	reply, ok := s.process(nil, []byte("+PING\r\n"))
	if !ok || string(reply) != "+PONG\r\n" {
		t.Fatalf("got (%q, %v), want (\"+PONG\\r\\n\", true)", reply, ok)
	}
}

func TestProcessSetThenGet(t *testing.T) {
	s := newTestServer()

	reply, ok := s.process(nil, []byte("*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n"))
	if !ok || string(reply) != "+OK\r\n" {
		t.Fatalf("SET got (%q, %v), want (\"+OK\\r\\n\", true)", reply, ok)
	}

	reply, ok = s.process(nil, []byte("*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n"))
	if !ok || string(reply) != "$3\r\nbar\r\n" {
		t.Fatalf("GET got (%q, %v), want (\"$3\\r\\nbar\\r\\n\", true)", reply, ok)
	}
}

func TestProcessGetMissingKeyRepliesNil(t *testing.T) {
	s := newTestServer()
	reply, ok := s.process(nil, []byte("*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n"))
	if !ok || string(reply) != "$-1\r\n" {
		t.Fatalf("got (%q, %v), want (\"$-1\\r\\n\", true)", reply, ok)
	}
}

func TestProcessClientStub(t *testing.T) {
	s := newTestServer()
	reply, ok := s.process(nil, []byte("*2\r\n$6\r\nCLIENT\r\n$7\r\nSETNAME\r\n"))
	if !ok || string(reply) != "+OK\r\n" {
		t.Fatalf("got (%q, %v), want (\"+OK\\r\\n\", true)", reply, ok)
	}
}

func TestProcessUnknownCommandRepliesOK(t *testing.T) {
	s := newTestServer()
	reply, ok := s.process(nil, []byte("*1\r\n$8\r\nWHATEVER\r\n"))
	if !ok || string(reply) != "+OK\r\n" {
		t.Fatalf("got (%q, %v), want (\"+OK\\r\\n\", true)", reply, ok)
	}
}

func TestProcessCaseInsensitiveCommand(t *testing.T) {
	s := newTestServer()
	reply, ok := s.process(nil, []byte("*1\r\n$4\r\nping\r\n"))
	if !ok || string(reply) != "+PONG\r\n" {
		t.Fatalf("got (%q, %v), want (\"+PONG\\r\\n\", true)", reply, ok)
	}
}

func TestProcessMalformedInputFails(t *testing.T) {
	s := newTestServer()
	if _, ok := s.process(nil, []byte("*2\r\n+only\r\n")); ok {
		t.Fatalf("expected malformed input to fail parsing")
	}
}

func TestProcessIntegerHasNoReply(t *testing.T) {
	s := newTestServer()
	reply, ok := s.process(nil, []byte(":7\r\n"))
	if !ok || reply != nil {
		t.Fatalf("got (%q, %v), want (nil, true)", reply, ok)
	}
}

func TestSetTwiceDoesNotLeakFirstValue(t *testing.T) {
	s := newTestServer()
	s.process(nil, []byte("*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n"))
	s.process(nil, []byte("*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbaz\r\n"))

	reply, ok := s.process(nil, []byte("*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n"))
	if !ok || string(reply) != "$3\r\nbaz\r\n" {
		t.Fatalf("got (%q, %v), want (\"$3\\r\\nbaz\\r\\n\", true)", reply, ok)
	}
}
