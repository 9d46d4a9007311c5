//go:build linux

package kvserver

import "testing"

func TestGetOnNeverSetKeyMisses(t *testing.T) {
	s := NewStore()
	if _, ok := s.Get([]byte("foo")); ok {
		t.Fatalf("expected miss on never-set key")
	}
}

func TestSetThenGetRoundTrips(t *testing.T) {
	s := NewStore()
	s.Set([]byte("foo"), []byte("bar"))
	v, ok := s.Get([]byte("foo"))
	if !ok || string(v) != "bar" {
		t.Fatalf("got (%q, %v), want (\"bar\", true)", v, ok)
	}
}

func TestSetTwiceReplacesValue(t *testing.T) {
	s := NewStore()
	s.Set([]byte("foo"), []byte("bar"))
	s.Set([]byte("foo"), []byte("baz"))
	v, ok := s.Get([]byte("foo"))
	if !ok || string(v) != "baz" {
		t.Fatalf("got (%q, %v), want (\"baz\", true)", v, ok)
	}
}

func TestSetCopiesKeyAndValue(t *testing.T) {
	s := NewStore()
	key := []byte("foo")
	value := []byte("bar")
	s.Set(key, value)

	// Mutate the caller's slices in place, simulating a ring-provided
	// recv buffer being recycled after Set returns.
	copy(key, "xyz")
	copy(value, "xyz")

	v, ok := s.Get([]byte("foo"))
	if !ok || string(v) != "bar" {
		t.Fatalf("store aliased caller memory: got (%q, %v)", v, ok)
	}
}
