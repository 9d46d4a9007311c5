package resp

import (
	"bytes"
	"fmt"
	"testing"
)

func TestParseSimpleString(t *testing.T) {
	item, err := NewParser([]byte("+PONG\r\n")).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if item.Kind != KindString || !bytes.Equal(item.Str, []byte("PONG")) {
		t.Fatalf("got %+v", item)
	}
}

func TestParseBulkStringBinaryTransparent(t *testing.T) {
	payload := []byte("foo\r\nbar\x00baz")
	frame := fmt.Sprintf("$%d\r\n", len(payload))
	buf := append([]byte(frame), payload...)
	buf = append(buf, '\r', '\n')

	item, err := NewParser(buf).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if item.Kind != KindString || !bytes.Equal(item.Str, payload) {
		t.Fatalf("got %+v, want %q", item, payload)
	}
}

func TestParseBulkStringZeroLength(t *testing.T) {
	item, err := NewParser([]byte("$0\r\n\r\n")).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if item.Kind != KindString || len(item.Str) != 0 {
		t.Fatalf("got %+v", item)
	}
}

func TestParseInteger(t *testing.T) {
	cases := []int64{0, 1, -1, 9223372036854775807, -9223372036854775808}
	for _, want := range cases {
		buf := []byte(fmt.Sprintf(":%d\r\n", want))
		item, err := NewParser(buf).Parse()
		if err != nil {
			t.Fatalf("Parse(%d): %v", want, err)
		}
		if item.Kind != KindInteger || item.Int != want {
			t.Fatalf("Parse(%d) = %+v", want, item)
		}
	}
}

func TestParseArray(t *testing.T) {
	buf := []byte("*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n")
	item, err := NewParser(buf).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if item.Kind != KindList || len(item.List) != 3 {
		t.Fatalf("got %+v", item)
	}
	want := []string{"SET", "foo", "bar"}
	for i, w := range want {
		if !bytes.Equal(item.List[i].Str, []byte(w)) {
			t.Fatalf("element %d = %q, want %q", i, item.List[i].Str, w)
		}
	}
}

func TestParseNestedArray(t *testing.T) {
	buf := []byte("*2\r\n*1\r\n+a\r\n:7\r\n")
	item, err := NewParser(buf).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if item.Kind != KindList || len(item.List) != 2 {
		t.Fatalf("got %+v", item)
	}
	inner := item.List[0]
	if inner.Kind != KindList || len(inner.List) != 1 || !bytes.Equal(inner.List[0].Str, []byte("a")) {
		t.Fatalf("inner = %+v", inner)
	}
	if item.List[1].Kind != KindInteger || item.List[1].Int != 7 {
		t.Fatalf("second = %+v", item.List[1])
	}
}

func TestUnknownPrefixIsInvalid(t *testing.T) {
	if _, err := NewParser([]byte("-ERR oops\r\n")).Parse(); err != ErrInvalidInput {
		t.Fatalf("got err=%v, want ErrInvalidInput", err)
	}
}

func TestArrayClaimingMoreElementsThanBufferFails(t *testing.T) {
	if _, err := NewParser([]byte("*2\r\n+only\r\n")).Parse(); err != ErrInvalidInput {
		t.Fatalf("got err=%v, want ErrInvalidInput", err)
	}
}

func TestArrayClaimingHugeCountFailsWithoutAllocating(t *testing.T) {
	if _, err := NewParser([]byte("*9223372036854775807\r\n")).Parse(); err != ErrInvalidInput {
		t.Fatalf("got err=%v, want ErrInvalidInput", err)
	}
}

func TestTruncationAlwaysInvalid(t *testing.T) {
	wellFormed := [][]byte{
		[]byte("+PONG\r\n"),
		[]byte("$3\r\nfoo\r\n"),
		[]byte(":123\r\n"),
		[]byte("*2\r\n$3\r\nfoo\r\n$3\r\nbar\r\n"),
	}
	for _, frame := range wellFormed {
		for n := 1; n <= len(frame); n++ {
			truncated := frame[:len(frame)-n]
			if _, err := NewParser(truncated).Parse(); err != ErrInvalidInput {
				t.Fatalf("truncating %q by %d bytes: got err=%v, want ErrInvalidInput", frame, n, err)
			}
		}
	}
}

func TestSimpleStringArbitraryBytesWithoutCR(t *testing.T) {
	for _, s := range []string{"", "a", "hello world", "PING"} {
		buf := []byte("+" + s + "\r\n")
		item, err := NewParser(buf).Parse()
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if !bytes.Equal(item.Str, []byte(s)) {
			t.Fatalf("Parse(%q) = %q", s, item.Str)
		}
	}
}
