package termhost

import (
	"bytes"
	"testing"

	"pkt.systems/termspace/schema"
)

func TestAppendCopiesChunkBeforeFanout(t *testing.T) {
	s := &ptySession{
		maxBytes: schema.DefaultScrollbackMaxBytes,
		subs:     make(map[chan Output]struct{}),
	}
	ch, cancel := s.Subscribe()
	defer cancel()

	buf := []byte("first read")
	s.append(buf)
	copy(buf, []byte("clobbered!"))

	out := <-ch
	if !bytes.Equal(out.Data, []byte("first read")) {
		t.Fatalf("subscriber saw mutated buffer: %q", out.Data)
	}
	if got := s.Scrollback(); got != "first read" {
		t.Fatalf("expected scrollback %q, got %q", "first read", got)
	}
}

func TestAppendTrimsScrollbackFront(t *testing.T) {
	s := &ptySession{
		maxBytes: 8,
		subs:     make(map[chan Output]struct{}),
	}
	s.append([]byte("0123456789"))
	if got := s.Scrollback(); got != "23456789" {
		t.Fatalf("expected trimmed scrollback %q, got %q", "23456789", got)
	}
}
