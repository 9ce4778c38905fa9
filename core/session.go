package core

import (
	"sync"
	"time"

	"pkt.systems/termspace/internal/termmode"
	"pkt.systems/termspace/schema"
)

// session is the runtime state for one attached terminal. The backing
// process lives behind the transport; losing the transport moves the session
// to Lost without killing the backing, which is what makes recovery possible.
type session struct {
	mu           sync.Mutex
	id           schema.SessionID
	key          schema.TerminalKey
	pane         schema.PaneID
	transport    TerminalTransport
	status       schema.SessionStatus
	cols         int
	rows         int
	pendingCols  int
	pendingRows  int
	wasRecovered bool
	startedAt    time.Time
	lastActive   time.Time
	scrollback   []byte
	maxBytes     int
	viewportY    int
	tracker      *termmode.Tracker
	cancelPump   func()
}

func newSession(key schema.TerminalKey, pane schema.PaneID, transport TerminalTransport, maxBytes int) *session {
	if maxBytes <= 0 {
		maxBytes = schema.DefaultScrollbackMaxBytes
	}
	return &session{
		key:       key,
		pane:      pane,
		transport: transport,
		status:    schema.SessionUninitialized,
		maxBytes:  maxBytes,
		tracker:   &termmode.Tracker{},
	}
}

func (s *session) snapshot() schema.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return schema.SessionSnapshot{
		ID:           s.id,
		Key:          s.key,
		Pane:         s.pane,
		Status:       s.status,
		Cols:         s.cols,
		Rows:         s.rows,
		Alive:        s.status == schema.SessionLive,
		WasRecovered: s.wasRecovered,
		StartedAt:    s.startedAt,
		LastActiveAt: s.lastActive,
	}
}

func (s *session) setStatus(status schema.SessionStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *session) currentStatus() schema.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// currentID reads the transport session id under the lock. Recovery rewrites
// the id while the old pump may still be draining its final events.
func (s *session) currentID() schema.SessionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// appendScrollback records filtered output, trimming the front when the
// buffer exceeds its cap.
func (s *session) appendScrollback(data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scrollback = append(s.scrollback, data...)
	if len(s.scrollback) > s.maxBytes {
		trimmed := make([]byte, s.maxBytes)
		copy(trimmed, s.scrollback[len(s.scrollback)-s.maxBytes:])
		s.scrollback = trimmed
	}
	s.lastActive = time.Now()
}

func (s *session) scrollbackText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.scrollback)
}

// recordResize stores dimensions; pending dims are kept for replay when the
// session is not live.
func (s *session) recordResize(cols, rows int, live bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if live {
		s.cols, s.rows = cols, rows
		s.pendingCols, s.pendingRows = 0, 0
	} else {
		s.pendingCols, s.pendingRows = cols, rows
	}
}

// takePendingResize returns dims buffered while the session was not live.
func (s *session) takePendingResize() (int, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingCols <= 0 || s.pendingRows <= 0 {
		return 0, 0, false
	}
	cols, rows := s.pendingCols, s.pendingRows
	s.pendingCols, s.pendingRows = 0, 0
	s.cols, s.rows = cols, rows
	return cols, rows, true
}
