package termhost

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"pkt.systems/pslog"
	"pkt.systems/termspace/schema"
)

// Output is one unit pushed to session subscribers: either raw output bytes
// or the terminal exit event.
type Output struct {
	Data []byte
	Exit *Exit
}

// Exit reports backing process termination.
type Exit struct {
	Code   int
	Signal string
}

// Backing is one pseudo-terminal-owning process. Its lifetime is independent
// of any client connection; clients attach and detach freely.
type Backing interface {
	ID() schema.SessionID
	Key() schema.TerminalKey
	Write(data []byte) error
	Resize(cols, rows int) error
	Scrollback() string
	Subscribe() (<-chan Output, func())
	Alive() bool
	Snapshot() schema.SessionSnapshot
	Terminate() error
}

// ptySession is a local pseudo-terminal backing. The read loop continuously
// captures output into the scrollback ring so a later attach can replay the
// rendered history without re-running the program.
type ptySession struct {
	id  schema.SessionID
	key schema.TerminalKey
	log pslog.Logger

	mu         sync.Mutex
	cmd        *exec.Cmd
	ptmx       *os.File
	scrollback []byte
	maxBytes   int
	cols, rows int
	alive      bool
	exit       *Exit
	startedAt  time.Time
	lastActive time.Time
	subs       map[chan Output]struct{}
	closed     bool
}

// SpawnConfig controls local session spawn.
type SpawnConfig struct {
	Shell              string
	WorkDir            string
	Env                []string
	ScrollbackMaxBytes int
}

// SpawnPTY starts a shell on a fresh pseudo-terminal.
func SpawnPTY(ctx context.Context, cfg SpawnConfig, key schema.TerminalKey, cols, rows int) (Backing, error) {
	if cfg.Shell == "" {
		return nil, errors.New("shell is required")
	}
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}
	maxBytes := cfg.ScrollbackMaxBytes
	if maxBytes <= 0 {
		maxBytes = schema.DefaultScrollbackMaxBytes
	}

	cmd := exec.Command(cfg.Shell)
	cmd.Dir = cfg.WorkDir
	cmd.Env = append(os.Environ(), cfg.Env...)
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
	if err != nil {
		return nil, err
	}

	log := pslog.Ctx(ctx).With("terminal", key.Terminal, "workspace", key.Workspace)
	now := time.Now()
	s := &ptySession{
		id:         schema.SessionID(uuid.NewString()),
		key:        key,
		log:        log,
		cmd:        cmd,
		ptmx:       ptmx,
		maxBytes:   maxBytes,
		cols:       cols,
		rows:       rows,
		alive:      true,
		startedAt:  now,
		lastActive: now,
		subs:       make(map[chan Output]struct{}),
	}
	go s.readLoop()
	go s.waitLoop()
	log.Info("host session spawned", "session", s.id, "shell", cfg.Shell, "cols", cols, "rows", rows)
	return s, nil
}

func (s *ptySession) ID() schema.SessionID    { return s.id }
func (s *ptySession) Key() schema.TerminalKey { return s.key }

func (s *ptySession) readLoop() {
	buf := make([]byte, 32*1024)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			s.append(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func (s *ptySession) waitLoop() {
	err := s.cmd.Wait()
	exit := Exit{}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exit.Code = exitErr.ExitCode()
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				exit.Signal = status.Signal().String()
			}
		} else {
			exit.Code = -1
		}
	}
	s.mu.Lock()
	s.alive = false
	s.exit = &exit
	subs := make([]chan Output, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()
	_ = s.ptmx.Close()
	for _, sub := range subs {
		select {
		case sub <- Output{Exit: &exit}:
		default:
		}
	}
	s.log.Info("host session exited", "session", s.id, "exit_code", exit.Code, "signal", exit.Signal)
}

func (s *ptySession) append(data []byte) {
	s.mu.Lock()
	s.scrollback = append(s.scrollback, data...)
	if len(s.scrollback) > s.maxBytes {
		s.scrollback = s.scrollback[len(s.scrollback)-s.maxBytes:]
	}
	s.lastActive = time.Now()
	subs := make([]chan Output, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()
	// Copy before fan-out: data aliases the reader's reusable buffer.
	chunk := append([]byte(nil), data...)
	for _, sub := range subs {
		select {
		case sub <- Output{Data: chunk}:
		default:
		}
	}
}

// Write sends input bytes to the pseudo-terminal.
func (s *ptySession) Write(data []byte) error {
	s.mu.Lock()
	alive := s.alive
	ptmx := s.ptmx
	s.lastActive = time.Now()
	s.mu.Unlock()
	if !alive {
		return schema.ErrSessionNotLive
	}
	_, err := ptmx.Write(data)
	return err
}

// Resize forwards new dimensions to the pseudo-terminal.
func (s *ptySession) Resize(cols, rows int) error {
	if cols <= 0 || rows <= 0 {
		return schema.ErrInvalidRequest
	}
	s.mu.Lock()
	s.cols, s.rows = cols, rows
	alive := s.alive
	ptmx := s.ptmx
	s.mu.Unlock()
	if !alive {
		// Dimensions are recorded and applied if the session is respawned.
		return nil
	}
	return pty.Setsize(ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

// Scrollback returns the captured output ring.
func (s *ptySession) Scrollback() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.scrollback)
}

// Subscribe registers an output subscriber. Cancel removes it.
func (s *ptySession) Subscribe() (<-chan Output, func()) {
	ch := make(chan Output, 256)
	s.mu.Lock()
	exit := s.exit
	if s.exit == nil {
		s.subs[ch] = struct{}{}
	}
	s.mu.Unlock()
	if exit != nil {
		ch <- Output{Exit: exit}
		close(ch)
		return ch, func() {}
	}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Alive reports whether the backing process is still running.
func (s *ptySession) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

// Snapshot returns a transport-friendly view of the session.
func (s *ptySession) Snapshot() schema.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := schema.SessionLive
	if !s.alive {
		status = schema.SessionDead
	}
	return schema.SessionSnapshot{
		ID:           s.id,
		Key:          s.key,
		Status:       status,
		Cols:         s.cols,
		Rows:         s.rows,
		Alive:        s.alive,
		StartedAt:    s.startedAt,
		LastActiveAt: s.lastActive,
	}
}

// Terminate sends SIGTERM to the backing process and closes the terminal.
func (s *ptySession) Terminate() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	alive := s.alive
	cmd := s.cmd
	s.mu.Unlock()
	if !alive || cmd == nil || cmd.Process == nil {
		return nil
	}
	s.log.Info("host session terminate", "session", s.id)
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return cmd.Process.Kill()
	}
	return nil
}

// LastActive returns the most recent activity time, for idle reclamation.
func (s *ptySession) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}
