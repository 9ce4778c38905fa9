// Package termhost implements the long-lived terminal host process. The host
// owns every local pseudo-terminal, decoupling session lifetime from the UI
// process so sessions survive UI reloads and can be recovered by reattaching.
package termhost

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// Paths locates the per-user host runtime files: the IPC socket, the bearer
// token, and the pid file used to detect a running host.
type Paths struct {
	Dir string
}

// NewPaths constructs host paths under the given state directory.
func NewPaths(dir string) (Paths, error) {
	if strings.TrimSpace(dir) == "" {
		return Paths{}, errors.New("host directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Paths{}, err
	}
	return Paths{Dir: dir}, nil
}

// Socket returns the unix socket path.
func (p Paths) Socket() string { return filepath.Join(p.Dir, "host.sock") }

// TokenFile returns the bearer token file path.
func (p Paths) TokenFile() string { return filepath.Join(p.Dir, "host.token") }

// PidFile returns the pid file path.
func (p Paths) PidFile() string { return filepath.Join(p.Dir, "host.pid") }

// LoadOrGenerateToken loads the existing token or generates and stores a new
// one with 0600 permissions.
func (p Paths) LoadOrGenerateToken() (string, error) {
	data, err := os.ReadFile(p.TokenFile())
	if err == nil {
		token := strings.TrimSpace(string(data))
		if token != "" {
			return token, nil
		}
	}
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf[:])
	if err := os.WriteFile(p.TokenFile(), []byte(token), 0o600); err != nil {
		return "", err
	}
	return token, nil
}

// LoadToken reads the stored token.
func (p Paths) LoadToken() (string, error) {
	data, err := os.ReadFile(p.TokenFile())
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", errors.New("empty host token")
	}
	return token, nil
}

// WritePidFile records the current process id.
func (p Paths) WritePidFile() error {
	return os.WriteFile(p.PidFile(), []byte(strconv.Itoa(os.Getpid())), 0o600)
}

// RemoveRuntimeFiles removes the socket and pid file. The token persists so
// clients keep working across host restarts.
func (p Paths) RemoveRuntimeFiles() {
	_ = os.Remove(p.Socket())
	_ = os.Remove(p.PidFile())
}

// DetectRunning reports whether a host is already serving on the socket. It
// checks the pid file for a live process and probes the socket, so a stale
// socket left by a crashed host is not mistaken for a running one.
func (p Paths) DetectRunning() bool {
	data, err := os.ReadFile(p.PidFile())
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return false
	}
	if err := unix.Kill(pid, 0); err != nil {
		return false
	}
	conn, err := net.DialTimeout("unix", p.Socket(), 250*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// CleanupStale removes runtime files left behind by a dead host.
func (p Paths) CleanupStale() error {
	if p.DetectRunning() {
		return fmt.Errorf("host already running on %s", p.Socket())
	}
	p.RemoveRuntimeFiles()
	return nil
}
