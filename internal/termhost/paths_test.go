package termhost

import (
	"os"
	"testing"
)

func TestLoadOrGenerateTokenStable(t *testing.T) {
	paths, err := NewPaths(t.TempDir())
	if err != nil {
		t.Fatalf("paths: %v", err)
	}
	first, err := paths.LoadOrGenerateToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(first) != 64 {
		t.Fatalf("token length = %d, want 64 hex chars", len(first))
	}
	second, err := paths.LoadOrGenerateToken()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if first != second {
		t.Fatalf("token changed across loads")
	}
	info, err := os.Stat(paths.TokenFile())
	if err != nil {
		t.Fatalf("stat token: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("token perm = %o, want 600", perm)
	}
}

func TestLoadTokenMissing(t *testing.T) {
	paths, err := NewPaths(t.TempDir())
	if err != nil {
		t.Fatalf("paths: %v", err)
	}
	if _, err := paths.LoadToken(); err == nil {
		t.Fatalf("expected error for missing token")
	}
}

func TestDetectRunningFalseForStalePid(t *testing.T) {
	paths, err := NewPaths(t.TempDir())
	if err != nil {
		t.Fatalf("paths: %v", err)
	}
	if paths.DetectRunning() {
		t.Fatalf("empty dir must not report a running host")
	}
	// A pid that cannot exist.
	if err := os.WriteFile(paths.PidFile(), []byte("999999999"), 0o600); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if paths.DetectRunning() {
		t.Fatalf("stale pid must not report a running host")
	}
}

func TestCleanupStaleRemovesRuntimeFilesKeepsToken(t *testing.T) {
	paths, err := NewPaths(t.TempDir())
	if err != nil {
		t.Fatalf("paths: %v", err)
	}
	if _, err := paths.LoadOrGenerateToken(); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := os.WriteFile(paths.PidFile(), []byte("999999999"), 0o600); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if err := paths.CleanupStale(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, err := os.Stat(paths.PidFile()); !os.IsNotExist(err) {
		t.Fatalf("pid file survived cleanup")
	}
	if _, err := os.Stat(paths.TokenFile()); err != nil {
		t.Fatalf("token must survive cleanup: %v", err)
	}
}
