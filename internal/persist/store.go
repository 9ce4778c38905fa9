package persist

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"pkt.systems/pslog"
	"pkt.systems/termspace/schema"
)

// SessionRecord captures cloud-session scrollback and viewport for recovery.
type SessionRecord struct {
	Key        schema.TerminalKey `json:"key"`
	Scrollback string             `json:"scrollback,omitempty"`
	ViewportY  int                `json:"viewport_y,omitempty"`
}

// WorkspaceRecord captures one workspace's tab topology for persistence.
type WorkspaceRecord struct {
	Workspace schema.WorkspaceSnapshot `json:"workspace"`
	Tabs      []schema.TabSnapshot     `json:"tabs"`
	Sessions  []SessionRecord          `json:"sessions,omitempty"`
}

// Store persists workspace records to disk as one JSON file per workspace.
type Store struct {
	dir string
	log pslog.Logger
}

// NewStore constructs a persistent store at the given directory.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a persistent store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir)
	}
	return &Store{dir: dir, log: logger}, nil
}

// Load reads a workspace record from disk.
func (s *Store) Load(workspaceID schema.WorkspaceID) (WorkspaceRecord, bool, error) {
	path := s.pathForWorkspace(workspaceID)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("state load miss", "workspace", workspaceID)
			}
			return WorkspaceRecord{}, false, nil
		}
		if s.log != nil {
			s.log.Warn("state load failed", "workspace", workspaceID, "err", err)
		}
		return WorkspaceRecord{}, false, err
	}
	var record WorkspaceRecord
	if err := json.Unmarshal(data, &record); err != nil {
		if s.log != nil {
			s.log.Warn("state load failed", "workspace", workspaceID, "err", err)
		}
		return WorkspaceRecord{}, false, err
	}
	if s.log != nil {
		s.log.Debug("state load ok", "workspace", workspaceID, "tabs", len(record.Tabs))
	}
	return record, true, nil
}

// Save writes a workspace record to disk atomically.
func (s *Store) Save(workspaceID schema.WorkspaceID, record WorkspaceRecord) error {
	path := s.pathForWorkspace(workspaceID)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return s.saveFailed(workspaceID, err)
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return s.saveFailed(workspaceID, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "state-*.json")
	if err != nil {
		return s.saveFailed(workspaceID, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return s.saveFailed(workspaceID, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return s.saveFailed(workspaceID, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return s.saveFailed(workspaceID, err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return s.saveFailed(workspaceID, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return s.saveFailed(workspaceID, err)
	}
	if s.log != nil {
		s.log.Trace("state save ok", "workspace", workspaceID, "tabs", len(record.Tabs))
	}
	return nil
}

// Delete removes a workspace record, if present.
func (s *Store) Delete(workspaceID schema.WorkspaceID) error {
	path := s.pathForWorkspace(workspaceID)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		if s.log != nil {
			s.log.Warn("state delete failed", "workspace", workspaceID, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Debug("state delete ok", "workspace", workspaceID)
	}
	return nil
}

func (s *Store) saveFailed(workspaceID schema.WorkspaceID, err error) error {
	if s.log != nil {
		s.log.Warn("state save failed", "workspace", workspaceID, "err", err)
	}
	return err
}

func (s *Store) pathForWorkspace(workspaceID schema.WorkspaceID) string {
	name := sanitize(string(workspaceID))
	if name == "" {
		name = "unknown"
	}
	return filepath.Join(s.dir, name+".json")
}

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	return b.String()
}
