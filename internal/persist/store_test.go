package persist

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"pkt.systems/termspace/schema"
)

func TestStoreLoadMissing(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	_, ok, err := store.Load("ws-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatalf("expected missing record")
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	record := WorkspaceRecord{
		Workspace: schema.WorkspaceSnapshot{
			ID:        "ws-1",
			Project:   "proj",
			Worktree:  schema.WorktreeRef{ID: "wt-1", Path: "/tmp/wt", Branch: "main"},
			TabOrder:  []schema.TabID{"tab-1"},
			ActiveTab: "tab-1",
		},
		Tabs: []schema.TabSnapshot{
			{
				ID:        "tab-1",
				Workspace: "ws-1",
				Pane:      &schema.PaneSnapshot{ID: "pane-1", Kind: schema.PaneTerminal},
			},
		},
		Sessions: []SessionRecord{
			{
				Key:        schema.TerminalKey{Workspace: "ws-1", VM: "vm-1", Terminal: "term-0"},
				Scrollback: "$ make test\nok\n",
				ViewportY:  42,
			},
		},
	}
	if err := store.Save("ws-1", record); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, ok, err := store.Load("ws-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatalf("expected record present")
	}
	if !reflect.DeepEqual(record, loaded) {
		t.Fatalf("round trip mismatch:\nsaved:  %+v\nloaded: %+v", record, loaded)
	}
}

func TestStoreSavePermissions(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Save("ws-1", WorkspaceRecord{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(filepath.Join(dir, "ws-1.json"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 permissions, got %v", info.Mode().Perm())
	}
}

func TestStoreDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Save("ws-1", WorkspaceRecord{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Delete("ws-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Load("ws-1"); ok {
		t.Fatalf("expected record gone after delete")
	}
	if err := store.Delete("ws-1"); err != nil {
		t.Fatalf("delete missing should be nil, got %v", err)
	}
}

func TestStorePathSanitized(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Save("../evil/../../id", WorkspaceRecord{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one file in store dir, got %d", len(entries))
	}
}
