package termspace

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"pkt.systems/termspace/core"
	"pkt.systems/termspace/schema"
)

func TestNewRequiresAtLeastOneService(t *testing.T) {
	if _, err := New(ServerConfig{}, ServerDeps{}); err == nil {
		t.Fatalf("expected error when no services enabled")
	}
}

func TestNewEngineFansOutEventSinks(t *testing.T) {
	dir := t.TempDir()
	first := &countingSink{}
	second := &countingSink{}
	cfg := ServerConfig{
		Service: schema.ServiceConfig{StateDir: filepath.Join(dir, "state")},
	}
	deps := ServerDeps{
		ServiceDeps: core.ServiceDeps{
			Local:     noopTransport{},
			EventSink: first,
		},
		EventSinks: []core.EventSink{second},
	}
	server, err := New(cfg, deps, WithEngine())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	svc := server.Service()
	if svc == nil {
		t.Fatalf("expected engine service")
	}
	if _, err := svc.CreateWorkspace(context.Background(), schema.CreateWorkspaceRequest{
		Project:  "proj",
		Worktree: schema.WorktreeRef{Path: filepath.Join(dir, "wt")},
	}); err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	if first.workspaceEvents == 0 || second.workspaceEvents == 0 {
		t.Fatalf("expected both sinks to receive events, got %d and %d", first.workspaceEvents, second.workspaceEvents)
	}
}

func TestStopCancelsServerContext(t *testing.T) {
	dir := t.TempDir()
	cfg := ServerConfig{
		Service: schema.ServiceConfig{StateDir: filepath.Join(dir, "state")},
	}
	deps := ServerDeps{
		ServiceDeps: core.ServiceDeps{Local: noopTransport{}},
	}
	server, err := New(cfg, deps, WithEngine())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := server.Start(context.Background()); err == nil {
		t.Fatalf("expected second start to fail")
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := server.Wait(); err != nil {
		t.Fatalf("Wait after stop: %v", err)
	}
}

type countingSink struct {
	outputEvents    int
	sessionEvents   int
	tabEvents       int
	workspaceEvents int
}

func (s *countingSink) OnOutput(schema.OutputEvent)            { s.outputEvents++ }
func (s *countingSink) OnSessionEvent(schema.SessionEvent)     { s.sessionEvents++ }
func (s *countingSink) OnTabEvent(schema.TabEvent)             { s.tabEvents++ }
func (s *countingSink) OnWorkspaceEvent(schema.WorkspaceEvent) { s.workspaceEvents++ }

type noopTransport struct{}

func (noopTransport) Attach(context.Context, schema.TerminalKey, int, int) (core.TransportAttach, error) {
	return core.TransportAttach{Session: "noop", IsNew: true}, nil
}

func (noopTransport) Write(context.Context, schema.SessionID, []byte) error { return nil }

func (noopTransport) Resize(context.Context, schema.SessionID, int, int) error { return nil }

func (noopTransport) Close(context.Context, schema.SessionID) error { return nil }

func (noopTransport) Stream(context.Context, schema.SessionID) (<-chan core.TransportOutput, error) {
	ch := make(chan core.TransportOutput)
	return ch, nil
}
