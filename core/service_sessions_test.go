package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"pkt.systems/termspace/schema"
)

// fakeRemote is one backing process behind the fake transport.
type fakeRemote struct {
	id         schema.SessionID
	key        schema.TerminalKey
	scrollback []byte
	subs       []chan TransportOutput
	cols       int
	rows       int
	closed     bool
}

// fakeTransport implements TerminalTransport in memory, honoring the
// one-backing-per-key contract the real host provides.
type fakeTransport struct {
	mu       sync.Mutex
	attaches int
	spawned  int
	remotes  map[schema.SessionID]*fakeRemote
	byKey    map[schema.TerminalKey]*fakeRemote
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		remotes: make(map[schema.SessionID]*fakeRemote),
		byKey:   make(map[schema.TerminalKey]*fakeRemote),
	}
}

func (f *fakeTransport) Attach(ctx context.Context, key schema.TerminalKey, cols, rows int) (TransportAttach, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attaches++
	if remote, ok := f.byKey[key]; ok && !remote.closed {
		remote.cols, remote.rows = cols, rows
		return TransportAttach{
			Session:      remote.id,
			IsNew:        false,
			Scrollback:   string(remote.scrollback),
			WasRecovered: true,
		}, nil
	}
	f.spawned++
	remote := &fakeRemote{
		id:   schema.SessionID(fmt.Sprintf("remote-%d", f.spawned)),
		key:  key,
		cols: cols,
		rows: rows,
	}
	f.remotes[remote.id] = remote
	f.byKey[key] = remote
	return TransportAttach{Session: remote.id, IsNew: true}, nil
}

func (f *fakeTransport) Write(ctx context.Context, id schema.SessionID, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	remote, ok := f.remotes[id]
	if !ok {
		return schema.ErrSessionNotFound
	}
	if remote.closed {
		return schema.ErrSessionNotLive
	}
	return nil
}

func (f *fakeTransport) Resize(ctx context.Context, id schema.SessionID, cols, rows int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	remote, ok := f.remotes[id]
	if !ok {
		return schema.ErrSessionNotFound
	}
	remote.cols, remote.rows = cols, rows
	return nil
}

func (f *fakeTransport) Close(ctx context.Context, id schema.SessionID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	remote, ok := f.remotes[id]
	if !ok {
		return schema.ErrSessionNotFound
	}
	remote.closed = true
	delete(f.byKey, remote.key)
	for _, sub := range remote.subs {
		close(sub)
	}
	remote.subs = nil
	return nil
}

func (f *fakeTransport) Stream(ctx context.Context, id schema.SessionID) (<-chan TransportOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	remote, ok := f.remotes[id]
	if !ok {
		return nil, schema.ErrSessionNotFound
	}
	ch := make(chan TransportOutput, 64)
	remote.subs = append(remote.subs, ch)
	return ch, nil
}

// emit simulates backing process output.
func (f *fakeTransport) emit(id schema.SessionID, data string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	remote := f.remotes[id]
	remote.scrollback = append(remote.scrollback, data...)
	for _, sub := range remote.subs {
		sub <- TransportOutput{Data: []byte(data)}
	}
}

// exit simulates backing process termination.
func (f *fakeTransport) exit(id schema.SessionID, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	remote := f.remotes[id]
	remote.closed = true
	delete(f.byKey, remote.key)
	for _, sub := range remote.subs {
		sub <- TransportOutput{Exit: &TransportExit{Code: code}}
		close(sub)
	}
	remote.subs = nil
}

// dropStreams closes subscriber channels without exiting, simulating
// transport loss with the backing still running.
func (f *fakeTransport) dropStreams(id schema.SessionID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	remote := f.remotes[id]
	for _, sub := range remote.subs {
		close(sub)
	}
	remote.subs = nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func attachTerminal(t *testing.T, svc Service, ws schema.WorkspaceID, paneID schema.PaneID, terminal schema.TerminalID) schema.AttachTerminalResponse {
	t.Helper()
	resp, err := svc.AttachTerminal(context.Background(), schema.AttachTerminalRequest{
		WorkspaceID: ws,
		PaneID:      paneID,
		Terminal:    terminal,
		Cols:        80,
		Rows:        24,
	})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	return resp
}

func TestAttachReusesBackingForSameKey(t *testing.T) {
	transport := newFakeTransport()
	svc := newTestService(t, ServiceDeps{Local: transport})
	ws := createWorkspace(t, svc, "p")
	tabSnap := createTab(t, svc, ws.ID)

	first := attachTerminal(t, svc, ws.ID, tabSnap.Pane.ID, "term-1")
	if !first.IsNew || first.WasRecovered || first.Scrollback != "" {
		t.Fatalf("fresh attach: is_new=%v recovered=%v scrollback=%q", first.IsNew, first.WasRecovered, first.Scrollback)
	}

	transport.emit(first.Session.ID, "hello world\r\n")
	waitFor(t, "output buffered", func() bool {
		resp, err := svc.GetScrollback(context.Background(), schema.GetScrollbackRequest{SessionID: first.Session.ID})
		return err == nil && strings.Contains(resp.Scrollback, "hello world")
	})

	second := attachTerminal(t, svc, ws.ID, tabSnap.Pane.ID, "term-1")
	if second.IsNew {
		t.Fatalf("second attach before close must reuse the backing")
	}
	if !second.WasRecovered {
		t.Fatalf("second attach must report recovery")
	}
	if second.Session.ID != first.Session.ID {
		t.Fatalf("sessions differ: %s vs %s", second.Session.ID, first.Session.ID)
	}
	if !strings.Contains(second.Scrollback, "hello world") {
		t.Fatalf("second attach scrollback = %q, want replayed output", second.Scrollback)
	}
}

func TestOutputPipelineFiltersBeforeBuffering(t *testing.T) {
	transport := newFakeTransport()
	sink := &recordingSink{}
	svc := newTestService(t, ServiceDeps{Local: transport, EventSink: sink})
	ws := createWorkspace(t, svc, "p")
	tabSnap := createTab(t, svc, ws.ID)
	attached := attachTerminal(t, svc, ws.ID, tabSnap.Pane.ID, "term-1")

	transport.emit(attached.Session.ID, "before \x1b[?1;2c\x1b[3Jafter\x1b[2J")
	waitFor(t, "filtered output", func() bool {
		return strings.Contains(sink.outputText(), "after")
	})
	got := sink.outputText()
	if strings.Contains(got, "\x1b[?1;2c") {
		t.Fatalf("device attributes response leaked: %q", got)
	}
	if strings.Contains(got, "\x1b[3J") {
		t.Fatalf("clear-scrollback leaked: %q", got)
	}
	if !strings.Contains(got, "\x1b[2J") {
		t.Fatalf("clear-screen must be preserved: %q", got)
	}
	resp, err := svc.GetScrollback(context.Background(), schema.GetScrollbackRequest{SessionID: attached.Session.ID})
	if err != nil {
		t.Fatalf("scrollback: %v", err)
	}
	if resp.Scrollback != "before after\x1b[2J" {
		t.Fatalf("buffered scrollback = %q", resp.Scrollback)
	}
}

func TestExitTransitionsToDead(t *testing.T) {
	transport := newFakeTransport()
	sink := &recordingSink{}
	svc := newTestService(t, ServiceDeps{Local: transport, EventSink: sink})
	ws := createWorkspace(t, svc, "p")
	tabSnap := createTab(t, svc, ws.ID)
	attached := attachTerminal(t, svc, ws.ID, tabSnap.Pane.ID, "term-1")

	transport.exit(attached.Session.ID, 3)
	waitFor(t, "dead status", func() bool {
		resp, err := svc.ListSessions(context.Background(), schema.ListSessionsRequest{WorkspaceID: ws.ID})
		if err != nil || len(resp.Sessions) != 1 {
			return false
		}
		return resp.Sessions[0].Status == schema.SessionDead
	})
	sink.mu.Lock()
	defer sink.mu.Unlock()
	found := false
	for _, event := range sink.sessions {
		if event.Type == schema.SessionEventExit && event.ExitCode == 3 {
			found = true
		}
	}
	if !found {
		t.Fatalf("no exit event with code 3 in %+v", sink.sessions)
	}
}

func TestTransportLossThenRecovery(t *testing.T) {
	transport := newFakeTransport()
	svc := newTestService(t, ServiceDeps{Local: transport})
	ws := createWorkspace(t, svc, "p")
	tabSnap := createTab(t, svc, ws.ID)
	attached := attachTerminal(t, svc, ws.ID, tabSnap.Pane.ID, "term-1")

	transport.emit(attached.Session.ID, "persisted output\r\n")
	waitFor(t, "output buffered", func() bool {
		resp, err := svc.GetScrollback(context.Background(), schema.GetScrollbackRequest{SessionID: attached.Session.ID})
		return err == nil && strings.Contains(resp.Scrollback, "persisted output")
	})

	transport.dropStreams(attached.Session.ID)
	waitFor(t, "lost status", func() bool {
		resp, err := svc.ListSessions(context.Background(), schema.ListSessionsRequest{WorkspaceID: ws.ID})
		return err == nil && len(resp.Sessions) == 1 && resp.Sessions[0].Status == schema.SessionLost
	})

	if _, err := svc.WriteTerminal(context.Background(), schema.WriteTerminalRequest{
		SessionID: attached.Session.ID,
		Data:      "echo hi\r",
	}); !errors.Is(err, schema.ErrSessionNotLive) {
		t.Fatalf("write while lost: err = %v, want ErrSessionNotLive", err)
	}

	// Resize while lost is buffered, then replayed on recovery.
	if _, err := svc.ResizeTerminal(context.Background(), schema.ResizeTerminalRequest{
		SessionID: attached.Session.ID,
		Cols:      120, Rows: 40,
	}); err != nil {
		t.Fatalf("resize while lost: %v", err)
	}

	recovered := attachTerminal(t, svc, ws.ID, tabSnap.Pane.ID, "term-1")
	if recovered.IsNew {
		t.Fatalf("recovery must reuse the backing process")
	}
	if !recovered.WasRecovered {
		t.Fatalf("recovery must be reported")
	}
	if !strings.Contains(recovered.Scrollback, "persisted output") {
		t.Fatalf("recovered scrollback = %q", recovered.Scrollback)
	}
	waitFor(t, "resize replay", func() bool {
		transport.mu.Lock()
		defer transport.mu.Unlock()
		remote := transport.remotes[recovered.Session.ID]
		return remote != nil && remote.cols == 120 && remote.rows == 40
	})
	resp, err := svc.ListSessions(context.Background(), schema.ListSessionsRequest{WorkspaceID: ws.ID})
	if err != nil || len(resp.Sessions) != 1 {
		t.Fatalf("sessions after recovery: %v %d", err, len(resp.Sessions))
	}
	if resp.Sessions[0].Status != schema.SessionLive {
		t.Fatalf("status = %s, want live", resp.Sessions[0].Status)
	}
}

func TestRepeatedRecoveryWhileStreaming(t *testing.T) {
	transport := newFakeTransport()
	svc := newTestService(t, ServiceDeps{Local: transport})
	ws := createWorkspace(t, svc, "p")
	tabSnap := createTab(t, svc, ws.ID)
	attached := attachTerminal(t, svc, ws.ID, tabSnap.Pane.ID, "term-1")

	// The old pump keeps draining buffered output while recovery swaps the
	// transport session id underneath it.
	for round := 0; round < 5; round++ {
		transport.emit(attached.Session.ID, fmt.Sprintf("round %d\r\n", round))
		transport.dropStreams(attached.Session.ID)
		waitFor(t, "lost after drop", func() bool {
			resp, err := svc.ListSessions(context.Background(), schema.ListSessionsRequest{WorkspaceID: ws.ID})
			return err == nil && len(resp.Sessions) == 1 && resp.Sessions[0].Status == schema.SessionLost
		})
		recovered := attachTerminal(t, svc, ws.ID, tabSnap.Pane.ID, "term-1")
		if recovered.IsNew {
			t.Fatalf("round %d: recovery spawned a new backing", round)
		}
		waitFor(t, "live after recovery", func() bool {
			resp, err := svc.ListSessions(context.Background(), schema.ListSessionsRequest{WorkspaceID: ws.ID})
			return err == nil && len(resp.Sessions) == 1 && resp.Sessions[0].Status == schema.SessionLive
		})
	}

	resp, err := svc.GetScrollback(context.Background(), schema.GetScrollbackRequest{SessionID: attached.Session.ID})
	if err != nil {
		t.Fatalf("scrollback after recoveries: %v", err)
	}
	for round := 0; round < 5; round++ {
		if !strings.Contains(resp.Scrollback, fmt.Sprintf("round %d", round)) {
			t.Fatalf("scrollback missing round %d: %q", round, resp.Scrollback)
		}
	}
}

func TestCloseTerminalTerminatesBacking(t *testing.T) {
	transport := newFakeTransport()
	svc := newTestService(t, ServiceDeps{Local: transport})
	ws := createWorkspace(t, svc, "p")
	tabSnap := createTab(t, svc, ws.ID)
	attached := attachTerminal(t, svc, ws.ID, tabSnap.Pane.ID, "term-1")

	if _, err := svc.CloseTerminal(context.Background(), schema.CloseTerminalRequest{SessionID: attached.Session.ID}); err != nil {
		t.Fatalf("close: %v", err)
	}
	transport.mu.Lock()
	closed := transport.remotes[attached.Session.ID].closed
	transport.mu.Unlock()
	if !closed {
		t.Fatalf("backing not terminated on close")
	}
	if _, err := svc.CloseTerminal(context.Background(), schema.CloseTerminalRequest{SessionID: attached.Session.ID}); !errors.Is(err, schema.ErrSessionNotFound) {
		t.Fatalf("second close err = %v, want ErrSessionNotFound", err)
	}

	// The key is free: a new attach spawns a fresh backing.
	fresh := attachTerminal(t, svc, ws.ID, tabSnap.Pane.ID, "term-1")
	if !fresh.IsNew {
		t.Fatalf("attach after close must spawn fresh")
	}
}

func TestAttachVMWithoutCloudTransport(t *testing.T) {
	svc := newTestService(t, ServiceDeps{Local: newFakeTransport()})
	ws := createWorkspace(t, svc, "p")
	tabSnap := createTab(t, svc, ws.ID)
	_, err := svc.AttachTerminal(context.Background(), schema.AttachTerminalRequest{
		WorkspaceID: ws.ID,
		PaneID:      tabSnap.Pane.ID,
		VM:          "vm-1",
		Terminal:    "term-1",
	})
	if !errors.Is(err, schema.ErrHostUnavailable) {
		t.Fatalf("err = %v, want ErrHostUnavailable", err)
	}
}
