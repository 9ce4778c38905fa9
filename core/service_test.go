package core

import (
	"context"
	"sync"
	"testing"

	"pkt.systems/termspace/schema"
)

// recordingSink captures emitted events for assertions.
type recordingSink struct {
	mu         sync.Mutex
	outputs    []schema.OutputEvent
	sessions   []schema.SessionEvent
	tabs       []schema.TabEvent
	workspaces []schema.WorkspaceEvent
}

func (r *recordingSink) OnOutput(event schema.OutputEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs = append(r.outputs, event)
}

func (r *recordingSink) OnSessionEvent(event schema.SessionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, event)
}

func (r *recordingSink) OnTabEvent(event schema.TabEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tabs = append(r.tabs, event)
}

func (r *recordingSink) OnWorkspaceEvent(event schema.WorkspaceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workspaces = append(r.workspaces, event)
}

func (r *recordingSink) outputText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out string
	for _, event := range r.outputs {
		out += event.Data
	}
	return out
}

func newTestService(t *testing.T, deps ServiceDeps) Service {
	t.Helper()
	svc, err := NewService(schema.ServiceConfig{}, deps)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func createWorkspace(t *testing.T, svc Service, project schema.ProjectID) schema.WorkspaceSnapshot {
	t.Helper()
	resp, err := svc.CreateWorkspace(context.Background(), schema.CreateWorkspaceRequest{
		Project: project,
		Worktree: schema.WorktreeRef{
			ID:     schema.WorktreeID(string(project) + "-wt"),
			Path:   "/tmp/" + string(project),
			Branch: "main",
		},
	})
	if err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	return resp.Workspace
}

func createTab(t *testing.T, svc Service, ws schema.WorkspaceID) schema.TabSnapshot {
	t.Helper()
	resp, err := svc.CreateTab(context.Background(), schema.CreateTabRequest{
		WorkspaceID: ws,
		Kind:        schema.PaneTerminal,
	})
	if err != nil {
		t.Fatalf("create tab: %v", err)
	}
	return resp.Tab
}
