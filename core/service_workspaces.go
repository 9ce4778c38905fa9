package core

import (
	"context"
	"errors"
	"strings"

	"pkt.systems/termspace/internal/logx"
	"pkt.systems/termspace/schema"
)

func (s *service) CreateWorkspace(ctx context.Context, req schema.CreateWorkspaceRequest) (schema.CreateWorkspaceResponse, error) {
	if ctx == nil {
		return schema.CreateWorkspaceResponse{}, errors.New("missing context")
	}
	if strings.TrimSpace(string(req.Project)) == "" || strings.TrimSpace(req.Worktree.Path) == "" {
		return schema.CreateWorkspaceResponse{}, schema.ErrInvalidRequest
	}
	ws := &workspaceState{
		id:       schema.WorkspaceID(newID("ws")),
		project:  req.Project,
		worktree: req.Worktree,
		tabs:     make(map[schema.TabID]*tab),
	}
	log := logx.WithWorkspace(ctx, ws.id)
	log.Info("service workspace create start", "project", req.Project, "branch", req.Worktree.Branch)

	s.mu.Lock()
	if _, known := s.wsOrder[req.Project]; !known {
		s.projectOrder = append(s.projectOrder, req.Project)
	}
	s.workspaces[ws.id] = ws
	s.wsOrder[req.Project] = append(s.wsOrder[req.Project], ws.id)
	if s.activeWS == "" {
		s.activeWS = ws.id
	}
	snap := ws.snapshot()
	active := s.activeWS
	s.persistLocked(ws)
	s.mu.Unlock()

	s.emitWorkspace(schema.WorkspaceEvent{
		Type:            schema.WorkspaceEventCreated,
		Workspace:       snap,
		ActiveWorkspace: active,
	})
	log.Info("service workspace create done")
	return schema.CreateWorkspaceResponse{Workspace: snap}, nil
}

func (s *service) DeleteWorkspace(ctx context.Context, req schema.DeleteWorkspaceRequest) (schema.DeleteWorkspaceResponse, error) {
	if ctx == nil {
		return schema.DeleteWorkspaceResponse{}, errors.New("missing context")
	}
	log := logx.WithWorkspace(ctx, req.WorkspaceID)
	log.Info("service workspace delete start")

	s.mu.Lock()
	ws, err := s.workspaceLocked(req.WorkspaceID)
	if err != nil {
		s.mu.Unlock()
		return schema.DeleteWorkspaceResponse{}, err
	}

	// Adjacent selection works off the pre-deletion flattened order with the
	// target located by id.
	flat := s.flattenLocked()
	idx := -1
	for i, id := range flat {
		if id == ws.id {
			idx = i
			break
		}
	}
	next := schema.WorkspaceID("")
	switch {
	case idx > 0:
		next = flat[idx-1]
	case idx == 0 && len(flat) > 1:
		next = flat[1]
	}

	snap := ws.snapshot()
	delete(s.workspaces, ws.id)
	order := s.wsOrder[ws.project]
	for i, id := range order {
		if id == ws.id {
			s.wsOrder[ws.project] = append(order[:i], order[i+1:]...)
			break
		}
	}
	if len(s.wsOrder[ws.project]) == 0 {
		delete(s.wsOrder, ws.project)
		for i, p := range s.projectOrder {
			if p == ws.project {
				s.projectOrder = append(s.projectOrder[:i], s.projectOrder[i+1:]...)
				break
			}
		}
	}
	if s.activeWS == ws.id {
		s.activeWS = next
	}
	var doomed []*session
	for id, sess := range s.sessions {
		if sess.key.Workspace == ws.id {
			delete(s.sessions, id)
			delete(s.byKey, sess.key)
			doomed = append(doomed, sess)
		}
	}
	active := s.activeWS
	s.mu.Unlock()

	for _, sess := range doomed {
		s.teardownSession(ctx, sess)
	}
	if s.store != nil {
		if err := s.store.Delete(ws.id); err != nil {
			log.Warn("service workspace delete persist failed", "err", err)
		}
	}
	s.emitWorkspace(schema.WorkspaceEvent{
		Type:            schema.WorkspaceEventDeleted,
		Workspace:       snap,
		ActiveWorkspace: active,
	})
	log.Info("service workspace delete done", "next_active", active)
	return schema.DeleteWorkspaceResponse{Deleted: snap, ActiveWorkspace: active}, nil
}

func (s *service) ListWorkspaces(ctx context.Context, req schema.ListWorkspacesRequest) (schema.ListWorkspacesResponse, error) {
	if ctx == nil {
		return schema.ListWorkspacesResponse{}, errors.New("missing context")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []schema.WorkspaceSnapshot
	for _, id := range s.flattenLocked() {
		ws := s.workspaces[id]
		if req.Project != "" && ws.project != req.Project {
			continue
		}
		out = append(out, ws.snapshot())
	}
	return schema.ListWorkspacesResponse{Workspaces: out, ActiveWorkspace: s.activeWS}, nil
}

func (s *service) SetActiveWorkspace(ctx context.Context, req schema.SetActiveWorkspaceRequest) (schema.SetActiveWorkspaceResponse, error) {
	if ctx == nil {
		return schema.SetActiveWorkspaceResponse{}, errors.New("missing context")
	}
	s.mu.Lock()
	ws, err := s.workspaceLocked(req.WorkspaceID)
	if err != nil {
		s.mu.Unlock()
		return schema.SetActiveWorkspaceResponse{}, err
	}
	s.activeWS = ws.id
	snap := ws.snapshot()
	s.mu.Unlock()

	s.emitWorkspace(schema.WorkspaceEvent{
		Type:            schema.WorkspaceEventActivated,
		Workspace:       snap,
		ActiveWorkspace: ws.id,
	})
	logx.WithWorkspace(ctx, ws.id).Info("service workspace activated")
	return schema.SetActiveWorkspaceResponse{Workspace: snap}, nil
}

// flattenLocked returns every workspace id in the global order used for
// adjacent selection: projects in tab order, workspaces within a project in
// tab order. Callers hold s.mu.
func (s *service) flattenLocked() []schema.WorkspaceID {
	var flat []schema.WorkspaceID
	for _, project := range s.projectOrder {
		flat = append(flat, s.wsOrder[project]...)
	}
	return flat
}
