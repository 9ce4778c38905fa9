package core

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/termspace/internal/persist"
	"pkt.systems/termspace/internal/termfilter"
	"pkt.systems/termspace/schema"
)

// service implements the core service behavior.
type service struct {
	cfg     schema.ServiceConfig
	local   TerminalTransport
	cloud   TerminalTransport
	sink    EventSink
	store   *persist.Store
	filters *termfilter.Chain
	logger  pslog.Logger

	mu           sync.Mutex
	workspaces   map[schema.WorkspaceID]*workspaceState
	projectOrder []schema.ProjectID
	wsOrder      map[schema.ProjectID][]schema.WorkspaceID
	activeWS     schema.WorkspaceID
	sessions     map[schema.SessionID]*session
	byKey        map[schema.TerminalKey]*session
}

// NewService constructs the core service implementation.
func NewService(cfg schema.ServiceConfig, deps ServiceDeps) (Service, error) {
	normalized, err := schema.NormalizeServiceConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	var store *persist.Store
	if cfg.StateDir != "" {
		store, err = persist.NewStoreWithLogger(cfg.StateDir, deps.Logger)
		if err != nil {
			return nil, err
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	filters := deps.Filters
	if filters == nil {
		filters = termfilter.NewChain()
	}
	return &service{
		cfg:        cfg,
		local:      deps.Local,
		cloud:      deps.Cloud,
		sink:       deps.EventSink,
		store:      store,
		filters:    filters,
		logger:     logger,
		workspaces: make(map[schema.WorkspaceID]*workspaceState),
		wsOrder:    make(map[schema.ProjectID][]schema.WorkspaceID),
		sessions:   make(map[schema.SessionID]*session),
		byKey:      make(map[schema.TerminalKey]*session),
	}, nil
}

func (s *service) emitTab(event schema.TabEvent) {
	if s.sink != nil {
		s.sink.OnTabEvent(event)
	}
}

func (s *service) emitWorkspace(event schema.WorkspaceEvent) {
	if s.sink != nil {
		s.sink.OnWorkspaceEvent(event)
	}
}

func (s *service) emitSession(event schema.SessionEvent) {
	if s.sink != nil {
		s.sink.OnSessionEvent(event)
	}
}

func (s *service) emitOutput(event schema.OutputEvent) {
	if s.sink != nil {
		s.sink.OnOutput(event)
	}
}

// workspaceLocked returns the workspace or a typed error. Callers hold s.mu.
func (s *service) workspaceLocked(id schema.WorkspaceID) (*workspaceState, error) {
	ws, ok := s.workspaces[id]
	if !ok {
		return nil, schema.ErrWorkspaceNotFound
	}
	return ws, nil
}

// persistLocked snapshots one workspace to the store. Callers hold s.mu.
func (s *service) persistLocked(ws *workspaceState) {
	if s.store == nil {
		return
	}
	record := persist.WorkspaceRecord{Workspace: ws.snapshot()}
	for _, id := range ws.order {
		if t, ok := ws.tabs[id]; ok {
			record.Tabs = append(record.Tabs, t.snapshot(id == ws.activeTab))
			for _, childID := range t.childTabIDs {
				if child, ok := ws.tabs[childID]; ok {
					record.Tabs = append(record.Tabs, child.snapshot(false))
				}
			}
		}
	}
	for _, sess := range s.sessions {
		if sess.key.Workspace != ws.id || sess.key.VM == "" {
			continue
		}
		sess.mu.Lock()
		record.Sessions = append(record.Sessions, persist.SessionRecord{
			Key:        sess.key,
			Scrollback: string(sess.scrollback),
			ViewportY:  sess.viewportY,
		})
		sess.mu.Unlock()
	}
	if err := s.store.Save(ws.id, record); err != nil {
		s.logger.Warn("service persist failed", "workspace", ws.id, "err", err)
	}
}
