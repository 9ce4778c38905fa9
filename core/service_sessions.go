package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/termspace/internal/logx"
	"pkt.systems/termspace/internal/termfilter"
	"pkt.systems/termspace/schema"
)

func (s *service) AttachTerminal(ctx context.Context, req schema.AttachTerminalRequest) (schema.AttachTerminalResponse, error) {
	if ctx == nil {
		return schema.AttachTerminalResponse{}, errors.New("missing context")
	}
	if strings.TrimSpace(string(req.Terminal)) == "" {
		return schema.AttachTerminalResponse{}, schema.ErrInvalidRequest
	}
	cols, rows := req.Cols, req.Rows
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}
	key := schema.TerminalKey{Workspace: req.WorkspaceID, VM: req.VM, Terminal: req.Terminal}
	log := logx.WithKey(logx.Ctx(ctx), key)

	s.mu.Lock()
	ws, err := s.workspaceLocked(req.WorkspaceID)
	if err != nil {
		s.mu.Unlock()
		return schema.AttachTerminalResponse{}, err
	}
	_, p := ws.paneByID(req.PaneID)
	if p == nil {
		s.mu.Unlock()
		return schema.AttachTerminalResponse{}, schema.ErrPaneNotFound
	}

	if existing, ok := s.byKey[key]; ok {
		switch existing.currentStatus() {
		case schema.SessionLive, schema.SessionAttaching, schema.SessionRecovering:
			// One backing per key: a second attach before close resolves to
			// the same session.
			p.sessionID = existing.id
			snap := existing.snapshot()
			sb := existing.scrollbackText()
			existing.mu.Lock()
			viewport := existing.viewportY
			existing.mu.Unlock()
			s.mu.Unlock()
			log.Info("service terminal attach reuse", "session", snap.ID)
			return schema.AttachTerminalResponse{
				Session:      snap,
				IsNew:        false,
				Scrollback:   sb,
				WasRecovered: true,
				ViewportY:    viewport,
			}, nil
		case schema.SessionLost, schema.SessionSuspended:
			existing.setStatus(schema.SessionRecovering)
			s.mu.Unlock()
			return s.recoverSession(ctx, existing, p, cols, rows, log)
		default:
			// Dead entry under the key: drop it and attach fresh.
			delete(s.byKey, key)
			delete(s.sessions, existing.currentID())
		}
	}

	transport := s.local
	if key.VM != "" {
		transport = s.cloud
	}
	if transport == nil {
		s.mu.Unlock()
		return schema.AttachTerminalResponse{}, schema.ErrHostUnavailable
	}
	sess := newSession(key, req.PaneID, transport, s.cfg.ScrollbackMaxBytes)
	sess.status = schema.SessionAttaching
	s.byKey[key] = sess
	s.mu.Unlock()

	result, err := transport.Attach(ctx, key, cols, rows)
	if err != nil {
		s.mu.Lock()
		if s.byKey[key] == sess {
			delete(s.byKey, key)
		}
		s.mu.Unlock()
		log.Warn("service terminal attach failed", "err", err)
		return schema.AttachTerminalResponse{}, err
	}

	sess.mu.Lock()
	sess.id = result.Session
	sess.status = schema.SessionLive
	sess.cols, sess.rows = cols, rows
	sess.wasRecovered = result.WasRecovered
	sess.startedAt = time.Now()
	sess.lastActive = sess.startedAt
	sess.viewportY = result.ViewportY
	sess.mu.Unlock()
	replay := ""
	if result.Scrollback != "" {
		replay = termfilter.StripClearScrollback(s.filters.Apply(result.Scrollback))
		sess.appendScrollback(replay)
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	p.sessionID = sess.id
	s.persistLocked(ws)
	s.mu.Unlock()

	s.startPump(sess)
	s.emitSession(schema.SessionEvent{
		Workspace: key.Workspace,
		SessionID: sess.id,
		Type:      schema.SessionEventStatus,
		Status:    schema.SessionLive,
	})
	log.Info("service terminal attached", "session", sess.id, "is_new", result.IsNew, "recovered", result.WasRecovered)
	return schema.AttachTerminalResponse{
		Session:      sess.snapshot(),
		IsNew:        result.IsNew,
		Scrollback:   replay,
		WasRecovered: result.WasRecovered,
		ViewportY:    result.ViewportY,
	}, nil
}

// recoverSession reattaches a Lost session to its still-running backing.
func (s *service) recoverSession(ctx context.Context, sess *session, p *pane, cols, rows int, log pslog.Logger) (schema.AttachTerminalResponse, error) {
	result, err := sess.transport.Attach(ctx, sess.key, cols, rows)
	if err != nil {
		sess.setStatus(schema.SessionLost)
		log.Warn("service terminal recovery failed", "err", err)
		return schema.AttachTerminalResponse{}, err
	}
	replay := sess.scrollbackText()
	if result.Scrollback != "" {
		replay = termfilter.StripClearScrollback(s.filters.Apply(result.Scrollback))
	}
	sess.mu.Lock()
	oldID := sess.id
	sess.id = result.Session
	sess.status = schema.SessionLive
	sess.cols, sess.rows = cols, rows
	sess.wasRecovered = true
	sess.lastActive = time.Now()
	sess.scrollback = []byte(replay)
	if result.ViewportY != 0 {
		sess.viewportY = result.ViewportY
	}
	viewport := sess.viewportY
	sess.mu.Unlock()

	s.mu.Lock()
	if oldID != "" && oldID != sess.id {
		delete(s.sessions, oldID)
	}
	s.sessions[sess.id] = sess
	p.sessionID = sess.id
	if ws, ok := s.workspaces[sess.key.Workspace]; ok {
		s.persistLocked(ws)
	}
	s.mu.Unlock()

	if cols, rows, ok := sess.takePendingResize(); ok {
		if err := sess.transport.Resize(ctx, sess.id, cols, rows); err != nil {
			log.Warn("service terminal resize replay failed", "err", err)
		}
	}
	s.startPump(sess)
	s.emitSession(schema.SessionEvent{
		Workspace: sess.key.Workspace,
		SessionID: sess.id,
		Type:      schema.SessionEventStatus,
		Status:    schema.SessionLive,
	})
	log.Info("service terminal recovered", "session", sess.id)
	return schema.AttachTerminalResponse{
		Session:      sess.snapshot(),
		IsNew:        false,
		Scrollback:   replay,
		WasRecovered: true,
		ViewportY:    viewport,
	}, nil
}

// startPump subscribes to the transport stream and drives the output
// pipeline: mode tracking, filtering, buffering, emission. Single consumer
// per session keeps chunk order intact.
func (s *service) startPump(sess *session) {
	ctx, cancel := context.WithCancel(context.Background())
	sess.mu.Lock()
	if sess.cancelPump != nil {
		sess.cancelPump()
	}
	sess.cancelPump = cancel
	sess.mu.Unlock()

	stream, err := sess.transport.Stream(ctx, sess.id)
	if err != nil {
		cancel()
		sess.setStatus(schema.SessionLost)
		s.logger.Warn("service output stream failed", "session", sess.id, "err", err)
		s.emitSession(schema.SessionEvent{
			Workspace: sess.key.Workspace,
			SessionID: sess.id,
			Type:      schema.SessionEventStatus,
			Status:    schema.SessionLost,
		})
		return
	}
	go s.pump(ctx, sess, stream)
}

func (s *service) pump(ctx context.Context, sess *session, stream <-chan TransportOutput) {
	exited := false
	for {
		select {
		case <-ctx.Done():
			return
		case out, open := <-stream:
			if !open {
				if exited {
					return
				}
				// Transport loss without exit: backing keeps running.
				if sess.currentStatus() == schema.SessionLive {
					sess.setStatus(schema.SessionLost)
					s.emitSession(schema.SessionEvent{
						Workspace: sess.key.Workspace,
						SessionID: sess.currentID(),
						Type:      schema.SessionEventStatus,
						Status:    schema.SessionLost,
					})
				}
				return
			}
			if len(out.Data) > 0 {
				raw := string(out.Data)
				sess.tracker.Observe(raw)
				filtered := termfilter.StripClearScrollback(s.filters.Apply(raw))
				if filtered != "" {
					sess.appendScrollback(filtered)
					s.emitOutput(schema.OutputEvent{
						Workspace: sess.key.Workspace,
						SessionID: sess.currentID(),
						Pane:      sess.pane,
						Data:      filtered,
					})
				}
			}
			if out.Exit != nil {
				exited = true
				sess.setStatus(schema.SessionDead)
				s.mu.Lock()
				if s.byKey[sess.key] == sess {
					delete(s.byKey, sess.key)
				}
				if ws, ok := s.workspaces[sess.key.Workspace]; ok {
					s.persistLocked(ws)
				}
				s.mu.Unlock()
				s.emitSession(schema.SessionEvent{
					Workspace: sess.key.Workspace,
					SessionID: sess.currentID(),
					Type:      schema.SessionEventExit,
					Status:    schema.SessionDead,
					ExitCode:  out.Exit.Code,
					Signal:    out.Exit.Signal,
				})
			}
		}
	}
}

func (s *service) ResizeTerminal(ctx context.Context, req schema.ResizeTerminalRequest) (schema.ResizeTerminalResponse, error) {
	if ctx == nil {
		return schema.ResizeTerminalResponse{}, errors.New("missing context")
	}
	if req.Cols <= 0 || req.Rows <= 0 {
		return schema.ResizeTerminalResponse{}, schema.ErrInvalidRequest
	}
	s.mu.Lock()
	sess, ok := s.sessions[req.SessionID]
	s.mu.Unlock()
	if !ok {
		return schema.ResizeTerminalResponse{}, schema.ErrSessionNotFound
	}
	live := sess.currentStatus() == schema.SessionLive
	sess.recordResize(req.Cols, req.Rows, live)
	if live {
		if err := sess.transport.Resize(ctx, sess.currentID(), req.Cols, req.Rows); err != nil {
			return schema.ResizeTerminalResponse{}, err
		}
	}
	return schema.ResizeTerminalResponse{Session: sess.snapshot()}, nil
}

func (s *service) WriteTerminal(ctx context.Context, req schema.WriteTerminalRequest) (schema.WriteTerminalResponse, error) {
	if ctx == nil {
		return schema.WriteTerminalResponse{}, errors.New("missing context")
	}
	s.mu.Lock()
	sess, ok := s.sessions[req.SessionID]
	s.mu.Unlock()
	if !ok {
		return schema.WriteTerminalResponse{}, schema.ErrSessionNotFound
	}
	if sess.currentStatus() != schema.SessionLive {
		return schema.WriteTerminalResponse{}, schema.ErrSessionNotLive
	}
	if err := sess.transport.Write(ctx, sess.currentID(), []byte(req.Data)); err != nil {
		return schema.WriteTerminalResponse{}, err
	}
	return schema.WriteTerminalResponse{}, nil
}

func (s *service) CloseTerminal(ctx context.Context, req schema.CloseTerminalRequest) (schema.CloseTerminalResponse, error) {
	if ctx == nil {
		return schema.CloseTerminalResponse{}, errors.New("missing context")
	}
	s.mu.Lock()
	sess, ok := s.sessions[req.SessionID]
	var id schema.SessionID
	if ok {
		id = sess.currentID()
		delete(s.sessions, id)
		if s.byKey[sess.key] == sess {
			delete(s.byKey, sess.key)
		}
		if ws := s.workspaces[sess.key.Workspace]; ws != nil {
			if _, p := ws.paneByID(sess.pane); p != nil && p.sessionID == id {
				p.sessionID = ""
			}
			s.persistLocked(ws)
		}
	}
	s.mu.Unlock()
	if !ok {
		return schema.CloseTerminalResponse{}, schema.ErrSessionNotFound
	}

	s.teardownSession(ctx, sess)
	snap := sess.snapshot()
	s.emitSession(schema.SessionEvent{
		Workspace: sess.key.Workspace,
		SessionID: id,
		Type:      schema.SessionEventStatus,
		Status:    schema.SessionDead,
	})
	logx.WithSession(ctx, sess.key.Workspace, id).Info("service terminal closed")
	return schema.CloseTerminalResponse{Session: snap}, nil
}

// teardownSession cancels the pump and asks the transport to terminate the
// backing process.
func (s *service) teardownSession(ctx context.Context, sess *session) {
	sess.mu.Lock()
	cancel := sess.cancelPump
	sess.cancelPump = nil
	sess.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if id := sess.currentID(); id != "" && sess.currentStatus() != schema.SessionDead {
		if err := sess.transport.Close(ctx, id); err != nil && !errors.Is(err, schema.ErrSessionNotFound) {
			s.logger.Warn("service terminal close failed", "session", id, "err", err)
		}
	}
	sess.setStatus(schema.SessionDead)
}

func (s *service) ListSessions(ctx context.Context, req schema.ListSessionsRequest) (schema.ListSessionsResponse, error) {
	if ctx == nil {
		return schema.ListSessionsResponse{}, errors.New("missing context")
	}
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if req.WorkspaceID != "" && sess.key.Workspace != req.WorkspaceID {
			continue
		}
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	out := make([]schema.SessionSnapshot, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.snapshot())
	}
	return schema.ListSessionsResponse{Sessions: out}, nil
}

func (s *service) GetScrollback(ctx context.Context, req schema.GetScrollbackRequest) (schema.GetScrollbackResponse, error) {
	if ctx == nil {
		return schema.GetScrollbackResponse{}, errors.New("missing context")
	}
	s.mu.Lock()
	sess, ok := s.sessions[req.SessionID]
	s.mu.Unlock()
	if !ok {
		return schema.GetScrollbackResponse{}, schema.ErrSessionNotFound
	}
	sess.mu.Lock()
	viewport := sess.viewportY
	sess.mu.Unlock()
	return schema.GetScrollbackResponse{Scrollback: sess.scrollbackText(), ViewportY: viewport}, nil
}
