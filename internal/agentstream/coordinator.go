// Package agentstream coordinates long-lived AI agent output streams: it
// drains chunks to per-session emitters, suspends at approval checkpoints,
// and resumes upstream runs after an explicit decision.
package agentstream

import (
	"context"
	"errors"
	"io"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/termspace/internal/eventbus"
	"pkt.systems/termspace/internal/logx"
	"pkt.systems/termspace/schema"
)

// SessionContext is the per-chat-session execution context retained while a
// resumption might occur.
type SessionContext struct {
	WorkingDir string
	Model      schema.ModelID
	Permission schema.PermissionMode
	Extra      map[string]string
}

// Stream yields agent chunks. Next returns io.EOF on natural exhaustion.
type Stream interface {
	Next(ctx context.Context) (schema.AgentChunk, error)
	Close() error
}

// Runner launches and resumes upstream agent runs.
type Runner interface {
	Start(ctx context.Context, session schema.ChatSessionID, prompt string, sc SessionContext) (Stream, schema.RunID, error)
	Approve(ctx context.Context, run schema.RunID, sc SessionContext) (Stream, error)
	Decline(ctx context.Context, run schema.RunID, sc SessionContext) (Stream, error)
}

// fileMutationTools is the fixed allow-list auto-approved under acceptEdits.
var fileMutationTools = map[string]struct{}{
	"write_file":  {},
	"edit_file":   {},
	"create_file": {},
	"delete_file": {},
	"apply_patch": {},
}

func isFileMutationTool(name string) bool {
	_, ok := fileMutationTools[name]
	return ok
}

// Coordinator is the per-process agent stream state machine. Sessions are
// fully independent: a failure on one session never disturbs another.
type Coordinator struct {
	runner Runner
	bus    *eventbus.Bus
	log    pslog.Logger

	mu        sync.Mutex
	contexts  map[schema.ChatSessionID]SessionContext
	suspended map[schema.ChatSessionID]struct{}
	runIDs    map[schema.ChatSessionID]schema.RunID
}

// New constructs a coordinator on top of a runner and event bus.
func New(runner Runner, bus *eventbus.Bus, logger pslog.Logger) *Coordinator {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Coordinator{
		runner:    runner,
		bus:       bus,
		log:       logger,
		contexts:  make(map[schema.ChatSessionID]SessionContext),
		suspended: make(map[schema.ChatSessionID]struct{}),
		runIDs:    make(map[schema.ChatSessionID]schema.RunID),
	}
}

// Subscribe attaches a listener to one session's emitter.
func (c *Coordinator) Subscribe(session schema.ChatSessionID) (<-chan schema.AgentEvent, func()) {
	return c.bus.Subscribe(session)
}

// Suspended reports whether the session awaits an approval decision.
func (c *Coordinator) Suspended(session schema.ChatSessionID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.suspended[session]
	return ok
}

// Start launches an agent run for a session and drains it in the background.
func (c *Coordinator) Start(ctx context.Context, session schema.ChatSessionID, prompt string, sc SessionContext) error {
	if session == "" {
		return schema.ErrInvalidRequest
	}
	stream, runID, err := c.runner.Start(ctx, session, prompt, sc)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.contexts[session] = sc
	if runID != "" {
		c.runIDs[session] = runID
	}
	c.mu.Unlock()
	go c.drain(ctx, session, stream)
	return nil
}

// ResumeRequest carries an approval decision for a suspended session.
type ResumeRequest struct {
	Session      schema.ChatSessionID
	RunID        schema.RunID
	Approved     bool
	ExtraContext map[string]string
}

// Resume clears the suspension and continues the upstream run. The heavy
// lifting runs asynchronously; only payload validation errors are returned
// to the caller, with session state untouched.
func (c *Coordinator) Resume(ctx context.Context, req ResumeRequest) error {
	if req.Session == "" {
		return schema.ErrInvalidRequest
	}
	c.mu.Lock()
	runID := req.RunID
	if runID == "" {
		runID = c.runIDs[req.Session]
	}
	if runID == "" {
		c.mu.Unlock()
		return schema.ErrRunUnknown
	}
	if _, ok := c.suspended[req.Session]; !ok {
		c.mu.Unlock()
		return schema.ErrSessionNotSuspended
	}
	delete(c.suspended, req.Session)
	sc := c.contexts[req.Session]
	if len(req.ExtraContext) > 0 {
		if sc.Extra == nil {
			sc.Extra = make(map[string]string, len(req.ExtraContext))
		}
		for k, v := range req.ExtraContext {
			sc.Extra[k] = v
		}
		c.contexts[req.Session] = sc
	}
	c.mu.Unlock()

	go func() {
		log := logx.WithChat(ctx, req.Session)
		var stream Stream
		var err error
		if req.Approved {
			stream, err = c.runner.Approve(ctx, runID, sc)
		} else {
			stream, err = c.runner.Decline(ctx, runID, sc)
		}
		if err != nil {
			log.Warn("agent resume failed", "run", runID, "err", err)
			c.fail(req.Session, err)
			return
		}
		c.drain(ctx, req.Session, stream)
	}()
	return nil
}

// drain forwards stream chunks to the session emitter until exhaustion or a
// suspension point. Auto-approval swaps the stream handle in place so long
// approval chains never grow the stack, and only the final pass emits done.
func (c *Coordinator) drain(ctx context.Context, sessionID schema.ChatSessionID, stream Stream) {
	log := logx.WithChat(ctx, sessionID)
	defer func() { stream.Close() }()
	for {
		chunk, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Warn("agent drain failed", "err", err)
			c.fail(sessionID, err)
			return
		}
		if chunk.RunID != "" {
			c.mu.Lock()
			c.runIDs[sessionID] = chunk.RunID
			c.mu.Unlock()
		}
		// Every chunk is forwarded verbatim; suspension is an annotation on
		// top of the stream, not a filter.
		forwarded := chunk
		c.bus.Publish(schema.AgentEvent{
			Session: sessionID,
			Type:    schema.AgentEventChunk,
			Chunk:   &forwarded,
		})
		if chunk.Type != schema.ChunkToolCallApproval {
			continue
		}

		c.mu.Lock()
		sc := c.contexts[sessionID]
		runID := chunk.RunID
		if runID == "" {
			runID = c.runIDs[sessionID]
		}
		autoApprove := sc.Permission == schema.PermissionAcceptEdits && isFileMutationTool(chunk.ToolName)
		if !autoApprove {
			c.suspended[sessionID] = struct{}{}
		}
		c.mu.Unlock()

		if !autoApprove {
			log.Info("agent stream suspended", "tool", chunk.ToolName, "run", runID)
			return
		}
		resumed, err := c.runner.Approve(ctx, runID, sc)
		if err != nil {
			log.Warn("agent auto-approve failed", "tool", chunk.ToolName, "err", err)
			c.fail(sessionID, err)
			return
		}
		log.Debug("agent auto-approved", "tool", chunk.ToolName, "run", runID)
		stream.Close()
		stream = resumed
	}

	c.mu.Lock()
	_, isSuspended := c.suspended[sessionID]
	if !isSuspended {
		delete(c.runIDs, sessionID)
		delete(c.contexts, sessionID)
	}
	c.mu.Unlock()
	if isSuspended {
		return
	}
	c.bus.Publish(schema.AgentEvent{Session: sessionID, Type: schema.AgentEventDone})
	log.Debug("agent stream done")
}

// fail surfaces one error event on the emitter and clears session state so a
// retry starts fresh.
func (c *Coordinator) fail(sessionID schema.ChatSessionID, err error) {
	c.mu.Lock()
	delete(c.suspended, sessionID)
	delete(c.runIDs, sessionID)
	delete(c.contexts, sessionID)
	c.mu.Unlock()
	c.bus.Publish(schema.AgentEvent{
		Session: sessionID,
		Type:    schema.AgentEventError,
		Err:     err.Error(),
	})
}

// CloseSession releases the session's emitter and any retained state.
func (c *Coordinator) CloseSession(sessionID schema.ChatSessionID) {
	c.mu.Lock()
	delete(c.suspended, sessionID)
	delete(c.runIDs, sessionID)
	delete(c.contexts, sessionID)
	c.mu.Unlock()
	c.bus.Close(sessionID)
}
