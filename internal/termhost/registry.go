package termhost

import (
	"context"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/termspace/schema"
)

// SpawnFunc creates a new backing process for a key.
type SpawnFunc func(ctx context.Context, key schema.TerminalKey, cols, rows int) (Backing, error)

// AttachResult reports the outcome of a registry attach.
type AttachResult struct {
	Backing      Backing
	IsNew        bool
	Scrollback   string
	WasRecovered bool
}

type claim struct {
	ready   chan struct{}
	backing Backing
	err     error
}

// Registry enforces the one-backing-process-per-key invariant. Concurrent
// attaches for the same key resolve to the same backing: the first caller
// claims the key and spawns, later callers wait on the claim.
type Registry struct {
	mu     sync.Mutex
	spawn  SpawnFunc
	claims map[schema.TerminalKey]*claim
	byID   map[schema.SessionID]Backing
	log    pslog.Logger
}

// NewRegistry constructs a registry around a spawn function.
func NewRegistry(spawn SpawnFunc, logger pslog.Logger) *Registry {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Registry{
		spawn:  spawn,
		claims: make(map[schema.TerminalKey]*claim),
		byID:   make(map[schema.SessionID]Backing),
		log:    logger,
	}
}

// Attach returns the backing for the key, reusing a live one or spawning a
// fresh one. A reused backing replays its scrollback.
func (r *Registry) Attach(ctx context.Context, key schema.TerminalKey, cols, rows int) (AttachResult, error) {
	for {
		r.mu.Lock()
		existing := r.claims[key]
		if existing == nil {
			c := &claim{ready: make(chan struct{})}
			r.claims[key] = c
			r.mu.Unlock()

			backing, err := r.spawn(ctx, key, cols, rows)
			r.mu.Lock()
			c.backing = backing
			c.err = err
			if err != nil {
				delete(r.claims, key)
			} else {
				r.byID[backing.ID()] = backing
			}
			r.mu.Unlock()
			close(c.ready)
			if err != nil {
				r.log.Warn("host attach spawn failed", "terminal", key.Terminal, "err", err)
				return AttachResult{}, err
			}
			r.log.Info("host attach new", "terminal", key.Terminal, "session", backing.ID())
			return AttachResult{Backing: backing, IsNew: true}, nil
		}
		r.mu.Unlock()

		select {
		case <-existing.ready:
		case <-ctx.Done():
			return AttachResult{}, ctx.Err()
		}
		if existing.err != nil {
			// The claimer failed; retry, possibly becoming the claimer.
			continue
		}
		backing := existing.backing
		if !backing.Alive() {
			// Dead backing is not resumable locally; replace it.
			r.mu.Lock()
			if r.claims[key] == existing {
				delete(r.claims, key)
				delete(r.byID, backing.ID())
			}
			r.mu.Unlock()
			continue
		}
		if err := backing.Resize(cols, rows); err != nil {
			r.log.Warn("host attach resize failed", "session", backing.ID(), "err", err)
		}
		r.log.Info("host attach reuse", "terminal", key.Terminal, "session", backing.ID())
		return AttachResult{
			Backing:      backing,
			IsNew:        false,
			Scrollback:   backing.Scrollback(),
			WasRecovered: true,
		}, nil
	}
}

// Lookup returns the backing for a session id.
func (r *Registry) Lookup(id schema.SessionID) (Backing, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	backing, ok := r.byID[id]
	return backing, ok
}

// Close terminates the backing for a session id and drops it from the
// registry.
func (r *Registry) Close(id schema.SessionID) error {
	r.mu.Lock()
	backing, ok := r.byID[id]
	if ok {
		delete(r.byID, id)
		if c := r.claims[backing.Key()]; c != nil && c.backing == backing {
			delete(r.claims, backing.Key())
		}
	}
	r.mu.Unlock()
	if !ok {
		return schema.ErrSessionNotFound
	}
	return backing.Terminate()
}

// Sessions returns snapshots for every registered backing.
func (r *Registry) Sessions() []schema.SessionSnapshot {
	r.mu.Lock()
	backings := make([]Backing, 0, len(r.byID))
	for _, backing := range r.byID {
		backings = append(backings, backing)
	}
	r.mu.Unlock()
	out := make([]schema.SessionSnapshot, 0, len(backings))
	for _, backing := range backings {
		out = append(out, backing.Snapshot())
	}
	return out
}

// ReapIdle terminates dead sessions idle for longer than the timeout and
// returns the number reaped. Live sessions are never reaped: a Lost UI keeps
// its backing process until explicit close.
func (r *Registry) ReapIdle(timeout time.Duration) int {
	if timeout <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-timeout)
	r.mu.Lock()
	var stale []Backing
	for id, backing := range r.byID {
		if backing.Alive() {
			continue
		}
		if backing.Snapshot().LastActiveAt.After(cutoff) {
			continue
		}
		delete(r.byID, id)
		if c := r.claims[backing.Key()]; c != nil && c.backing == backing {
			delete(r.claims, backing.Key())
		}
		stale = append(stale, backing)
	}
	r.mu.Unlock()
	for _, backing := range stale {
		_ = backing.Terminate()
	}
	if len(stale) > 0 {
		r.log.Info("host reaped idle sessions", "count", len(stale))
	}
	return len(stale)
}

// CloseAll terminates every backing. Used on host shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	backings := make([]Backing, 0, len(r.byID))
	for _, backing := range r.byID {
		backings = append(backings, backing)
	}
	r.byID = make(map[schema.SessionID]Backing)
	r.claims = make(map[schema.TerminalKey]*claim)
	r.mu.Unlock()
	for _, backing := range backings {
		_ = backing.Terminate()
	}
}
