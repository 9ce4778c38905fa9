// Package eventbus fans agent events out to per-chat-session subscribers.
// Each session's emitter lives exactly as long as the session: Close releases
// every subscriber channel so abandoned sessions do not leak.
package eventbus

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/termspace/schema"
)

type subscriber struct {
	ch   chan schema.AgentEvent
	once sync.Once
}

func (s *subscriber) release() {
	s.once.Do(func() { close(s.ch) })
}

// Bus fans events out to per-session subscribers.
type Bus struct {
	mu    sync.Mutex
	subs  map[schema.ChatSessionID]map[*subscriber]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[schema.ChatSessionID]map[*subscriber]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber for the session and returns a channel plus
// cancel. Cancel closes the channel; cancel after Close is a no-op.
func (b *Bus) Subscribe(sessionID schema.ChatSessionID) (<-chan schema.AgentEvent, func()) {
	if b == nil {
		return nil, func() {}
	}
	sub := &subscriber{ch: make(chan schema.AgentEvent, b.depth)}
	b.mu.Lock()
	sessionSubs := b.subs[sessionID]
	if sessionSubs == nil {
		sessionSubs = make(map[*subscriber]struct{})
		b.subs[sessionID] = sessionSubs
	}
	sessionSubs[sub] = struct{}{}
	count := len(sessionSubs)
	b.mu.Unlock()
	if b.log != nil {
		b.log.With("chat", sessionID).Debug("eventbus subscribe", "subs", count)
	}
	return sub.ch, func() {
		b.mu.Lock()
		if subs := b.subs[sessionID]; subs != nil {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(b.subs, sessionID)
			}
		}
		b.mu.Unlock()
		sub.release()
		if b.log != nil {
			b.log.With("chat", sessionID).Debug("eventbus unsubscribe")
		}
	}
}

// Publish delivers an event to the session's subscribers without blocking.
func (b *Bus) Publish(event schema.AgentEvent) {
	if b == nil {
		return
	}
	b.mu.Lock()
	sessionSubs := b.subs[event.Session]
	subs := make([]*subscriber, 0, len(sessionSubs))
	for sub := range sessionSubs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()
	if len(subs) == 0 {
		return
	}
	dropped := 0
	for _, sub := range subs {
		select {
		case sub.ch <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 && b.log != nil {
		b.log.With("chat", event.Session).Trace("eventbus dropped", "count", dropped)
	}
}

// Close releases every subscriber for the session. Used when a session's
// stream completes and no resumption can occur.
func (b *Bus) Close(sessionID schema.ChatSessionID) {
	if b == nil {
		return
	}
	b.mu.Lock()
	sessionSubs := b.subs[sessionID]
	delete(b.subs, sessionID)
	b.mu.Unlock()
	for sub := range sessionSubs {
		sub.release()
	}
	if len(sessionSubs) > 0 && b.log != nil {
		b.log.With("chat", sessionID).Debug("eventbus session closed", "subs", len(sessionSubs))
	}
}
