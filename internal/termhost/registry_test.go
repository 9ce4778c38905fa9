package termhost

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pkt.systems/termspace/schema"
)

type fakeBacking struct {
	mu         sync.Mutex
	id         schema.SessionID
	key        schema.TerminalKey
	alive      bool
	scrollback string
	cols       int
	rows       int
	terminated bool
	lastActive time.Time
}

func (f *fakeBacking) ID() schema.SessionID    { return f.id }
func (f *fakeBacking) Key() schema.TerminalKey { return f.key }

func (f *fakeBacking) Write(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.alive {
		return schema.ErrSessionNotLive
	}
	f.scrollback += string(data)
	return nil
}

func (f *fakeBacking) Resize(cols, rows int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cols, f.rows = cols, rows
	return nil
}

func (f *fakeBacking) Scrollback() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scrollback
}

func (f *fakeBacking) Subscribe() (<-chan Output, func()) {
	ch := make(chan Output)
	close(ch)
	return ch, func() {}
}

func (f *fakeBacking) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakeBacking) Snapshot() schema.SessionSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return schema.SessionSnapshot{
		ID:           f.id,
		Key:          f.key,
		Alive:        f.alive,
		Cols:         f.cols,
		Rows:         f.rows,
		LastActiveAt: f.lastActive,
	}
}

func (f *fakeBacking) Terminate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive = false
	f.terminated = true
	return nil
}

func (f *fakeBacking) kill() {
	f.mu.Lock()
	f.alive = false
	f.mu.Unlock()
}

func fakeSpawner(counter *atomic.Int64) SpawnFunc {
	return func(ctx context.Context, key schema.TerminalKey, cols, rows int) (Backing, error) {
		n := counter.Add(1)
		return &fakeBacking{
			id:         schema.SessionID(fmt.Sprintf("%s-%d", key.Terminal, n)),
			key:        key,
			alive:      true,
			cols:       cols,
			rows:       rows,
			lastActive: time.Now(),
		}, nil
	}
}

func TestRegistryAttachSpawnsOnce(t *testing.T) {
	var spawns atomic.Int64
	reg := NewRegistry(fakeSpawner(&spawns), nil)
	key := schema.TerminalKey{Workspace: "ws", Terminal: "term-1"}

	first, err := reg.Attach(context.Background(), key, 80, 24)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if !first.IsNew {
		t.Fatalf("expected first attach to spawn")
	}
	if first.WasRecovered {
		t.Fatalf("fresh spawn must not report recovery")
	}

	if err := first.Backing.Write([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	second, err := reg.Attach(context.Background(), key, 120, 40)
	if err != nil {
		t.Fatalf("reattach: %v", err)
	}
	if second.IsNew {
		t.Fatalf("reattach must reuse the live backing")
	}
	if !second.WasRecovered {
		t.Fatalf("reattach must report recovery")
	}
	if second.Backing.ID() != first.Backing.ID() {
		t.Fatalf("reattach returned a different backing: %s vs %s", second.Backing.ID(), first.Backing.ID())
	}
	if second.Scrollback != "hello" {
		t.Fatalf("reattach scrollback = %q, want %q", second.Scrollback, "hello")
	}
	if got := spawns.Load(); got != 1 {
		t.Fatalf("spawn count = %d, want 1", got)
	}
}

func TestRegistryConcurrentAttachesConverge(t *testing.T) {
	var spawns atomic.Int64
	slowSpawn := func(ctx context.Context, key schema.TerminalKey, cols, rows int) (Backing, error) {
		time.Sleep(20 * time.Millisecond)
		return fakeSpawner(&spawns)(ctx, key, cols, rows)
	}
	reg := NewRegistry(slowSpawn, nil)
	key := schema.TerminalKey{Workspace: "ws", Terminal: "term-1"}

	const attachers = 8
	results := make([]AttachResult, attachers)
	errs := make([]error, attachers)
	var wg sync.WaitGroup
	for i := range attachers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = reg.Attach(context.Background(), key, 80, 24)
		}(i)
	}
	wg.Wait()

	newCount := 0
	for i := range attachers {
		if errs[i] != nil {
			t.Fatalf("attach %d: %v", i, errs[i])
		}
		if results[i].IsNew {
			newCount++
		}
		if results[i].Backing.ID() != results[0].Backing.ID() {
			t.Fatalf("attach %d got a different backing", i)
		}
	}
	if newCount != 1 {
		t.Fatalf("new count = %d, want 1", newCount)
	}
	if got := spawns.Load(); got != 1 {
		t.Fatalf("spawn count = %d, want 1", got)
	}
}

func TestRegistryRespawnsDeadBacking(t *testing.T) {
	var spawns atomic.Int64
	reg := NewRegistry(fakeSpawner(&spawns), nil)
	key := schema.TerminalKey{Workspace: "ws", Terminal: "term-1"}

	first, err := reg.Attach(context.Background(), key, 80, 24)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	first.Backing.(*fakeBacking).kill()

	second, err := reg.Attach(context.Background(), key, 80, 24)
	if err != nil {
		t.Fatalf("reattach: %v", err)
	}
	if !second.IsNew {
		t.Fatalf("dead backing must be replaced by a fresh spawn")
	}
	if second.Backing.ID() == first.Backing.ID() {
		t.Fatalf("respawn reused the dead backing")
	}
	if got := spawns.Load(); got != 2 {
		t.Fatalf("spawn count = %d, want 2", got)
	}
}

func TestRegistryAttachRetriesAfterSpawnFailure(t *testing.T) {
	var calls atomic.Int64
	spawn := func(ctx context.Context, key schema.TerminalKey, cols, rows int) (Backing, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("shell missing")
		}
		return &fakeBacking{id: "s2", key: key, alive: true}, nil
	}
	reg := NewRegistry(spawn, nil)
	key := schema.TerminalKey{Workspace: "ws", Terminal: "term-1"}

	if _, err := reg.Attach(context.Background(), key, 80, 24); err == nil {
		t.Fatalf("expected first attach to fail")
	}
	result, err := reg.Attach(context.Background(), key, 80, 24)
	if err != nil {
		t.Fatalf("second attach: %v", err)
	}
	if !result.IsNew {
		t.Fatalf("expected second attach to spawn")
	}
}

func TestRegistryCloseRemovesSession(t *testing.T) {
	var spawns atomic.Int64
	reg := NewRegistry(fakeSpawner(&spawns), nil)
	key := schema.TerminalKey{Workspace: "ws", Terminal: "term-1"}

	result, err := reg.Attach(context.Background(), key, 80, 24)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := reg.Close(result.Backing.ID()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !result.Backing.(*fakeBacking).terminated {
		t.Fatalf("close must terminate the backing")
	}
	if err := reg.Close(result.Backing.ID()); !errors.Is(err, schema.ErrSessionNotFound) {
		t.Fatalf("second close err = %v, want ErrSessionNotFound", err)
	}

	// The key is free again after close.
	next, err := reg.Attach(context.Background(), key, 80, 24)
	if err != nil {
		t.Fatalf("reattach after close: %v", err)
	}
	if !next.IsNew {
		t.Fatalf("reattach after close must spawn fresh")
	}
}

func TestRegistryReapIdleSkipsLive(t *testing.T) {
	var spawns atomic.Int64
	reg := NewRegistry(fakeSpawner(&spawns), nil)
	live, err := reg.Attach(context.Background(), schema.TerminalKey{Workspace: "ws", Terminal: "live"}, 80, 24)
	if err != nil {
		t.Fatalf("attach live: %v", err)
	}
	dead, err := reg.Attach(context.Background(), schema.TerminalKey{Workspace: "ws", Terminal: "dead"}, 80, 24)
	if err != nil {
		t.Fatalf("attach dead: %v", err)
	}
	fb := dead.Backing.(*fakeBacking)
	fb.kill()
	fb.mu.Lock()
	fb.lastActive = time.Now().Add(-time.Hour)
	fb.mu.Unlock()

	if got := reg.ReapIdle(time.Minute); got != 1 {
		t.Fatalf("reaped = %d, want 1", got)
	}
	if _, ok := reg.Lookup(dead.Backing.ID()); ok {
		t.Fatalf("dead session still registered after reap")
	}
	if _, ok := reg.Lookup(live.Backing.ID()); !ok {
		t.Fatalf("live session reaped")
	}
}
