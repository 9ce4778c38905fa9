package eventbus

import (
	"testing"
	"time"

	"pkt.systems/termspace/schema"
)

func TestSubscribeAndPublish(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe("chat-1")
	defer cancel()

	event := schema.AgentEvent{
		Session: "chat-1",
		Type:    schema.AgentEventChunk,
		Chunk:   &schema.AgentChunk{Type: schema.ChunkData, Text: "hi"},
	}
	bus.Publish(event)

	select {
	case got := <-ch:
		if got.Type != schema.AgentEventChunk {
			t.Fatalf("expected chunk event, got %v", got.Type)
		}
		if got.Chunk == nil || got.Chunk.Text != "hi" {
			t.Fatalf("unexpected payload: %+v", got.Chunk)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for event")
	}
}

func TestSessionsIsolated(t *testing.T) {
	bus := New(nil)
	ch1, cancel1 := bus.Subscribe("chat-1")
	defer cancel1()
	_, cancel2 := bus.Subscribe("chat-2")
	defer cancel2()

	bus.Publish(schema.AgentEvent{Session: "chat-2", Type: schema.AgentEventDone})
	select {
	case got := <-ch1:
		t.Fatalf("chat-1 received chat-2 event: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe("chat-1")
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed")
	}
}

func TestCloseReleasesSubscribers(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe("chat-1")
	bus.Close("chat-1")
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed by Close")
	}
	// Cancel after Close must not panic.
	cancel()
}

func TestPublishDoesNotBlockWhenFull(t *testing.T) {
	bus := New(nil)
	bus.depth = 1
	_, cancel := bus.Subscribe("chat-1")
	defer cancel()

	bus.Publish(schema.AgentEvent{Session: "chat-1", Type: schema.AgentEventChunk})
	done := make(chan struct{})
	go func() {
		bus.Publish(schema.AgentEvent{Session: "chat-1", Type: schema.AgentEventChunk})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("publish blocked on full channel")
	}
}
