package termspace

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/termspace/core"
	"pkt.systems/termspace/internal/termhost"
	"pkt.systems/termspace/schema"
)

// localTransport adapts the terminal host client to the core transport
// interface. The client is built on first use so the host has time to write
// its token file when both run in the same process.
type localTransport struct {
	dir string
	log pslog.Logger

	mu     sync.Mutex
	client *termhost.Client
}

func newLocalTransport(dir string, logger pslog.Logger) *localTransport {
	return &localTransport{dir: dir, log: logger}
}

func (t *localTransport) hostClient() (*termhost.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		return t.client, nil
	}
	client, err := termhost.NewClient(t.dir, t.log)
	if err != nil {
		return nil, err
	}
	t.client = client
	return client, nil
}

func (t *localTransport) Attach(ctx context.Context, key schema.TerminalKey, cols, rows int) (core.TransportAttach, error) {
	client, err := t.hostClient()
	if err != nil {
		return core.TransportAttach{}, err
	}
	id, isNew, scrollback, wasRecovered, err := client.Attach(ctx, key, cols, rows)
	if err != nil {
		return core.TransportAttach{}, err
	}
	return core.TransportAttach{
		Session:      id,
		IsNew:        isNew,
		Scrollback:   scrollback,
		WasRecovered: wasRecovered,
	}, nil
}

func (t *localTransport) Write(ctx context.Context, id schema.SessionID, data []byte) error {
	client, err := t.hostClient()
	if err != nil {
		return err
	}
	return client.Write(ctx, id, data)
}

func (t *localTransport) Resize(ctx context.Context, id schema.SessionID, cols, rows int) error {
	client, err := t.hostClient()
	if err != nil {
		return err
	}
	return client.Resize(ctx, id, cols, rows)
}

func (t *localTransport) Close(ctx context.Context, id schema.SessionID) error {
	client, err := t.hostClient()
	if err != nil {
		return err
	}
	return client.Close(ctx, id)
}

func (t *localTransport) Stream(ctx context.Context, id schema.SessionID) (<-chan core.TransportOutput, error) {
	client, err := t.hostClient()
	if err != nil {
		return nil, err
	}
	src, err := client.Stream(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make(chan core.TransportOutput, 64)
	go func() {
		defer close(out)
		for msg := range src {
			converted := core.TransportOutput{Data: msg.Data}
			if msg.Exit != nil {
				converted.Exit = &core.TransportExit{
					Code:   msg.Exit.Code,
					Signal: msg.Exit.Signal,
				}
			}
			select {
			case out <- converted:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
