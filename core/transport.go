package core

import (
	"context"

	"pkt.systems/termspace/schema"
)

// TransportAttach is the result of attaching through a transport.
type TransportAttach struct {
	Session      schema.SessionID
	IsNew        bool
	Scrollback   string
	WasRecovered bool
	ViewportY    int
}

// TransportOutput is one pushed message from a transport stream. Exit is set
// on the final message when the backing process terminated.
type TransportOutput struct {
	Data []byte
	Exit *TransportExit
}

// TransportExit reports backing process termination.
type TransportExit struct {
	Code   int
	Signal string
}

// TerminalTransport connects the service to backing terminal processes. The
// local implementation speaks to the host over its unix socket; a cloud
// implementation speaks to remote compute sessions keyed by the same triple.
type TerminalTransport interface {
	Attach(ctx context.Context, key schema.TerminalKey, cols, rows int) (TransportAttach, error)
	Write(ctx context.Context, id schema.SessionID, data []byte) error
	Resize(ctx context.Context, id schema.SessionID, cols, rows int) error
	Close(ctx context.Context, id schema.SessionID) error
	Stream(ctx context.Context, id schema.SessionID) (<-chan TransportOutput, error)
}
