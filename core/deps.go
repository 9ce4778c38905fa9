package core

import (
	"pkt.systems/pslog"
	"pkt.systems/termspace/internal/termfilter"
)

// ServiceDeps captures dependencies for the core service. Local is required
// for local terminal attaches; Cloud may be nil when no remote compute is
// configured. Filters is the output filter registry; a default chain is built
// when nil.
type ServiceDeps struct {
	Local     TerminalTransport
	Cloud     TerminalTransport
	EventSink EventSink
	Filters   *termfilter.Chain
	Logger    pslog.Logger
}
