package core

import "pkt.systems/termspace/schema"

// EventSink receives workspace, tab, session, and output events from the
// core service.
type EventSink interface {
	OnOutput(event schema.OutputEvent)
	OnSessionEvent(event schema.SessionEvent)
	OnTabEvent(event schema.TabEvent)
	OnWorkspaceEvent(event schema.WorkspaceEvent)
}
