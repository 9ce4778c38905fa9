package schema

import "encoding/json"

// ChunkType is the discriminator for agent stream chunks.
type ChunkType string

const (
	// ChunkData carries agent output content.
	ChunkData ChunkType = "data"
	// ChunkToolCallApproval marks a checkpoint awaiting human approval.
	ChunkToolCallApproval ChunkType = "tool-call-approval"
	// ChunkDone marks natural stream exhaustion.
	ChunkDone ChunkType = "done"
	// ChunkError carries a stream-level failure.
	ChunkError ChunkType = "error"
)

// AgentChunk is the closed variant type for agent stream chunks. Exactly the
// fields for the given Type are populated.
type AgentChunk struct {
	Type      ChunkType       `json:"type"`
	Text      string          `json:"text,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`
	RunID     RunID           `json:"run_id,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// AgentEventType describes events on a chat session's emitter.
type AgentEventType string

const (
	// AgentEventChunk forwards one stream chunk verbatim.
	AgentEventChunk AgentEventType = "chunk"
	// AgentEventDone signals terminal completion of the stream.
	AgentEventDone AgentEventType = "done"
	// AgentEventError surfaces a drain or resume failure.
	AgentEventError AgentEventType = "error"
)

// AgentEvent is delivered to subscribers of one chat session.
type AgentEvent struct {
	Session ChatSessionID  `json:"session"`
	Type    AgentEventType `json:"type"`
	Chunk   *AgentChunk    `json:"chunk,omitempty"`
	Err     string         `json:"error,omitempty"`
}

// OutputEvent carries filtered terminal output for one session.
type OutputEvent struct {
	Workspace WorkspaceID `json:"workspace"`
	SessionID SessionID   `json:"session_id"`
	Pane      PaneID      `json:"pane,omitempty"`
	Data      string      `json:"data"`
}

// SessionEventType describes terminal session lifecycle changes.
type SessionEventType string

const (
	// SessionEventExit reports backing process exit.
	SessionEventExit SessionEventType = "exit"
	// SessionEventStatus reports a state machine transition.
	SessionEventStatus SessionEventType = "status"
)

// SessionEvent reports a terminal session lifecycle change.
type SessionEvent struct {
	Workspace WorkspaceID      `json:"workspace"`
	SessionID SessionID        `json:"session_id"`
	Type      SessionEventType `json:"type"`
	Status    SessionStatus    `json:"status,omitempty"`
	ExitCode  int              `json:"exit_code,omitempty"`
	Signal    string           `json:"signal,omitempty"`
}

// TabEventType describes tab lifecycle or topology changes.
type TabEventType string

const (
	// TabEventCreated indicates a tab was created.
	TabEventCreated TabEventType = "created"
	// TabEventRemoved indicates a tab was removed.
	TabEventRemoved TabEventType = "removed"
	// TabEventActivated indicates a tab became active.
	TabEventActivated TabEventType = "activated"
	// TabEventUpdated indicates a tab's topology or layout changed.
	TabEventUpdated TabEventType = "updated"
)

// TabEvent represents a change to a tab or the tab list.
type TabEvent struct {
	Workspace WorkspaceID  `json:"workspace"`
	Type      TabEventType `json:"type"`
	Tab       TabSnapshot  `json:"tab"`
	ActiveTab TabID        `json:"active_tab,omitempty"`
}

// WorkspaceEventType describes workspace lifecycle changes.
type WorkspaceEventType string

const (
	// WorkspaceEventCreated indicates a workspace was created.
	WorkspaceEventCreated WorkspaceEventType = "created"
	// WorkspaceEventDeleted indicates a workspace was deleted.
	WorkspaceEventDeleted WorkspaceEventType = "deleted"
	// WorkspaceEventActivated indicates a workspace became active.
	WorkspaceEventActivated WorkspaceEventType = "activated"
	// WorkspaceEventUpdated indicates workspace state changed.
	WorkspaceEventUpdated WorkspaceEventType = "updated"
)

// WorkspaceEvent represents a change to a workspace or the workspace list.
type WorkspaceEvent struct {
	Type            WorkspaceEventType `json:"type"`
	Workspace       WorkspaceSnapshot  `json:"workspace"`
	ActiveWorkspace WorkspaceID        `json:"active_workspace,omitempty"`
}
