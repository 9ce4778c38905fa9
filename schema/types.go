package schema

import "time"

// WorkspaceID identifies a workspace.
type WorkspaceID string

// ProjectID identifies a project grouping workspaces.
type ProjectID string

// WorktreeID identifies a filesystem checkout bound to a branch.
type WorktreeID string

// TabID identifies a tab within a workspace.
type TabID string

// PaneID identifies a leaf pane.
type PaneID string

// SessionID identifies a terminal session.
type SessionID string

// VMID identifies a remote compute instance hosting cloud sessions.
type VMID string

// TerminalID identifies a terminal slot on a workspace or VM.
type TerminalID string

// ChatSessionID identifies an agent chat session.
type ChatSessionID string

// RunID identifies an upstream agent run needed to resume a stream.
type RunID string

// ModelID identifies an LLM model.
type ModelID string

// PaneKind describes what a leaf pane renders.
type PaneKind string

const (
	// PaneTerminal is a pane bound to a terminal session.
	PaneTerminal PaneKind = "terminal"
	// PaneEditor is a pane hosting an editor surface.
	PaneEditor PaneKind = "editor"
	// PaneBrowser is a pane hosting an embedded browser.
	PaneBrowser PaneKind = "browser"
	// PanePreview is a pane hosting a rendered preview.
	PanePreview PaneKind = "preview"
)

// ValidPaneKind reports whether kind is a known pane kind.
func ValidPaneKind(kind PaneKind) bool {
	switch kind {
	case PaneTerminal, PaneEditor, PaneBrowser, PanePreview:
		return true
	default:
		return false
	}
}

// SplitOrientation describes the axis of a binary split.
type SplitOrientation string

const (
	// SplitVertical places panes side by side.
	SplitVertical SplitOrientation = "vertical"
	// SplitHorizontal stacks panes top over bottom.
	SplitHorizontal SplitOrientation = "horizontal"
)

// ValidSplitOrientation reports whether o is a known orientation.
func ValidSplitOrientation(o SplitOrientation) bool {
	return o == SplitVertical || o == SplitHorizontal
}

// SessionStatus describes the lifecycle state of a terminal session.
type SessionStatus string

const (
	// SessionUninitialized means no attach has happened yet.
	SessionUninitialized SessionStatus = "uninitialized"
	// SessionAttaching means an attach round-trip is in flight.
	SessionAttaching SessionStatus = "attaching"
	// SessionLive means the session has a live transport.
	SessionLive SessionStatus = "live"
	// SessionSuspended means the session is backgrounded but resumable.
	SessionSuspended SessionStatus = "suspended"
	// SessionLost means the transport dropped; the backing process keeps running.
	SessionLost SessionStatus = "lost"
	// SessionRecovering means a reattach to the existing backing process is in flight.
	SessionRecovering SessionStatus = "recovering"
	// SessionDead means the session was explicitly closed or the process exited.
	SessionDead SessionStatus = "dead"
)

// PermissionMode describes how agent tool-call checkpoints are gated.
type PermissionMode string

const (
	// PermissionDefault requires explicit approval for every checkpoint.
	PermissionDefault PermissionMode = "default"
	// PermissionAcceptEdits auto-approves file-mutation tools.
	PermissionAcceptEdits PermissionMode = "acceptEdits"
	// PermissionPlan suspends on every checkpoint.
	PermissionPlan PermissionMode = "plan"
)

// TerminalKey identifies the backing process for a terminal session. At most
// one backing process exists per key; reattaching with the same key must reuse
// it.
type TerminalKey struct {
	Workspace WorkspaceID `json:"workspace"`
	VM        VMID        `json:"vm,omitempty"`
	Terminal  TerminalID  `json:"terminal"`
}

// WorktreeRef identifies a checkout available to a workspace.
type WorktreeRef struct {
	ID     WorktreeID `json:"id"`
	Path   string     `json:"path"`
	Branch string     `json:"branch"`
}

// PaneSnapshot is a read-only view of a pane for transports.
type PaneSnapshot struct {
	ID        PaneID    `json:"id"`
	Kind      PaneKind  `json:"kind"`
	SessionID SessionID `json:"session_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TabSnapshot is a read-only view of a tab for transports. A group tab carries
// ChildTabIDs and Layout; a simple tab carries Pane.
type TabSnapshot struct {
	ID          TabID         `json:"id"`
	Workspace   WorkspaceID   `json:"workspace"`
	Title       string        `json:"title,omitempty"`
	Pane        *PaneSnapshot `json:"pane,omitempty"`
	ChildTabIDs []TabID       `json:"child_tab_ids,omitempty"`
	Layout      *SplitNode    `json:"layout,omitempty"`
	ParentGroup TabID         `json:"parent_group,omitempty"`
	Active      bool          `json:"active"`
}

// IsGroup reports whether the snapshot describes a group tab.
func (t TabSnapshot) IsGroup() bool {
	return len(t.ChildTabIDs) > 0
}

// WorkspaceSnapshot is a read-only view of a workspace for transports.
type WorkspaceSnapshot struct {
	ID        WorkspaceID `json:"id"`
	Project   ProjectID   `json:"project"`
	Worktree  WorktreeRef `json:"worktree"`
	TabOrder  []TabID     `json:"tab_order"`
	ActiveTab TabID       `json:"active_tab,omitempty"`
}

// SessionSnapshot is a read-only view of a terminal session for transports.
type SessionSnapshot struct {
	ID           SessionID     `json:"id"`
	Key          TerminalKey   `json:"key"`
	Pane         PaneID        `json:"pane,omitempty"`
	Status       SessionStatus `json:"status"`
	Cols         int           `json:"cols"`
	Rows         int           `json:"rows"`
	Alive        bool          `json:"alive"`
	WasRecovered bool          `json:"was_recovered"`
	StartedAt    time.Time     `json:"started_at"`
	LastActiveAt time.Time     `json:"last_active_at"`
}
