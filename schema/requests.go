package schema

// Workspace lifecycle.

// CreateWorkspaceRequest describes a request to create a workspace.
type CreateWorkspaceRequest struct {
	Project  ProjectID
	Worktree WorktreeRef
}

// CreateWorkspaceResponse reports the created workspace.
type CreateWorkspaceResponse struct {
	Workspace WorkspaceSnapshot
}

// DeleteWorkspaceRequest describes a request to delete a workspace.
type DeleteWorkspaceRequest struct {
	WorkspaceID WorkspaceID
}

// DeleteWorkspaceResponse reports the deletion and the adjacent workspace
// selected to become active, if any.
type DeleteWorkspaceResponse struct {
	Deleted         WorkspaceSnapshot
	ActiveWorkspace WorkspaceID
}

// ListWorkspacesRequest describes a request to list workspaces.
type ListWorkspacesRequest struct {
	Project ProjectID
}

// ListWorkspacesResponse reports workspaces in tab order.
type ListWorkspacesResponse struct {
	Workspaces      []WorkspaceSnapshot
	ActiveWorkspace WorkspaceID
}

// SetActiveWorkspaceRequest describes a request to switch workspaces.
type SetActiveWorkspaceRequest struct {
	WorkspaceID WorkspaceID
}

// SetActiveWorkspaceResponse reports the activated workspace.
type SetActiveWorkspaceResponse struct {
	Workspace WorkspaceSnapshot
}

// Tab topology.

// CreateTabRequest describes a request to create a tab with one pane.
type CreateTabRequest struct {
	WorkspaceID WorkspaceID
	Kind        PaneKind
	Title       string
}

// CreateTabResponse reports the created tab.
type CreateTabResponse struct {
	Tab TabSnapshot
}

// RemoveTabRequest describes a request to remove a tab.
type RemoveTabRequest struct {
	WorkspaceID WorkspaceID
	TabID       TabID
}

// RemoveTabResponse reports the removed tab and the new active tab.
type RemoveTabResponse struct {
	Tab       TabSnapshot
	ActiveTab TabID
}

// SetActiveTabRequest describes a request to activate a tab.
type SetActiveTabRequest struct {
	WorkspaceID WorkspaceID
	TabID       TabID
}

// SetActiveTabResponse reports the activated tab.
type SetActiveTabResponse struct {
	Tab TabSnapshot
}

// ReorderTabsRequest describes a request to reorder top-level tabs.
type ReorderTabsRequest struct {
	WorkspaceID WorkspaceID
	Order       []TabID
}

// ReorderTabsResponse reports the new order.
type ReorderTabsResponse struct {
	Order []TabID
}

// SplitPaneRequest describes a request to split the pane of a tab.
type SplitPaneRequest struct {
	WorkspaceID WorkspaceID
	TabID       TabID
	Orientation SplitOrientation
	Kind        PaneKind
}

// SplitPaneResponse reports the group holding the split and the new sibling.
type SplitPaneResponse struct {
	Group   TabSnapshot
	Sibling TabSnapshot
}

// GroupTabsRequest describes a request to group tabs under a split tree.
type GroupTabsRequest struct {
	WorkspaceID WorkspaceID
	TabIDs      []TabID
}

// GroupTabsResponse reports the synthesized group tab.
type GroupTabsResponse struct {
	Group TabSnapshot
}

// UngroupTabRequest describes a request to dissolve a group.
type UngroupTabRequest struct {
	WorkspaceID WorkspaceID
	GroupID     TabID
}

// UngroupTabResponse reports the restored top-level tabs.
type UngroupTabResponse struct {
	Tabs []TabSnapshot
}

// MoveOutOfGroupRequest describes a request to move a child out of its group.
type MoveOutOfGroupRequest struct {
	WorkspaceID   WorkspaceID
	TabID         TabID
	ParentGroupID TabID
}

// MoveOutOfGroupResponse reports the moved tab and the surviving group, if
// the group still has children.
type MoveOutOfGroupResponse struct {
	Tab   TabSnapshot
	Group *TabSnapshot
}

// SetParentRequest describes a request to rewrite a tab's parent-group
// back-reference.
type SetParentRequest struct {
	WorkspaceID   WorkspaceID
	TabID         TabID
	ParentGroupID TabID
}

// SetParentResponse reports the updated tab.
type SetParentResponse struct {
	Tab TabSnapshot
}

// UpdateLayoutRequest describes a request to replace a group's split tree.
type UpdateLayoutRequest struct {
	WorkspaceID WorkspaceID
	GroupID     TabID
	Layout      *SplitNode
}

// UpdateLayoutResponse reports the updated group.
type UpdateLayoutResponse struct {
	Group TabSnapshot
}

// Terminal sessions.

// AttachTerminalRequest binds a pane to a local or cloud terminal session.
// VM empty selects a local pseudo-terminal via the host process.
type AttachTerminalRequest struct {
	WorkspaceID WorkspaceID
	PaneID      PaneID
	VM          VMID
	Terminal    TerminalID
	Cols        int
	Rows        int
}

// AttachTerminalResponse reports the attach outcome. Scrollback is empty and
// WasRecovered false for a fresh session; a recovered session replays the
// serialized buffer and restores the saved viewport offset.
type AttachTerminalResponse struct {
	Session      SessionSnapshot
	IsNew        bool
	Scrollback   string
	WasRecovered bool
	ViewportY    int
}

// ResizeTerminalRequest forwards new dimensions to a live session.
type ResizeTerminalRequest struct {
	SessionID SessionID
	Cols      int
	Rows      int
}

// ResizeTerminalResponse reports the applied dimensions.
type ResizeTerminalResponse struct {
	Session SessionSnapshot
}

// WriteTerminalRequest sends input bytes to a live session.
type WriteTerminalRequest struct {
	SessionID SessionID
	Data      string
}

// WriteTerminalResponse acknowledges a write.
type WriteTerminalResponse struct{}

// CloseTerminalRequest terminates the backing process and releases the
// transport.
type CloseTerminalRequest struct {
	SessionID SessionID
}

// CloseTerminalResponse reports the final session snapshot.
type CloseTerminalResponse struct {
	Session SessionSnapshot
}

// ListSessionsRequest describes a request to list terminal sessions.
type ListSessionsRequest struct {
	WorkspaceID WorkspaceID
}

// ListSessionsResponse reports known sessions.
type ListSessionsResponse struct {
	Sessions []SessionSnapshot
}

// GetScrollbackRequest fetches the serialized buffer for a session.
type GetScrollbackRequest struct {
	SessionID SessionID
}

// GetScrollbackResponse reports the serialized buffer and saved viewport.
type GetScrollbackResponse struct {
	Scrollback string
	ViewportY  int
}
