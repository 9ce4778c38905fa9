package core

import (
	"context"

	"pkt.systems/termspace/schema"
)

// Service is the transport-agnostic API for managing workspaces, the pane/tab
// tree, and terminal sessions.
type Service interface {
	CreateWorkspace(ctx context.Context, req schema.CreateWorkspaceRequest) (schema.CreateWorkspaceResponse, error)
	DeleteWorkspace(ctx context.Context, req schema.DeleteWorkspaceRequest) (schema.DeleteWorkspaceResponse, error)
	ListWorkspaces(ctx context.Context, req schema.ListWorkspacesRequest) (schema.ListWorkspacesResponse, error)
	SetActiveWorkspace(ctx context.Context, req schema.SetActiveWorkspaceRequest) (schema.SetActiveWorkspaceResponse, error)
	CreateTab(ctx context.Context, req schema.CreateTabRequest) (schema.CreateTabResponse, error)
	RemoveTab(ctx context.Context, req schema.RemoveTabRequest) (schema.RemoveTabResponse, error)
	SetActiveTab(ctx context.Context, req schema.SetActiveTabRequest) (schema.SetActiveTabResponse, error)
	ReorderTabs(ctx context.Context, req schema.ReorderTabsRequest) (schema.ReorderTabsResponse, error)
	SplitPane(ctx context.Context, req schema.SplitPaneRequest) (schema.SplitPaneResponse, error)
	GroupTabs(ctx context.Context, req schema.GroupTabsRequest) (schema.GroupTabsResponse, error)
	UngroupTab(ctx context.Context, req schema.UngroupTabRequest) (schema.UngroupTabResponse, error)
	MoveOutOfGroup(ctx context.Context, req schema.MoveOutOfGroupRequest) (schema.MoveOutOfGroupResponse, error)
	SetParent(ctx context.Context, req schema.SetParentRequest) (schema.SetParentResponse, error)
	UpdateLayout(ctx context.Context, req schema.UpdateLayoutRequest) (schema.UpdateLayoutResponse, error)
	AttachTerminal(ctx context.Context, req schema.AttachTerminalRequest) (schema.AttachTerminalResponse, error)
	ResizeTerminal(ctx context.Context, req schema.ResizeTerminalRequest) (schema.ResizeTerminalResponse, error)
	WriteTerminal(ctx context.Context, req schema.WriteTerminalRequest) (schema.WriteTerminalResponse, error)
	CloseTerminal(ctx context.Context, req schema.CloseTerminalRequest) (schema.CloseTerminalResponse, error)
	ListSessions(ctx context.Context, req schema.ListSessionsRequest) (schema.ListSessionsResponse, error)
	GetScrollback(ctx context.Context, req schema.GetScrollbackRequest) (schema.GetScrollbackResponse, error)
}
