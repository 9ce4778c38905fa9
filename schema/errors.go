package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrWorkspaceNotFound indicates a requested workspace could not be found.
	ErrWorkspaceNotFound = errors.New("workspace not found")
	// ErrTabNotFound indicates a requested tab could not be found.
	ErrTabNotFound = errors.New("tab not found")
	// ErrPaneNotFound indicates a requested pane could not be found.
	ErrPaneNotFound = errors.New("pane not found")
	// ErrSessionNotFound indicates a requested terminal session could not be found.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidPaneKind indicates an unknown pane kind.
	ErrInvalidPaneKind = errors.New("invalid pane kind")
	// ErrInvalidOrientation indicates an unknown split orientation.
	ErrInvalidOrientation = errors.New("invalid split orientation")
	// ErrGroupTooSmall indicates a group operation over fewer than two tabs.
	ErrGroupTooSmall = errors.New("group requires at least two tabs")
	// ErrNotAGroup indicates a group operation against a simple tab.
	ErrNotAGroup = errors.New("tab is not a group")
	// ErrNotInGroup indicates the tab does not belong to the named group.
	ErrNotInGroup = errors.New("tab is not a member of the group")
	// ErrLayoutMismatch indicates a layout whose leaves do not match the
	// group's child tabs.
	ErrLayoutMismatch = errors.New("layout leaves do not match child tabs")
	// ErrSessionNotLive indicates an operation that requires a live transport.
	ErrSessionNotLive = errors.New("session is not live")
	// ErrSessionClosed indicates the session was explicitly closed.
	ErrSessionClosed = errors.New("session closed")
	// ErrSessionNotSuspended indicates a resume against a session that is not
	// waiting for approval.
	ErrSessionNotSuspended = errors.New("agent session is not suspended")
	// ErrRunUnknown indicates no upstream run id is retained for the session.
	ErrRunUnknown = errors.New("no run id for session")
	// ErrHostUnavailable indicates the terminal host could not be reached.
	ErrHostUnavailable = errors.New("terminal host unavailable")
)
