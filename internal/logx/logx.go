// Package logx annotates pslog loggers with workspace, session, and chat
// identifiers, de-duplicating fields already attached via context markers.
package logx

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/termspace/schema"
)

type contextKey int

const (
	workspaceKey contextKey = iota
	sessionKey
	chatKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithWorkspace annotates the logger with the workspace id if present.
func WithWorkspace(ctx context.Context, workspaceID schema.WorkspaceID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if workspaceID != "" {
		if current, ok := ctx.Value(workspaceKey).(schema.WorkspaceID); ok && current == workspaceID {
			return log
		}
		log = log.With("workspace", workspaceID)
	}
	return log
}

// WithSession annotates the logger with workspace and session identifiers.
func WithSession(ctx context.Context, workspaceID schema.WorkspaceID, sessionID schema.SessionID) pslog.Logger {
	log := WithWorkspace(ctx, workspaceID)
	if sessionID != "" {
		if current, ok := ctx.Value(sessionKey).(schema.SessionID); ok && current == sessionID {
			return log
		}
		log = log.With("session", sessionID)
	}
	return log
}

// WithChat annotates the logger with a chat session id.
func WithChat(ctx context.Context, chatID schema.ChatSessionID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if chatID != "" {
		if current, ok := ctx.Value(chatKey).(schema.ChatSessionID); ok && current == chatID {
			return log
		}
		log = log.With("chat", chatID)
	}
	return log
}

// WithTab annotates the logger with a tab id when available.
func WithTab(log pslog.Logger, tabID schema.TabID) pslog.Logger {
	if tabID != "" {
		log = log.With("tab", tabID)
	}
	return log
}

// WithKey annotates the logger with a terminal key.
func WithKey(log pslog.Logger, key schema.TerminalKey) pslog.Logger {
	if key.Workspace != "" {
		log = log.With("workspace", key.Workspace)
	}
	if key.VM != "" {
		log = log.With("vm", key.VM)
	}
	if key.Terminal != "" {
		log = log.With("terminal", key.Terminal)
	}
	return log
}

// ContextWithWorkspace stores the workspace marker for log de-duplication.
func ContextWithWorkspace(ctx context.Context, workspaceID schema.WorkspaceID) context.Context {
	if ctx == nil || workspaceID == "" {
		return ctx
	}
	return context.WithValue(ctx, workspaceKey, workspaceID)
}

// ContextWithSession stores the session marker for log de-duplication.
func ContextWithSession(ctx context.Context, sessionID schema.SessionID) context.Context {
	if ctx == nil || sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, sessionID)
}

// ContextWithChat stores the chat marker for log de-duplication.
func ContextWithChat(ctx context.Context, chatID schema.ChatSessionID) context.Context {
	if ctx == nil || chatID == "" {
		return ctx
	}
	return context.WithValue(ctx, chatKey, chatID)
}
