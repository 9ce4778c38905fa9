package core

import (
	"time"

	"pkt.systems/termspace/schema"
)

// pane is a leaf surface bound to at most one terminal session.
type pane struct {
	id        schema.PaneID
	kind      schema.PaneKind
	sessionID schema.SessionID
	createdAt time.Time
}

// tab is either pane-backed or a group holding a binary split tree over
// child tabs. parentGroup is a weak back-reference for lookup only.
type tab struct {
	id          schema.TabID
	workspace   schema.WorkspaceID
	title       string
	pane        *pane
	childTabIDs []schema.TabID
	layout      *schema.SplitNode
	parentGroup schema.TabID
}

func (t *tab) isGroup() bool { return len(t.childTabIDs) > 0 }

func (t *tab) snapshot(active bool) schema.TabSnapshot {
	snap := schema.TabSnapshot{
		ID:          t.id,
		Workspace:   t.workspace,
		Title:       t.title,
		ParentGroup: t.parentGroup,
		Active:      active,
	}
	if t.pane != nil {
		snap.Pane = &schema.PaneSnapshot{
			ID:        t.pane.id,
			Kind:      t.pane.kind,
			SessionID: t.pane.sessionID,
			CreatedAt: t.pane.createdAt,
		}
	}
	if t.isGroup() {
		snap.ChildTabIDs = append([]schema.TabID(nil), t.childTabIDs...)
		snap.Layout = t.layout.Clone()
	}
	return snap
}

// workspaceState is all mutable state for one workspace: its tabs (top-level
// and grouped children alike), the top-level order, and the active tab.
type workspaceState struct {
	id        schema.WorkspaceID
	project   schema.ProjectID
	worktree  schema.WorktreeRef
	tabs      map[schema.TabID]*tab
	order     []schema.TabID
	activeTab schema.TabID
}

func (w *workspaceState) snapshot() schema.WorkspaceSnapshot {
	return schema.WorkspaceSnapshot{
		ID:        w.id,
		Project:   w.project,
		Worktree:  w.worktree,
		TabOrder:  append([]schema.TabID(nil), w.order...),
		ActiveTab: w.activeTab,
	}
}

func (w *workspaceState) removeFromOrder(id schema.TabID) {
	for i, existing := range w.order {
		if existing == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			return
		}
	}
}

func (w *workspaceState) orderIndex(id schema.TabID) int {
	for i, existing := range w.order {
		if existing == id {
			return i
		}
	}
	return -1
}

// paneByID finds the tab owning a pane.
func (w *workspaceState) paneByID(id schema.PaneID) (*tab, *pane) {
	for _, t := range w.tabs {
		if t.pane != nil && t.pane.id == id {
			return t, t.pane
		}
	}
	return nil, nil
}
