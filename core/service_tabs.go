package core

import (
	"context"
	"errors"
	"time"

	"pkt.systems/termspace/internal/logx"
	"pkt.systems/termspace/schema"
)

func (s *service) CreateTab(ctx context.Context, req schema.CreateTabRequest) (schema.CreateTabResponse, error) {
	if ctx == nil {
		return schema.CreateTabResponse{}, errors.New("missing context")
	}
	kind := req.Kind
	if kind == "" {
		kind = schema.PaneTerminal
	}
	if !schema.ValidPaneKind(kind) {
		return schema.CreateTabResponse{}, schema.ErrInvalidPaneKind
	}

	s.mu.Lock()
	ws, err := s.workspaceLocked(req.WorkspaceID)
	if err != nil {
		s.mu.Unlock()
		return schema.CreateTabResponse{}, err
	}
	t := &tab{
		id:        schema.TabID(newID("tab")),
		workspace: ws.id,
		title:     req.Title,
		pane: &pane{
			id:        schema.PaneID(newID("pane")),
			kind:      kind,
			createdAt: time.Now(),
		},
	}
	ws.tabs[t.id] = t
	ws.order = append(ws.order, t.id)
	ws.activeTab = t.id
	snap := t.snapshot(true)
	active := ws.activeTab
	s.persistLocked(ws)
	s.mu.Unlock()

	s.emitTab(schema.TabEvent{Workspace: req.WorkspaceID, Type: schema.TabEventCreated, Tab: snap, ActiveTab: active})
	logx.WithTab(logx.WithWorkspace(ctx, req.WorkspaceID), t.id).Info("service tab created", "kind", kind)
	return schema.CreateTabResponse{Tab: snap}, nil
}

func (s *service) RemoveTab(ctx context.Context, req schema.RemoveTabRequest) (schema.RemoveTabResponse, error) {
	if ctx == nil {
		return schema.RemoveTabResponse{}, errors.New("missing context")
	}
	s.mu.Lock()
	ws, err := s.workspaceLocked(req.WorkspaceID)
	if err != nil {
		s.mu.Unlock()
		return schema.RemoveTabResponse{}, err
	}
	t, ok := ws.tabs[req.TabID]
	if !ok {
		s.mu.Unlock()
		return schema.RemoveTabResponse{}, schema.ErrTabNotFound
	}
	snap := t.snapshot(false)

	removed := []*tab{t}
	if t.parentGroup != "" {
		// Grouped child: shrink the enclosing group.
		group, ok := ws.tabs[t.parentGroup]
		if !ok || !group.isGroup() {
			s.mu.Unlock()
			return schema.RemoveTabResponse{}, schema.ErrNotAGroup
		}
		removeChildLocked(group, t.id)
		delete(ws.tabs, t.id)
		if len(group.childTabIDs) == 0 {
			s.removeTopLevelLocked(ws, group)
		}
	} else {
		if t.isGroup() {
			for _, childID := range t.childTabIDs {
				if child, ok := ws.tabs[childID]; ok {
					removed = append(removed, child)
				}
				delete(ws.tabs, childID)
			}
		}
		s.removeTopLevelLocked(ws, t)
	}
	// Removing a pane severs its terminal session.
	var doomed []*session
	for _, rt := range removed {
		if rt.pane == nil || rt.pane.sessionID == "" {
			continue
		}
		if sess, ok := s.sessions[rt.pane.sessionID]; ok {
			delete(s.sessions, sess.id)
			delete(s.byKey, sess.key)
			doomed = append(doomed, sess)
		}
	}
	active := ws.activeTab
	s.persistLocked(ws)
	s.mu.Unlock()

	for _, sess := range doomed {
		s.teardownSession(ctx, sess)
	}

	s.emitTab(schema.TabEvent{Workspace: req.WorkspaceID, Type: schema.TabEventRemoved, Tab: snap, ActiveTab: active})
	return schema.RemoveTabResponse{Tab: snap, ActiveTab: active}, nil
}

// removeTopLevelLocked drops a top-level tab from the workspace, fixing the
// active tab by adjacency (previous, else next, else none).
func (s *service) removeTopLevelLocked(ws *workspaceState, t *tab) {
	idx := ws.orderIndex(t.id)
	ws.removeFromOrder(t.id)
	delete(ws.tabs, t.id)
	if ws.activeTab != t.id {
		return
	}
	switch {
	case idx > 0:
		ws.activeTab = ws.order[idx-1]
	case len(ws.order) > 0:
		ws.activeTab = ws.order[0]
	default:
		ws.activeTab = ""
	}
}

func removeChildLocked(group *tab, id schema.TabID) {
	for i, childID := range group.childTabIDs {
		if childID == id {
			group.childTabIDs = append(group.childTabIDs[:i], group.childTabIDs[i+1:]...)
			break
		}
	}
	group.layout = removeLeaf(group.layout, id)
}

func (s *service) SetActiveTab(ctx context.Context, req schema.SetActiveTabRequest) (schema.SetActiveTabResponse, error) {
	if ctx == nil {
		return schema.SetActiveTabResponse{}, errors.New("missing context")
	}
	s.mu.Lock()
	ws, err := s.workspaceLocked(req.WorkspaceID)
	if err != nil {
		s.mu.Unlock()
		return schema.SetActiveTabResponse{}, err
	}
	t, ok := ws.tabs[req.TabID]
	if !ok {
		s.mu.Unlock()
		return schema.SetActiveTabResponse{}, schema.ErrTabNotFound
	}
	// Activating a grouped child activates its enclosing top-level group.
	top := t
	for top.parentGroup != "" {
		parent, ok := ws.tabs[top.parentGroup]
		if !ok {
			break
		}
		top = parent
	}
	ws.activeTab = top.id
	snap := t.snapshot(true)
	s.mu.Unlock()

	s.emitTab(schema.TabEvent{Workspace: req.WorkspaceID, Type: schema.TabEventActivated, Tab: snap, ActiveTab: top.id})
	return schema.SetActiveTabResponse{Tab: snap}, nil
}

func (s *service) ReorderTabs(ctx context.Context, req schema.ReorderTabsRequest) (schema.ReorderTabsResponse, error) {
	if ctx == nil {
		return schema.ReorderTabsResponse{}, errors.New("missing context")
	}
	s.mu.Lock()
	ws, err := s.workspaceLocked(req.WorkspaceID)
	if err != nil {
		s.mu.Unlock()
		return schema.ReorderTabsResponse{}, err
	}
	if len(req.Order) != len(ws.order) {
		s.mu.Unlock()
		return schema.ReorderTabsResponse{}, schema.ErrInvalidRequest
	}
	seen := make(map[schema.TabID]struct{}, len(req.Order))
	for _, id := range req.Order {
		if _, dup := seen[id]; dup {
			s.mu.Unlock()
			return schema.ReorderTabsResponse{}, schema.ErrInvalidRequest
		}
		seen[id] = struct{}{}
		if ws.orderIndex(id) < 0 {
			s.mu.Unlock()
			return schema.ReorderTabsResponse{}, schema.ErrTabNotFound
		}
	}
	ws.order = append([]schema.TabID(nil), req.Order...)
	order := append([]schema.TabID(nil), ws.order...)
	s.persistLocked(ws)
	s.mu.Unlock()
	return schema.ReorderTabsResponse{Order: order}, nil
}

func (s *service) SplitPane(ctx context.Context, req schema.SplitPaneRequest) (schema.SplitPaneResponse, error) {
	if ctx == nil {
		return schema.SplitPaneResponse{}, errors.New("missing context")
	}
	if !schema.ValidSplitOrientation(req.Orientation) {
		return schema.SplitPaneResponse{}, schema.ErrInvalidOrientation
	}
	s.mu.Lock()
	ws, err := s.workspaceLocked(req.WorkspaceID)
	if err != nil {
		s.mu.Unlock()
		return schema.SplitPaneResponse{}, err
	}
	t, ok := ws.tabs[req.TabID]
	if !ok {
		s.mu.Unlock()
		return schema.SplitPaneResponse{}, schema.ErrTabNotFound
	}
	if t.isGroup() || t.pane == nil {
		s.mu.Unlock()
		return schema.SplitPaneResponse{}, schema.ErrPaneNotFound
	}
	kind := req.Kind
	if kind == "" {
		kind = t.pane.kind
	}
	if !schema.ValidPaneKind(kind) {
		s.mu.Unlock()
		return schema.SplitPaneResponse{}, schema.ErrInvalidPaneKind
	}
	sibling := &tab{
		id:        schema.TabID(newID("tab")),
		workspace: ws.id,
		pane: &pane{
			id:        schema.PaneID(newID("pane")),
			kind:      kind,
			createdAt: time.Now(),
		},
	}
	ws.tabs[sibling.id] = sibling

	var group *tab
	if t.parentGroup != "" {
		group, ok = ws.tabs[t.parentGroup]
		if !ok || !group.isGroup() {
			s.mu.Unlock()
			return schema.SplitPaneResponse{}, schema.ErrNotAGroup
		}
		if !replaceLeafWithSplit(group.layout, t.id, sibling.id, req.Orientation) {
			s.mu.Unlock()
			return schema.SplitPaneResponse{}, schema.ErrLayoutMismatch
		}
		group.childTabIDs = append(group.childTabIDs, sibling.id)
		sibling.parentGroup = group.id
	} else {
		// Top-level pane tab: synthesize a group in its place.
		group = &tab{
			id:          schema.TabID(newID("tab")),
			workspace:   ws.id,
			title:       t.title,
			childTabIDs: []schema.TabID{t.id, sibling.id},
			layout: &schema.SplitNode{
				Orientation: req.Orientation,
				Left:        &schema.SplitNode{Tab: t.id},
				Right:       &schema.SplitNode{Tab: sibling.id},
			},
		}
		ws.tabs[group.id] = group
		idx := ws.orderIndex(t.id)
		ws.order[idx] = group.id
		if ws.activeTab == t.id {
			ws.activeTab = group.id
		}
		t.parentGroup = group.id
		sibling.parentGroup = group.id
	}
	groupSnap := group.snapshot(ws.activeTab == group.id)
	siblingSnap := sibling.snapshot(false)
	active := ws.activeTab
	s.persistLocked(ws)
	s.mu.Unlock()

	s.emitTab(schema.TabEvent{Workspace: req.WorkspaceID, Type: schema.TabEventUpdated, Tab: groupSnap, ActiveTab: active})
	logx.WithTab(logx.WithWorkspace(ctx, req.WorkspaceID), req.TabID).Info("service pane split", "orientation", req.Orientation, "sibling", sibling.id)
	return schema.SplitPaneResponse{Group: groupSnap, Sibling: siblingSnap}, nil
}

func (s *service) GroupTabs(ctx context.Context, req schema.GroupTabsRequest) (schema.GroupTabsResponse, error) {
	if ctx == nil {
		return schema.GroupTabsResponse{}, errors.New("missing context")
	}
	if len(req.TabIDs) < 2 {
		return schema.GroupTabsResponse{}, schema.ErrGroupTooSmall
	}
	s.mu.Lock()
	ws, err := s.workspaceLocked(req.WorkspaceID)
	if err != nil {
		s.mu.Unlock()
		return schema.GroupTabsResponse{}, err
	}
	members := make([]*tab, 0, len(req.TabIDs))
	seen := make(map[schema.TabID]struct{}, len(req.TabIDs))
	insertAt := -1
	for _, id := range req.TabIDs {
		if _, dup := seen[id]; dup {
			s.mu.Unlock()
			return schema.GroupTabsResponse{}, schema.ErrInvalidRequest
		}
		seen[id] = struct{}{}
		t, ok := ws.tabs[id]
		if !ok {
			s.mu.Unlock()
			return schema.GroupTabsResponse{}, schema.ErrTabNotFound
		}
		if t.isGroup() || t.parentGroup != "" {
			s.mu.Unlock()
			return schema.GroupTabsResponse{}, schema.ErrInvalidRequest
		}
		if idx := ws.orderIndex(id); insertAt < 0 || (idx >= 0 && idx < insertAt) {
			insertAt = idx
		}
		members = append(members, t)
	}

	group := &tab{
		id:          schema.TabID(newID("tab")),
		workspace:   ws.id,
		childTabIDs: append([]schema.TabID(nil), req.TabIDs...),
		layout:      evenLayout(req.TabIDs, schema.SplitVertical),
	}
	ws.tabs[group.id] = group
	activeGrouped := false
	for _, member := range members {
		if ws.activeTab == member.id {
			activeGrouped = true
		}
		ws.removeFromOrder(member.id)
		member.parentGroup = group.id
	}
	if insertAt < 0 || insertAt > len(ws.order) {
		insertAt = len(ws.order)
	}
	ws.order = append(ws.order[:insertAt], append([]schema.TabID{group.id}, ws.order[insertAt:]...)...)
	if activeGrouped {
		ws.activeTab = group.id
	}
	snap := group.snapshot(ws.activeTab == group.id)
	active := ws.activeTab
	s.persistLocked(ws)
	s.mu.Unlock()

	s.emitTab(schema.TabEvent{Workspace: req.WorkspaceID, Type: schema.TabEventCreated, Tab: snap, ActiveTab: active})
	logx.WithTab(logx.WithWorkspace(ctx, req.WorkspaceID), group.id).Info("service tabs grouped", "children", len(req.TabIDs))
	return schema.GroupTabsResponse{Group: snap}, nil
}

func (s *service) UngroupTab(ctx context.Context, req schema.UngroupTabRequest) (schema.UngroupTabResponse, error) {
	if ctx == nil {
		return schema.UngroupTabResponse{}, errors.New("missing context")
	}
	s.mu.Lock()
	ws, err := s.workspaceLocked(req.WorkspaceID)
	if err != nil {
		s.mu.Unlock()
		return schema.UngroupTabResponse{}, err
	}
	group, ok := ws.tabs[req.GroupID]
	if !ok {
		s.mu.Unlock()
		return schema.UngroupTabResponse{}, schema.ErrTabNotFound
	}
	if !group.isGroup() {
		s.mu.Unlock()
		return schema.UngroupTabResponse{}, schema.ErrNotAGroup
	}
	idx := ws.orderIndex(group.id)
	ws.removeFromOrder(group.id)
	if idx < 0 || idx > len(ws.order) {
		idx = len(ws.order)
	}
	restored := make([]schema.TabSnapshot, 0, len(group.childTabIDs))
	inserted := make([]schema.TabID, 0, len(group.childTabIDs))
	for _, childID := range group.childTabIDs {
		child, ok := ws.tabs[childID]
		if !ok {
			continue
		}
		child.parentGroup = ""
		inserted = append(inserted, child.id)
		restored = append(restored, child.snapshot(false))
	}
	ws.order = append(ws.order[:idx], append(inserted, ws.order[idx:]...)...)
	delete(ws.tabs, group.id)
	if ws.activeTab == group.id {
		if len(inserted) > 0 {
			ws.activeTab = inserted[0]
		} else if len(ws.order) > 0 {
			ws.activeTab = ws.order[0]
		} else {
			ws.activeTab = ""
		}
	}
	groupSnap := group.snapshot(false)
	active := ws.activeTab
	s.persistLocked(ws)
	s.mu.Unlock()

	s.emitTab(schema.TabEvent{Workspace: req.WorkspaceID, Type: schema.TabEventRemoved, Tab: groupSnap, ActiveTab: active})
	return schema.UngroupTabResponse{Tabs: restored}, nil
}

func (s *service) MoveOutOfGroup(ctx context.Context, req schema.MoveOutOfGroupRequest) (schema.MoveOutOfGroupResponse, error) {
	if ctx == nil {
		return schema.MoveOutOfGroupResponse{}, errors.New("missing context")
	}
	s.mu.Lock()
	ws, err := s.workspaceLocked(req.WorkspaceID)
	if err != nil {
		s.mu.Unlock()
		return schema.MoveOutOfGroupResponse{}, err
	}
	group, ok := ws.tabs[req.ParentGroupID]
	if !ok || !group.isGroup() {
		s.mu.Unlock()
		return schema.MoveOutOfGroupResponse{}, schema.ErrNotAGroup
	}
	t, ok := ws.tabs[req.TabID]
	if !ok {
		s.mu.Unlock()
		return schema.MoveOutOfGroupResponse{}, schema.ErrTabNotFound
	}
	if t.parentGroup != group.id {
		s.mu.Unlock()
		return schema.MoveOutOfGroupResponse{}, schema.ErrNotInGroup
	}
	removeChildLocked(group, t.id)
	t.parentGroup = ""
	idx := ws.orderIndex(group.id)
	if idx < 0 {
		idx = len(ws.order) - 1
	}
	ws.order = append(ws.order[:idx+1], append([]schema.TabID{t.id}, ws.order[idx+1:]...)...)

	var groupSnap *schema.TabSnapshot
	if len(group.childTabIDs) == 0 {
		s.removeTopLevelLocked(ws, group)
	} else {
		snap := group.snapshot(ws.activeTab == group.id)
		groupSnap = &snap
	}
	tabSnap := t.snapshot(ws.activeTab == t.id)
	active := ws.activeTab
	s.persistLocked(ws)
	s.mu.Unlock()

	s.emitTab(schema.TabEvent{Workspace: req.WorkspaceID, Type: schema.TabEventUpdated, Tab: tabSnap, ActiveTab: active})
	return schema.MoveOutOfGroupResponse{Tab: tabSnap, Group: groupSnap}, nil
}

func (s *service) SetParent(ctx context.Context, req schema.SetParentRequest) (schema.SetParentResponse, error) {
	if ctx == nil {
		return schema.SetParentResponse{}, errors.New("missing context")
	}
	s.mu.Lock()
	ws, err := s.workspaceLocked(req.WorkspaceID)
	if err != nil {
		s.mu.Unlock()
		return schema.SetParentResponse{}, err
	}
	t, ok := ws.tabs[req.TabID]
	if !ok {
		s.mu.Unlock()
		return schema.SetParentResponse{}, schema.ErrTabNotFound
	}
	if req.ParentGroupID != "" {
		group, ok := ws.tabs[req.ParentGroupID]
		if !ok || !group.isGroup() {
			s.mu.Unlock()
			return schema.SetParentResponse{}, schema.ErrNotAGroup
		}
		found := false
		for _, childID := range group.childTabIDs {
			if childID == t.id {
				found = true
				break
			}
		}
		if !found {
			s.mu.Unlock()
			return schema.SetParentResponse{}, schema.ErrNotInGroup
		}
	}
	t.parentGroup = req.ParentGroupID
	snap := t.snapshot(ws.activeTab == t.id)
	s.persistLocked(ws)
	s.mu.Unlock()
	return schema.SetParentResponse{Tab: snap}, nil
}

func (s *service) UpdateLayout(ctx context.Context, req schema.UpdateLayoutRequest) (schema.UpdateLayoutResponse, error) {
	if ctx == nil {
		return schema.UpdateLayoutResponse{}, errors.New("missing context")
	}
	s.mu.Lock()
	ws, err := s.workspaceLocked(req.WorkspaceID)
	if err != nil {
		s.mu.Unlock()
		return schema.UpdateLayoutResponse{}, err
	}
	group, ok := ws.tabs[req.GroupID]
	if !ok {
		s.mu.Unlock()
		return schema.UpdateLayoutResponse{}, schema.ErrTabNotFound
	}
	if !group.isGroup() {
		s.mu.Unlock()
		return schema.UpdateLayoutResponse{}, schema.ErrNotAGroup
	}
	if !req.Layout.Valid() || !layoutMatches(req.Layout, group.childTabIDs) {
		s.mu.Unlock()
		return schema.UpdateLayoutResponse{}, schema.ErrLayoutMismatch
	}
	group.layout = req.Layout.Clone()
	snap := group.snapshot(ws.activeTab == group.id)
	active := ws.activeTab
	s.persistLocked(ws)
	s.mu.Unlock()

	s.emitTab(schema.TabEvent{Workspace: req.WorkspaceID, Type: schema.TabEventUpdated, Tab: snap, ActiveTab: active})
	return schema.UpdateLayoutResponse{Group: snap}, nil
}
