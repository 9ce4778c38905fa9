package core

import "pkt.systems/termspace/schema"

// evenLayout builds an evenly-weighted binary split tree over the ids in
// input order, halving at each level.
func evenLayout(ids []schema.TabID, orientation schema.SplitOrientation) *schema.SplitNode {
	switch len(ids) {
	case 0:
		return nil
	case 1:
		return &schema.SplitNode{Tab: ids[0]}
	}
	mid := len(ids) / 2
	return &schema.SplitNode{
		Orientation: orientation,
		Left:        evenLayout(ids[:mid], orientation),
		Right:       evenLayout(ids[mid:], orientation),
	}
}

// removeLeaf returns the tree with the named leaf removed, collapsing the
// parent split into the surviving sibling. Removing the only leaf yields nil.
func removeLeaf(n *schema.SplitNode, tab schema.TabID) *schema.SplitNode {
	if n == nil {
		return nil
	}
	if n.IsLeaf() {
		if n.Tab == tab {
			return nil
		}
		return n
	}
	left := removeLeaf(n.Left, tab)
	right := removeLeaf(n.Right, tab)
	if left == nil {
		return right
	}
	if right == nil {
		return left
	}
	out := *n
	out.Left = left
	out.Right = right
	return &out
}

// replaceLeafWithSplit rewrites the leaf for tab into a binary split holding
// the original tab and the new sibling. Reports whether the leaf was found.
func replaceLeafWithSplit(n *schema.SplitNode, tab, sibling schema.TabID, orientation schema.SplitOrientation) bool {
	if n == nil {
		return false
	}
	if n.IsLeaf() {
		if n.Tab != tab {
			return false
		}
		n.Tab = ""
		n.Orientation = orientation
		n.Ratio = 0
		n.Left = &schema.SplitNode{Tab: tab}
		n.Right = &schema.SplitNode{Tab: sibling}
		return true
	}
	return replaceLeafWithSplit(n.Left, tab, sibling, orientation) ||
		replaceLeafWithSplit(n.Right, tab, sibling, orientation)
}

// layoutMatches reports whether the tree's leaves are exactly the given child
// ids, each appearing once.
func layoutMatches(n *schema.SplitNode, children []schema.TabID) bool {
	leaves := n.Leaves()
	if len(leaves) != len(children) {
		return false
	}
	want := make(map[schema.TabID]struct{}, len(children))
	for _, id := range children {
		want[id] = struct{}{}
	}
	if len(want) != len(children) {
		return false
	}
	seen := make(map[schema.TabID]struct{}, len(leaves))
	for _, leaf := range leaves {
		if _, dup := seen[leaf]; dup {
			return false
		}
		seen[leaf] = struct{}{}
		if _, ok := want[leaf]; !ok {
			return false
		}
	}
	return true
}
