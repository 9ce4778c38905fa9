package schema

// SplitNode is one node of a binary split tree. A node is either a leaf
// referencing a tab, or an interior split with exactly two children. Ratio is
// the share of the parent axis given to Left; 0 means an even split.
type SplitNode struct {
	Tab         TabID            `json:"tab,omitempty"`
	Orientation SplitOrientation `json:"orientation,omitempty"`
	Ratio       float64          `json:"ratio,omitempty"`
	Left        *SplitNode       `json:"left,omitempty"`
	Right       *SplitNode       `json:"right,omitempty"`
}

// IsLeaf reports whether n references a tab directly.
func (n *SplitNode) IsLeaf() bool {
	return n != nil && n.Tab != ""
}

// Leaves returns the tab ids referenced by the tree in left-to-right order.
func (n *SplitNode) Leaves() []TabID {
	if n == nil {
		return nil
	}
	if n.IsLeaf() {
		return []TabID{n.Tab}
	}
	leaves := n.Left.Leaves()
	return append(leaves, n.Right.Leaves()...)
}

// Clone returns a deep copy of the tree.
func (n *SplitNode) Clone() *SplitNode {
	if n == nil {
		return nil
	}
	out := *n
	out.Left = n.Left.Clone()
	out.Right = n.Right.Clone()
	return &out
}

// Valid reports whether the tree is structurally sound: every interior node
// has two children and a known orientation, every leaf names a tab.
func (n *SplitNode) Valid() bool {
	if n == nil {
		return false
	}
	if n.IsLeaf() {
		return n.Left == nil && n.Right == nil
	}
	if !ValidSplitOrientation(n.Orientation) {
		return false
	}
	if n.Ratio < 0 || n.Ratio >= 1 {
		return false
	}
	return n.Left.Valid() && n.Right.Valid()
}
