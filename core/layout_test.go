package core

import (
	"reflect"
	"testing"

	"pkt.systems/termspace/schema"
)

func TestEvenLayoutPreservesInputOrder(t *testing.T) {
	ids := []schema.TabID{"a", "b", "c"}
	layout := evenLayout(ids, schema.SplitVertical)
	if !layout.Valid() {
		t.Fatalf("layout invalid")
	}
	if got := layout.Leaves(); !reflect.DeepEqual(got, ids) {
		t.Fatalf("leaves = %v, want %v", got, ids)
	}
}

func TestRemoveLeafCollapsesParent(t *testing.T) {
	layout := evenLayout([]schema.TabID{"a", "b", "c"}, schema.SplitVertical)
	layout = removeLeaf(layout, "b")
	if got, want := layout.Leaves(), []schema.TabID{"a", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("leaves = %v, want %v", got, want)
	}
	if !layout.Valid() {
		t.Fatalf("layout invalid after removal")
	}
	layout = removeLeaf(layout, "a")
	layout = removeLeaf(layout, "c")
	if layout != nil {
		t.Fatalf("removing every leaf should yield nil, got %v", layout)
	}
}

func TestReplaceLeafWithSplit(t *testing.T) {
	layout := evenLayout([]schema.TabID{"a", "b"}, schema.SplitVertical)
	if !replaceLeafWithSplit(layout, "b", "c", schema.SplitHorizontal) {
		t.Fatalf("leaf b not found")
	}
	if got, want := layout.Leaves(), []schema.TabID{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("leaves = %v, want %v", got, want)
	}
	if replaceLeafWithSplit(layout, "missing", "d", schema.SplitVertical) {
		t.Fatalf("replace reported success for a missing leaf")
	}
}

func TestLayoutMatches(t *testing.T) {
	layout := evenLayout([]schema.TabID{"a", "b", "c"}, schema.SplitVertical)
	if !layoutMatches(layout, []schema.TabID{"c", "a", "b"}) {
		t.Fatalf("set equality should ignore order")
	}
	if layoutMatches(layout, []schema.TabID{"a", "b"}) {
		t.Fatalf("missing child must not match")
	}
	if layoutMatches(layout, []schema.TabID{"a", "b", "d"}) {
		t.Fatalf("foreign child must not match")
	}
	dup := &schema.SplitNode{
		Orientation: schema.SplitVertical,
		Left:        &schema.SplitNode{Tab: "a"},
		Right:       &schema.SplitNode{Tab: "a"},
	}
	if layoutMatches(dup, []schema.TabID{"a", "a"}) {
		t.Fatalf("duplicate leaves must not match")
	}
}
