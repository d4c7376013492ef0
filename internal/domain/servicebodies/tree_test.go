package servicebodies

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr(v int64) *int64 { return &v }

func testForest() []ServiceBody {
	// zone(1) -> region(2) -> area(3), area(4); region(5) standalone
	return []ServiceBody{
		{ID: 1, Type: TypeZone, WorldID: ""},
		{ID: 2, ParentID: ptr(1), Type: TypeRegion, WorldID: "RG123"},
		{ID: 3, ParentID: ptr(2), Type: TypeArea, WorldID: "AR001"},
		{ID: 4, ParentID: ptr(2), Type: TypeArea, WorldID: ""},
		{ID: 5, Type: TypeRegion, WorldID: ""},
	}
}

func TestDescendants(t *testing.T) {
	tests := []struct {
		name string
		ids  []int64
		want []int64
	}{
		{name: "whole zone", ids: []int64{1}, want: []int64{1, 2, 3, 4}},
		{name: "mid tree", ids: []int64{2}, want: []int64{2, 3, 4}},
		{name: "leaf", ids: []int64{3}, want: []int64{3}},
		{name: "unknown id passes through", ids: []int64{99}, want: []int64{99}},
		{name: "overlapping requests deduplicate", ids: []int64{1, 2}, want: []int64{1, 2, 3, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Descendants(testForest(), tt.ids)
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestDescendants_CycleDoesNotHang(t *testing.T) {
	bodies := []ServiceBody{
		{ID: 1, ParentID: ptr(2)},
		{ID: 2, ParentID: ptr(1)},
	}
	got := Descendants(bodies, []int64{1})
	assert.ElementsMatch(t, []int64{1, 2}, got)
}

func TestAncestors(t *testing.T) {
	got := Ancestors(testForest(), []int64{3, 4})
	assert.ElementsMatch(t, []int64{3, 4, 2, 1}, got)
}

func TestTopWithWorldIDs(t *testing.T) {
	got := TopWithWorldIDs(testForest())

	// zone 1 has no world id, so its region is taken instead; area 3 is
	// shadowed by its parent; bodies 4 and 5 have nothing to offer.
	ids := make([]int64, 0, len(got))
	for _, sb := range got {
		ids = append(ids, sb.ID)
	}
	assert.ElementsMatch(t, []int64{2}, ids)
}
