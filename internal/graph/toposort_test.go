package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func depsOf(m map[int][]int) func(i int) []int {
	return func(i int) []int { return m[i] }
}

func TestTopoSort_Order(t *testing.T) {
	order, remaining, err := TopoSort(3, depsOf(map[int][]int{1: {0}, 2: {1}}))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, order)
	assert.Empty(t, remaining)
}

func TestTopoSort_TieBreakBySmallestIndex(t *testing.T) {
	// 3 depends on 0; 1 and 2 are independent.
	order, _, err := TopoSort(4, depsOf(map[int][]int{3: {0}, 0: {2}}))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 0, 3}, order)
}

func TestTopoSort_Cycle(t *testing.T) {
	order, remaining, err := TopoSort(3, depsOf(map[int][]int{0: {1}, 1: {0}, 2: {1}}))
	require.NoError(t, err)
	assert.Empty(t, order)
	assert.Equal(t, []int{0, 1, 2}, remaining)
}

func TestTopoSort_OutOfRange(t *testing.T) {
	_, _, err := TopoSort(2, depsOf(map[int][]int{1: {5}}))
	assert.Error(t, err)
}

func TestCycleMembers(t *testing.T) {
	tests := []struct {
		name   string
		subset []int
		deps   map[int][]int
		want   []int
	}{
		{
			name:   "downstream node excluded",
			subset: []int{0, 1, 2},
			deps:   map[int][]int{0: {1}, 1: {0}, 2: {1}},
			want:   []int{0, 1},
		},
		{
			name:   "two disjoint cycles",
			subset: []int{0, 1, 2, 3, 4},
			deps:   map[int][]int{0: {1}, 1: {0}, 2: {3}, 3: {4}, 4: {2}},
			want:   []int{0, 1, 2, 3, 4},
		},
		{
			name:   "self loop is not a cycle",
			subset: []int{0},
			deps:   map[int][]int{0: {0}},
			want:   nil,
		},
		{
			name:   "edges outside subset ignored",
			subset: []int{1, 2},
			deps:   map[int][]int{1: {2, 0}, 2: {1}},
			want:   []int{1, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CycleMembers(tt.subset, depsOf(tt.deps)))
		})
	}
}
