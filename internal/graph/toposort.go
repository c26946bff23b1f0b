// Package graph orders entity types so that every parent is processed
// before the entity types that belong to it, and reports cycles instead of
// guessing a way out of them.
package graph

import (
	"fmt"
	"sort"
)

// TopoSort returns node indices in execution order.
//
// Nodes are by index in [0, n). depsFn(i) yields indices that must be
// executed before i.
//
// The result is deterministic: when multiple nodes are available, the
// smallest index is picked. Nodes that could not be ordered because they sit
// on or behind a cycle are returned in remaining, in index order.
func TopoSort(n int, depsFn func(i int) []int) (order, remaining []int, err error) {
	if n <= 0 {
		return nil, nil, nil
	}

	indeg := make([]int, n)
	out := make([][]int, n)

	for i := range n {
		for _, d := range depsFn(i) {
			if d < 0 || d >= n {
				return nil, nil, fmt.Errorf("dependency index out of range: %d depends on %d", i, d)
			}

			indeg[i]++
			out[d] = append(out[d], i)
		}
	}

	// Deterministic traversal.
	for i := range out {
		sort.Ints(out[i])
	}

	var ready []int

	for i := range n {
		if indeg[i] == 0 {
			ready = append(ready, i)
		}
	}

	order = make([]int, 0, n)
	done := make([]bool, n)

	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]

		order = append(order, i)
		done[i] = true

		for _, j := range out[i] {
			indeg[j]--
			if indeg[j] == 0 {
				// Insert while keeping ready sorted.
				k := sort.SearchInts(ready, j)
				ready = append(ready, 0)
				copy(ready[k+1:], ready[k:])
				ready[k] = j
			}
		}
	}

	for i := range n {
		if !done[i] {
			remaining = append(remaining, i)
		}
	}

	return order, remaining, nil
}

// CycleMembers returns the nodes of subset that lie on a cycle, i.e. that
// belong to a strongly connected component with more than one node. Nodes
// that merely depend on a cycle are left out. Edges leaving subset are
// ignored. The result is sorted.
func CycleMembers(subset []int, depsFn func(i int) []int) []int {
	in := make(map[int]bool, len(subset))
	for _, i := range subset {
		in[i] = true
	}

	t := tarjan{
		deps:    depsFn,
		in:      in,
		index:   make(map[int]int, len(subset)),
		lowlink: make(map[int]int, len(subset)),
		onStack: make(map[int]bool, len(subset)),
	}

	sorted := append([]int(nil), subset...)
	sort.Ints(sorted)

	for _, v := range sorted {
		if _, seen := t.index[v]; !seen {
			t.connect(v)
		}
	}

	sort.Ints(t.members)

	return t.members
}

type tarjan struct {
	deps    func(i int) []int
	in      map[int]bool
	next    int
	index   map[int]int
	lowlink map[int]int
	onStack map[int]bool
	stack   []int
	members []int
}

func (t *tarjan) connect(v int) {
	t.index[v] = t.next
	t.lowlink[v] = t.next
	t.next++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.deps(v) {
		if !t.in[w] || w == v {
			continue
		}

		if _, seen := t.index[w]; !seen {
			t.connect(w)
			t.lowlink[v] = min(t.lowlink[v], t.lowlink[w])
		} else if t.onStack[w] {
			t.lowlink[v] = min(t.lowlink[v], t.index[w])
		}
	}

	if t.lowlink[v] != t.index[v] {
		return
	}

	var component []int

	for {
		w := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		t.onStack[w] = false

		component = append(component, w)

		if w == v {
			break
		}
	}

	if len(component) > 1 {
		t.members = append(t.members, component...)
	}
}
