package bom

import "github.com/warp/stock-engine/inventory"

// reaches reports whether target can be reached from start by following
// parent -> component edges. The edge with ID skip is ignored so an edge
// being rewired is not checked against its own previous state.
//
// Adding parent -> component closes a cycle exactly when
// reaches(edges, component, parent, skip) is true.
func reaches(edges []Edge, start, target inventory.ItemID, skip EdgeID) bool {
	children := make(map[inventory.ItemID][]inventory.ItemID)
	for _, e := range edges {
		if skip != 0 && e.ID == skip {
			continue
		}
		children[e.ParentID] = append(children[e.ParentID], e.ComponentID)
	}

	visited := make(map[inventory.ItemID]bool)
	stack := []inventory.ItemID{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n == target {
			return true
		}
		// Existing cycles in stored data must not hang the search.
		if visited[n] {
			continue
		}
		visited[n] = true
		stack = append(stack, children[n]...)
	}
	return false
}

// findDuplicate returns the edge other than skip linking parent to component.
func findDuplicate(edges []Edge, parent, component inventory.ItemID, skip EdgeID) *Edge {
	for i := range edges {
		e := edges[i]
		if e.ID == skip && skip != 0 {
			continue
		}
		if e.ParentID == parent && e.ComponentID == component {
			return &e
		}
	}
	return nil
}
