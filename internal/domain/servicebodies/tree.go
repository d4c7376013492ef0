package servicebodies

// childIndex maps a parent id to its direct children. The zero key holds
// top-level bodies.
func childIndex(bodies []ServiceBody) map[int64][]*ServiceBody {
	idx := make(map[int64][]*ServiceBody)
	for i := range bodies {
		var parent int64
		if bodies[i].ParentID != nil {
			parent = *bodies[i].ParentID
		}
		idx[parent] = append(idx[parent], &bodies[i])
	}
	return idx
}

// Descendants expands ids to include every body beneath them. Unknown ids
// pass through unchanged so an id filter stays restrictive. Traversal is
// iterative with a visited set, so a malformed parent cycle cannot hang.
func Descendants(bodies []ServiceBody, ids []int64) []int64 {
	idx := childIndex(bodies)
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))

	queue := append([]int64(nil), ids...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
		for _, child := range idx[id] {
			queue = append(queue, child.ID)
		}
	}
	return out
}

// Ancestors returns ids plus every ancestor of each id, walking parent
// links with a visited set.
func Ancestors(bodies []ServiceBody, ids []int64) []int64 {
	byID := make(map[int64]*ServiceBody, len(bodies))
	for i := range bodies {
		byID[bodies[i].ID] = &bodies[i]
	}

	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		for id != 0 && !seen[id] {
			seen[id] = true
			out = append(out, id)
			body, ok := byID[id]
			if !ok || body.ParentID == nil {
				break
			}
			id = *body.ParentID
		}
	}
	return out
}

// TopWithWorldIDs walks one root's forest depth-first and returns the
// shallowest bodies carrying a world id. A body without one is skipped
// and its children are examined instead.
func TopWithWorldIDs(bodies []ServiceBody) []ServiceBody {
	idx := childIndex(bodies)

	var out []ServiceBody
	var walk func(parent int64)
	seen := make(map[int64]bool, len(bodies))
	walk = func(parent int64) {
		for _, body := range idx[parent] {
			if seen[body.ID] {
				continue
			}
			seen[body.ID] = true
			if body.WorldID != "" {
				out = append(out, *body)
			} else {
				walk(body.ID)
			}
		}
	}
	walk(0)
	return out
}
