package plugin

import (
	"fmt"
	"sort"
)

// resolveOrder computes a dependency-respecting initialization order over the
// given registrations. Ties between nodes of equal depth are broken by
// registration order so the result is stable. A missing dependency or a cycle
// fails the whole resolution; no partial order is returned.
func resolveOrder(regs map[string]*Registration) ([]*Registration, error) {
	// Verify every declared dependency resolves before building edges.
	for id, reg := range regs {
		for _, dep := range reg.Meta.Dependencies {
			if _, ok := regs[dep]; !ok {
				return nil, fmt.Errorf("%w: %s requires %s", ErrMissingDep, id, dep)
			}
		}
	}

	indegree := make(map[string]int, len(regs))
	dependents := make(map[string][]string, len(regs))
	for id, reg := range regs {
		indegree[id] += 0
		for _, dep := range reg.Meta.Dependencies {
			indegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	ready := make([]string, 0, len(regs))
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sortByRegistration(ready, regs)

	order := make([]*Registration, 0, len(regs))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, regs[id])

		released := false
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
				released = true
			}
		}
		// The whole ready set stays ordered by registration sequence, not
		// just each release batch, so ties between nodes released by
		// different parents still break deterministically.
		if released {
			sortByRegistration(ready, regs)
		}
	}

	if len(order) != len(regs) {
		remaining := make([]string, 0)
		for id, deg := range indegree {
			if deg > 0 {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		return nil, fmt.Errorf("%w involving: %v", ErrDependencyCycle, remaining)
	}

	return order, nil
}

func sortByRegistration(ids []string, regs map[string]*Registration) {
	sort.Slice(ids, func(i, j int) bool {
		return regs[ids[i]].order < regs[ids[j]].order
	})
}
