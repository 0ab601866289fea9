package pools

import (
	"sort"

	"github.com/basinhq/basin/pkg/apperrors"
)

// Satisfies reports whether the class meets every field of the requirement
// tuple. A class below any one threshold does not match.
func (c ResourceClass) Satisfies(req Requirements) bool {
	return c.CPU >= req.CPU &&
		c.GPU >= req.GPU &&
		c.Memory >= req.Memory &&
		c.MaxStorage >= req.MaxStorage
}

// FilterMatching evaluates every class against the requirements, preserving
// input order. Non-matching classes are kept, marked Matching=false, so the
// UI can show the full set.
func FilterMatching(classes []ResourceClass, req Requirements) []ClassMatch {
	matches := make([]ClassMatch, 0, len(classes))
	for _, class := range classes {
		matches = append(matches, ClassMatch{Class: class, Matching: class.Satisfies(req)})
	}
	return matches
}

// GroupByPool evaluates the requirements across pools, ordering pools by
// ascending id and each pool's classes by ascending name.
func GroupByPool(poolList []ResourcePool, req Requirements) []PoolMatches {
	sorted := make([]ResourcePool, len(poolList))
	copy(sorted, poolList)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	grouped := make([]PoolMatches, 0, len(sorted))
	for _, pool := range sorted {
		classes := make([]ResourceClass, len(pool.Classes))
		copy(classes, pool.Classes)
		sort.Slice(classes, func(i, j int) bool { return classes[i].Name < classes[j].Name })
		grouped = append(grouped, PoolMatches{Pool: pool, Classes: FilterMatching(classes, req)})
	}
	return grouped
}

// FindAcceptableClass picks a deterministic winner among matching classes:
// the first match in pool-id then class-name order. It never falls back to
// a non-matching class; when nothing matches it fails.
func FindAcceptableClass(poolList []ResourcePool, req Requirements) (*ResourceClass, error) {
	for _, group := range GroupByPool(poolList, req) {
		for _, match := range group.Classes {
			if match.Matching {
				class := match.Class
				return &class, nil
			}
		}
	}
	return nil, apperrors.NewMissingResource("resource class matching the requested resources")
}
