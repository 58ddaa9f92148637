package catalog

import "sort"

// rrfK damps the contribution of lower ranks in reciprocal rank fusion.
const rrfK = 60.0

// fuse merges ranked id lists with reciprocal rank fusion. The first list is
// weighted double and top ranks get a small bonus. Ids are deduplicated and
// returned best first; ties keep first-seen order.
func fuse(lists ...[]int64) []int64 {
	scores := make(map[int64]float64)
	var order []int64

	for listIdx, list := range lists {
		weight := 1.0
		if listIdx == 0 {
			weight = 2.0
		}
		for rank, id := range list {
			bonus := 0.0
			if rank == 0 {
				bonus = 0.05
			} else if rank <= 2 {
				bonus = 0.02
			}
			if _, seen := scores[id]; !seen {
				order = append(order, id)
			}
			scores[id] += weight/(rrfK+float64(rank)+1) + bonus
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})
	return order
}
