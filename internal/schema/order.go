package schema

import "sort"

type edge struct{ from, to int }

// order returns node indices so that every dependency precedes its
// dependents. Among available nodes the smallest index goes first, so the
// result is deterministic. A cycle is broken at its smallest pending node;
// the dependency edges cut there are returned as deferred.
//
// deps(i) yields the indices i depends on; self-dependencies are ignored.
func order(n int, deps func(i int) []int) ([]int, []edge) {
	if n <= 0 {
		return nil, nil
	}

	indeg := make([]int, n)
	out := make([][]int, n)
	in := make([][]int, n)
	for i := range n {
		seen := map[int]bool{}
		for _, d := range deps(i) {
			if d == i || d < 0 || d >= n || seen[d] {
				continue
			}
			seen[d] = true
			indeg[i]++
			out[d] = append(out[d], i)
			in[i] = append(in[i], d)
		}
		sort.Ints(in[i])
	}
	for i := range out {
		sort.Ints(out[i])
	}

	var ready []int
	for i := range n {
		if indeg[i] == 0 {
			ready = append(ready, i)
		}
	}

	done := make([]bool, n)
	cut := map[edge]bool{}
	var deferred []edge
	result := make([]int, 0, n)

	for len(result) < n {
		if len(ready) == 0 {
			for i := range n {
				if done[i] {
					continue
				}
				for _, d := range in[i] {
					if !done[d] {
						e := edge{from: i, to: d}
						cut[e] = true
						deferred = append(deferred, e)
					}
				}
				indeg[i] = 0
				ready = []int{i}
				break
			}
		}

		i := ready[0]
		ready = ready[1:]
		done[i] = true
		result = append(result, i)

		for _, j := range out[i] {
			if done[j] || cut[edge{from: j, to: i}] {
				continue
			}
			indeg[j]--
			if indeg[j] == 0 {
				k := sort.SearchInts(ready, j)
				ready = append(ready, 0)
				copy(ready[k+1:], ready[k:])
				ready[k] = j
			}
		}
	}
	return result, deferred
}
