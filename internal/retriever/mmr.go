package retriever

// mmrSelect greedily reorders candidates by Maximum Marginal Relevance:
// at each step it picks the remaining candidate maximizing relevance
// to the query minus similarity to what's already been selected. The
// first pick has a diversity term of 0. Ties are broken by the order
// candidates appear in `candidates` (their natural order going in).
//
// query and vectorOf(i) are expected to be unit vectors; the returned
// order is the MMR selection order, not a re-score — callers keep the
// fused score from the caller's own bookkeeping.
func mmrSelect(candidates []int, target int, lambda float64, query []float32, vectorOf func(int) []float32) []int {
	if target > len(candidates) {
		target = len(candidates)
	}
	if target <= 0 {
		return nil
	}

	remaining := make([]int, len(candidates))
	copy(remaining, candidates)

	selected := make([]int, 0, target)
	selectedVecs := make([][]float32, 0, target)

	for len(selected) < target {
		bestPos := -1
		var bestScore float64

		for pos, j := range remaining {
			relevance := dot(query, vectorOf(j))
			diversity := 0.0
			if len(selectedVecs) > 0 {
				diversity = dot(selectedVecs[0], vectorOf(j))
				for _, sv := range selectedVecs[1:] {
					if d := dot(sv, vectorOf(j)); d > diversity {
						diversity = d
					}
				}
			}
			score := lambda*relevance - (1-lambda)*diversity

			if bestPos == -1 || score > bestScore {
				bestPos = pos
				bestScore = score
			}
		}

		chosen := remaining[bestPos]
		selected = append(selected, chosen)
		selectedVecs = append(selectedVecs, vectorOf(chosen))
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}

	return selected
}

func dot(a, b []float32) float64 {
	var sum float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
