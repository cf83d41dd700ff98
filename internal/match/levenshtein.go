package match

// Distance computes the Levenshtein edit distance between a and b, giving up
// once it is certain to exceed limit. In that case limit+1 is returned.
// A negative limit disables the bound.
func Distance(a, b []rune, limit int) int {
	if limit >= 0 {
		diff := len(a) - len(b)
		if diff < 0 {
			diff = -diff
		}
		if diff > limit {
			return limit + 1
		}
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	// Two-row optimization
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		rowMin := curr[0]

		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
			if curr[j] < rowMin {
				rowMin = curr[j]
			}
		}

		if limit >= 0 && rowMin > limit {
			return limit + 1
		}
		prev, curr = curr, prev
	}

	if d := prev[len(b)]; limit < 0 || d <= limit {
		return d
	}
	return limit + 1
}
