package wakeword

// Levenshtein returns the edit distance between a and b with unit-cost
// insertions, deletions and substitutions, counted over runes. It keeps a
// single row sized to the shorter string.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	if len(rb) == 0 {
		return len(ra)
	}

	row := make([]int, len(rb)+1)
	for j := range row {
		row[j] = j
	}
	for i, ca := range ra {
		diag := row[0]
		row[0] = i + 1
		for j, cb := range rb {
			cost := 1
			if ca == cb {
				cost = 0
			}
			// row[j+1] still holds the previous row's value here.
			next := min(row[j+1]+1, row[j]+1, diag+cost)
			diag = row[j+1]
			row[j+1] = next
		}
	}
	return row[len(rb)]
}

// Similar reports whether a and b differ by at most maxDistance edits. Words
// whose lengths already differ by more than maxDistance are rejected without
// computing the distance.
func Similar(a, b string, maxDistance int) bool {
	if a == b {
		return true
	}
	la, lb := len([]rune(a)), len([]rune(b))
	if la-lb > maxDistance || lb-la > maxDistance {
		return false
	}
	return Levenshtein(a, b) <= maxDistance
}
