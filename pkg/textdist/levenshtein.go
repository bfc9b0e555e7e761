// Package textdist provides string distance and similarity primitives used by
// the User-Agent anomaly detector.
package textdist

// Levenshtein returns the minimum number of single-character edits (insertions,
// deletions, substitutions) required to transform one string into the other.
//
// Runs in O(len(a)*len(b)) time and O(min(len(a),len(b))) space using a single
// rolling row. Operates on bytes; User-Agent strings are ASCII in practice.
func Levenshtein(a, b string) int {
	// Keep b as the shorter string so the row buffer is minimal.
	if len(a) < len(b) {
		a, b = b, a
	}

	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}

	for i := 0; i < len(a); i++ {
		prev := row[0] // row[j-1] from the previous iteration
		row[0] = i + 1

		for j := 0; j < len(b); j++ {
			cost := 0
			if a[i] != b[j] {
				cost = 1
			}

			insertion := row[j+1] + 1
			deletion := row[j] + 1
			substitution := prev + cost

			prev = row[j+1]
			row[j+1] = min3(insertion, deletion, substitution)
		}
	}

	return row[len(b)]
}

// Similarity returns the normalized similarity between two strings in [0,1]:
// 1 - distance/max(len). Two empty strings are identical (1.0); exactly one
// empty string yields 0.0.
func Similarity(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}

	return 1.0 - float64(Levenshtein(a, b))/float64(maxLen)
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
