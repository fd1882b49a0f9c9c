// Package similarity scores how likely two names refer to the same entity,
// based on overlap of their word tokens rather than raw character sequence.
package similarity

import "math"

// Score computes the token-set ratio between two token multisets, 0..100.
// It is symmetric. Let common be the number of tokens in a with an exact
// match remaining in b (greedy, each b-token consumable once); the score is
// round(200*common/(len(a)+len(b))), clamped to [0,100]. Identical multisets
// score 100, disjoint ones 0, and a strict token subset scores high, which
// handles "LASTNAME FIRSTNAME" against "LASTNAME F." plus extra middle names
// better than plain edit distance on the full string.
func Score(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	remaining := make(map[string]int, len(b))
	for _, t := range b {
		remaining[t]++
	}

	common := 0
	for _, t := range a {
		if remaining[t] > 0 {
			remaining[t]--
			common++
		}
	}

	score := int(math.Round(200 * float64(common) / float64(len(a)+len(b))))
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}
