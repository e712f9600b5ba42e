package command

// #region dice

// diceCoefficient measures bigram overlap between two strings, in [0,1].
// Identical strings score 1; strings shorter than two runes only match
// exactly.
func diceCoefficient(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) < 2 || len(rb) < 2 {
		return 0
	}

	bigrams := make(map[string]int)
	for i := 0; i < len(ra)-1; i++ {
		bigrams[string(ra[i:i+2])]++
	}

	matches := 0
	for i := 0; i < len(rb)-1; i++ {
		g := string(rb[i : i+2])
		if bigrams[g] > 0 {
			bigrams[g]--
			matches++
		}
	}
	return 2 * float64(matches) / float64(len(ra)-1+len(rb)-1)
}

// bestMatch returns the candidate with the highest Dice similarity.
func bestMatch(target string, candidates []string) (string, float64) {
	best, rating := "", -1.0
	for _, c := range candidates {
		if score := diceCoefficient(target, c); score > rating {
			best, rating = c, score
		}
	}
	return best, rating
}

// #endregion
