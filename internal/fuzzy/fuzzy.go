package fuzzy

import (
	"unicode/utf8"

	"github.com/hbollon/go-edlib"

	"github.com/rapbattles/batalla/internal/textnorm"
)

type Match struct {
	Value string
	Score float64
	Index int
}

// Ratio is the normalized Indel similarity of a and b on a 0..100 scale:
// 100 * (1 - indel(a, b) / (len(a) + len(b))), lengths counted in runes.
func Ratio(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 100
	}
	if a == b {
		return 100
	}
	common := edlib.LCS(a, b)
	return 100 * float64(2*common) / float64(total)
}

// Best returns the highest scoring choice. Ties keep the earliest choice.
func Best(input string, choices []string) (Match, bool) {
	best := Match{Index: -1}
	for i, choice := range choices {
		score := Ratio(input, choice)
		if score > best.Score || best.Index < 0 {
			best = Match{Value: choice, Score: score, Index: i}
		}
	}
	return best, best.Index >= 0
}

func Correct(input string, choices []string, threshold float64) string {
	normalized := textnorm.Normalize(input)
	if corrected, _, ok := Lookup(normalized, choices, threshold); ok {
		return corrected
	}
	return normalized
}

func Lookup(normalized string, choices []string, threshold float64) (string, float64, bool) {
	if normalized == "" || len(choices) == 0 {
		return "", 0, false
	}
	for _, choice := range choices {
		if choice == normalized {
			return choice, 100, true
		}
	}
	best, ok := Best(normalized, choices)
	if !ok || best.Score < threshold {
		return "", 0, false
	}
	return best.Value, best.Score, true
}
