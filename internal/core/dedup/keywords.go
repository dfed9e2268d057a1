package dedup

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// minKeywordLength is exclusive: keywords must be longer than this
const minKeywordLength = 3

// Keywords extracts up to max distinct keywords from text in order of
// appearance. Text is lower-cased and split on whitespace, every other rune
// that is not a letter or digit is stripped in place ("O'Hare" -> "ohare"),
// and words of minKeywordLength runes or fewer are dropped.
func Keywords(text string, max int) []string {
	if max <= 0 {
		return nil
	}

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, text)

	seen := make(map[string]struct{})
	keywords := make([]string, 0, max)
	for _, word := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(word) <= minKeywordLength {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		keywords = append(keywords, word)
		if len(keywords) == max {
			break
		}
	}
	return keywords
}

// Jaccard returns |A∩B| / |A∪B| over two keyword sets. Two empty sets
// score 0 so that insights without keywords never look alike.
func Jaccard(a, b []string) float64 {
	setA := make(map[string]struct{}, len(a))
	for _, w := range a {
		setA[w] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, w := range b {
		setB[w] = struct{}{}
	}

	union := len(setA)
	intersection := 0
	for w := range setB {
		if _, ok := setA[w]; ok {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// NormalizeTitle is the title form used for exact matching
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}
