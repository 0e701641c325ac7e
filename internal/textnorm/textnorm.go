package textnorm

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var wordPattern = regexp.MustCompile(`[a-z0-9]+`)

type Token struct {
	Text  string
	Start int
	End   int
}

// Normalize folds accents and case so that "Ñengo  MÉXICO" and "nengo mexico"
// compare equal. Runs of whitespace collapse to a single space.
func Normalize(value string) string {
	if value == "" {
		return ""
	}
	chain := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(chain, value)
	if err != nil {
		stripped = value
	}
	return strings.Join(strings.Fields(strings.ToLower(stripped)), " ")
}

func Words(normalized string) []string {
	return wordPattern.FindAllString(normalized, -1)
}

func Tokens(normalized string) []Token {
	indexes := wordPattern.FindAllStringIndex(normalized, -1)
	tokens := make([]Token, 0, len(indexes))
	for _, loc := range indexes {
		tokens = append(tokens, Token{Text: normalized[loc[0]:loc[1]], Start: loc[0], End: loc[1]})
	}
	return tokens
}

func ContainsWord(text, phrase string) bool {
	_, _, ok := FindWord(text, phrase)
	return ok
}

// FindWord returns the byte span of the first occurrence of phrase in text
// that is not glued to a surrounding letter or digit.
func FindWord(text, phrase string) (int, int, bool) {
	if phrase == "" || len(phrase) > len(text) {
		return 0, 0, false
	}
	offset := 0
	for offset <= len(text)-len(phrase) {
		index := strings.Index(text[offset:], phrase)
		if index < 0 {
			return 0, 0, false
		}
		start := offset + index
		end := start + len(phrase)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return start, end, true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
	return 0, 0, false
}

func boundaryBefore(text string, index int) bool {
	if index == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:index])
	return !isWordRune(r)
}

func boundaryAfter(text string, index int) bool {
	if index >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[index:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
