package sqlguard

import (
	"strconv"
	"strings"
)

type lexKind int

const (
	lexWord lexKind = iota
	lexQuotedIdent
	lexSemicolon
)

type lexeme struct {
	kind lexKind
	text string
	pos  int
}

// scan returns the words, quoted identifiers and semicolons of sqlText.
// Quoted identifiers are unescaped and lowercased. String literals,
// dollar-quoted bodies and comments are skipped.
func scan(sqlText string) ([]lexeme, error) {
	var out []lexeme
	n := len(sqlText)
	i := 0
	for i < n {
		c := sqlText[i]
		switch {
		case c == '\'':
			end, ok := skipQuoted(sqlText, i, '\'', isEscapeString(sqlText, i, out))
			if !ok {
				return nil, ErrUnterminated
			}
			i = end
		case c == '"':
			end, ok := skipQuoted(sqlText, i, '"', false)
			if !ok {
				return nil, ErrUnterminated
			}
			text := strings.ReplaceAll(sqlText[i+1:end-1], `""`, `"`)
			if isUnicodeEscape(sqlText, i, out) {
				text = decodeUnicodeEscapes(text)
			}
			out = append(out, lexeme{kind: lexQuotedIdent, text: strings.ToLower(text), pos: i})
			i = end
		case c == '-' && i+1 < n && sqlText[i+1] == '-':
			newline := strings.IndexByte(sqlText[i:], '\n')
			if newline < 0 {
				i = n
			} else {
				i += newline + 1
			}
		case c == '/' && i+1 < n && sqlText[i+1] == '*':
			end, ok := skipBlockComment(sqlText, i)
			if !ok {
				return nil, ErrUnterminated
			}
			i = end
		case c == '$':
			tag, ok := dollarTag(sqlText, i)
			if !ok {
				i++
				continue
			}
			closing := strings.Index(sqlText[i+len(tag):], tag)
			if closing < 0 {
				return nil, ErrUnterminated
			}
			i += len(tag) + closing + len(tag)
		case isIdentStart(c):
			start := i
			for i < n && isIdentPart(sqlText[i]) {
				i++
			}
			out = append(out, lexeme{kind: lexWord, text: strings.ToLower(sqlText[start:i]), pos: start})
		case c == ';':
			out = append(out, lexeme{kind: lexSemicolon, text: ";", pos: i})
			i++
		default:
			i++
		}
	}
	return out, nil
}

func skipQuoted(sqlText string, start int, quote byte, backslashEscapes bool) (int, bool) {
	for j := start + 1; j < len(sqlText); j++ {
		c := sqlText[j]
		if backslashEscapes && c == '\\' {
			j++
			continue
		}
		if c != quote {
			continue
		}
		if j+1 < len(sqlText) && sqlText[j+1] == quote {
			j++
			continue
		}
		return j + 1, true
	}
	return 0, false
}

func skipBlockComment(sqlText string, start int) (int, bool) {
	depth := 0
	j := start
	for j+1 < len(sqlText) {
		switch {
		case sqlText[j] == '/' && sqlText[j+1] == '*':
			depth++
			j += 2
		case sqlText[j] == '*' && sqlText[j+1] == '/':
			depth--
			j += 2
			if depth == 0 {
				return j, true
			}
		default:
			j++
		}
	}
	return 0, false
}

// dollarTag recognizes $$ and $name$ openers; $1 style parameters are not tags.
func dollarTag(sqlText string, start int) (string, bool) {
	j := start + 1
	if j >= len(sqlText) {
		return "", false
	}
	if sqlText[j] == '$' {
		return "$$", true
	}
	if !isIdentStart(sqlText[j]) {
		return "", false
	}
	for j < len(sqlText) && isIdentPart(sqlText[j]) && sqlText[j] != '$' {
		j++
	}
	if j < len(sqlText) && sqlText[j] == '$' {
		return sqlText[start : j+1], true
	}
	return "", false
}

func isEscapeString(sqlText string, index int, seen []lexeme) bool {
	if index == 0 || len(seen) == 0 {
		return false
	}
	last := seen[len(seen)-1]
	return last.kind == lexWord && last.text == "e" && last.pos == index-1
}

func isUnicodeEscape(sqlText string, index int, seen []lexeme) bool {
	if index < 2 || len(seen) == 0 || sqlText[index-1] != '&' {
		return false
	}
	last := seen[len(seen)-1]
	return last.kind == lexWord && last.text == "u" && last.pos == index-2
}

func decodeUnicodeEscapes(text string) string {
	var b strings.Builder
	for i := 0; i < len(text); i++ {
		if text[i] != '\\' {
			b.WriteByte(text[i])
			continue
		}
		digits := 4
		start := i + 1
		if start < len(text) && text[start] == '+' {
			digits = 6
			start++
		}
		if start+digits > len(text) {
			b.WriteByte(text[i])
			continue
		}
		code, err := strconv.ParseUint(text[start:start+digits], 16, 32)
		if err != nil {
			if start < len(text) && text[start] == '\\' {
				b.WriteByte('\\')
				i = start
				continue
			}
			b.WriteByte(text[i])
			continue
		}
		b.WriteRune(rune(code))
		i = start + digits - 1
	}
	return b.String()
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9') || c == '$'
}
