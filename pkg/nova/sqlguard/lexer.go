package sqlguard

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokWord tokenKind = iota
	tokQuotedIdent
	tokString
	tokNumber
	tokSymbol
)

type token struct {
	kind   tokenKind
	folded string
}

type lexError struct {
	reason string
	msg    string
}

// lex splits stmt into tokens and builds the normalized statement, with
// every whitespace run outside literals collapsed to one space.
func lex(stmt string) ([]token, string, *lexError) {
	var (
		tokens []token
		out    strings.Builder
		space  bool
	)
	out.Grow(len(stmt))

	emit := func(kind tokenKind, raw string) {
		if space && out.Len() > 0 {
			out.WriteByte(' ')
		}
		space = false
		out.WriteString(raw)
		tokens = append(tokens, token{kind: kind, folded: fold(raw)})
	}

	i := 0
	for i < len(stmt) {
		r, size := utf8.DecodeRuneInString(stmt[i:])
		switch {
		case unicode.IsSpace(r):
			space = true
			i += size

		case r == ';':
			return nil, "", &lexError{reasonStacked, "multiple statements are not allowed"}

		case r == '-' && strings.HasPrefix(stmt[i:], "--"),
			r == '/' && strings.HasPrefix(stmt[i:], "/*"):
			return nil, "", &lexError{reasonComment, "SQL comments are not allowed"}

		case r == '$' && isDollarQuote(stmt[i:]):
			return nil, "", &lexError{reasonDollar, "dollar-quoted strings are not allowed"}

		case r == '\'':
			end, ok := scanQuoted(stmt, i, '\'', false)
			if !ok {
				return nil, "", &lexError{reasonUnclosed, "unterminated string literal"}
			}
			emit(tokString, stmt[i:end])
			i = end

		case r == '"':
			end, ok := scanQuoted(stmt, i, '"', false)
			if !ok {
				return nil, "", &lexError{reasonUnclosed, "unterminated quoted identifier"}
			}
			raw := stmt[i:end]
			if space && out.Len() > 0 {
				out.WriteByte(' ')
			}
			space = false
			out.WriteString(raw)
			inner := strings.ReplaceAll(raw[1:len(raw)-1], `""`, `"`)
			tokens = append(tokens, token{kind: tokQuotedIdent, folded: fold(inner)})
			i = end

		case isWordStart(r):
			end := i + size
			for end < len(stmt) {
				next, n := utf8.DecodeRuneInString(stmt[end:])
				if !isWordRune(next) {
					break
				}
				end += n
			}
			word := stmt[i:end]
			// U&"..." and U&'...' carry escapes that could spell a denied name.
			if (word == "u" || word == "U") && (strings.HasPrefix(stmt[end:], `&"`) || strings.HasPrefix(stmt[end:], "&'")) {
				return nil, "", &lexError{reasonUnicode, "unicode escape literals are not allowed"}
			}
			// E'...' strings honour backslash escapes.
			if (word == "e" || word == "E") && end < len(stmt) && stmt[end] == '\'' {
				strEnd, ok := scanQuoted(stmt, end, '\'', true)
				if !ok {
					return nil, "", &lexError{reasonUnclosed, "unterminated string literal"}
				}
				emit(tokString, stmt[i:strEnd])
				i = strEnd
				continue
			}
			emit(tokWord, word)
			i = end

		case r >= '0' && r <= '9':
			end := i + 1
			for end < len(stmt) && (isDigit(stmt[end]) || stmt[end] == '.' || stmt[end] == '_') {
				end++
			}
			emit(tokNumber, stmt[i:end])
			i = end

		default:
			// Compatibility forms of ';' (U+FF1B and friends) count too.
			if fold(stmt[i:i+size]) == ";" {
				return nil, "", &lexError{reasonStacked, "multiple statements are not allowed"}
			}
			emit(tokSymbol, stmt[i:i+size])
			i += size
		}
	}
	return tokens, out.String(), nil
}

// scanQuoted returns the index just past the closing quote of the literal
// opening at start. A doubled quote is an escaped quote.
func scanQuoted(s string, start int, quote byte, backslash bool) (int, bool) {
	i := start + 1
	for i < len(s) {
		c := s[i]
		if backslash && c == '\\' {
			i += 2
			continue
		}
		if c == quote {
			if i+1 < len(s) && s[i+1] == quote {
				i += 2
				continue
			}
			return i + 1, true
		}
		i++
	}
	return 0, false
}

// isDollarQuote reports whether s opens a $$ or $tag$ literal. Positional
// parameters such as $1 are not dollar quotes.
func isDollarQuote(s string) bool {
	if strings.HasPrefix(s, "$$") {
		return true
	}
	for i, r := range s[1:] {
		if r == '$' {
			return i > 0
		}
		if !isWordRune(r) || (i == 0 && unicode.IsDigit(r)) {
			return false
		}
	}
	return false
}

func isWordStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
