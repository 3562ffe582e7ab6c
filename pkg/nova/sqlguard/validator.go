// Package sqlguard decides whether a model-generated SQL string may run
// against a tenant database. Only a single read-only SELECT passes.
package sqlguard

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxQueryLength bounds the accepted statement size in bytes.
const MaxQueryLength = 10000

// ValidationResult is the outcome of ValidateQuery. Query holds the
// normalized statement when Valid is true.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
	Query string `json:"query,omitempty"`
}

// Rejection reasons, also used as metric labels.
const (
	reasonEmpty      = "empty"
	reasonTooLong    = "too_long"
	reasonControl    = "control_chars"
	reasonNotSelect  = "not_select"
	reasonStacked    = "multiple_statements"
	reasonComment    = "comment"
	reasonDollar     = "dollar_quote"
	reasonUnicode    = "unicode_escape"
	reasonUnclosed   = "unterminated"
	reasonKeyword    = "keyword"
	reasonSystem     = "system_object"
	reasonPrivileged = "privileged_function"
)

// deniedKeywords may not appear as bare words anywhere in the statement.
var deniedKeywords = map[string]struct{}{}

// deniedFunctions are privileged or exfiltration-prone functions.
var deniedFunctions = map[string]struct{}{}

func init() {
	for _, kw := range strings.Fields(`insert update delete drop alter truncate create grant revoke
		exec execute merge call copy into lock vacuum analyze reindex cluster comment set reset
		listen notify prepare deallocate do`) {
		deniedKeywords[kw] = struct{}{}
	}
	for _, fn := range strings.Fields(`lo_import lo_export set_config current_setting query_to_xml xp_cmdshell`) {
		deniedFunctions[fn] = struct{}{}
	}
}

// ValidateQuery checks, in order: non-empty, size, control characters,
// leading SELECT, lexical safety (no stacked statements, comments, dollar
// quotes, unicode escapes or unterminated literals) and the keyword, system object and
// function denylists. It never panics.
func ValidateQuery(query string) ValidationResult {
	if strings.TrimSpace(query) == "" {
		return reject(reasonEmpty, "query is empty")
	}
	if len(query) > MaxQueryLength {
		return reject(reasonTooLong, fmt.Sprintf("query exceeds %d bytes", MaxQueryLength))
	}
	if !utf8.ValidString(query) {
		return reject(reasonControl, "query is not valid UTF-8")
	}
	for _, r := range query {
		if r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		if unicode.IsControl(r) {
			return reject(reasonControl, "query contains control characters")
		}
	}

	stmt := strings.TrimSpace(query)
	stmt = strings.TrimSpace(strings.TrimSuffix(stmt, ";"))
	if stmt == "" {
		return reject(reasonEmpty, "query is empty")
	}

	if lead := leadingKeyword(stmt); lead != "select" {
		shown := strings.ToUpper(lead)
		if shown == "" {
			shown = string([]rune(stmt)[:1])
		}
		return reject(reasonNotSelect, fmt.Sprintf("only SELECT queries are allowed (found %s)", shown))
	}

	tokens, normalized, lexErr := lex(stmt)
	if lexErr != nil {
		return reject(lexErr.reason, lexErr.msg)
	}

	for _, tok := range tokens {
		switch tok.kind {
		case tokWord:
			if _, denied := deniedKeywords[tok.folded]; denied {
				return reject(reasonKeyword, fmt.Sprintf("keyword %s is not allowed", strings.ToUpper(tok.folded)))
			}
			if isSystemObject(tok.folded) {
				return reject(reasonSystem, fmt.Sprintf("access to system object %q is not allowed", tok.folded))
			}
			if isDeniedFunction(tok.folded) {
				return reject(reasonPrivileged, fmt.Sprintf("function %q is not allowed", tok.folded))
			}
		case tokQuotedIdent:
			if isSystemObject(tok.folded) {
				return reject(reasonSystem, fmt.Sprintf("access to system object %q is not allowed", tok.folded))
			}
			if isDeniedFunction(tok.folded) {
				return reject(reasonPrivileged, fmt.Sprintf("function %q is not allowed", tok.folded))
			}
		}
	}

	return ValidationResult{Valid: true, Query: normalized}
}

func reject(reason, msg string) ValidationResult {
	sqlRejections.WithLabelValues(reason).Inc()
	return ValidationResult{Valid: false, Error: msg}
}

func leadingKeyword(stmt string) string {
	end := strings.IndexFunc(stmt, func(r rune) bool { return !isWordRune(r) })
	if end < 0 {
		end = len(stmt)
	}
	return fold(stmt[:end])
}

func isSystemObject(name string) bool {
	return name == "information_schema" || name == "pg_catalog" || strings.HasPrefix(name, "pg_")
}

func isDeniedFunction(name string) bool {
	if strings.HasPrefix(name, "dblink") {
		return true
	}
	_, denied := deniedFunctions[name]
	return denied
}

// fold maps compatibility forms (fullwidth letters and the like) onto their
// canonical ASCII spelling before comparison.
func fold(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}
