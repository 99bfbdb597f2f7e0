// Package sqlguard inspects generated SQL before it reaches the database.
package sqlguard

import (
	"strings"
)

// Statement summarizes what a piece of SQL text would do.
type Statement struct {
	// Keyword is the upper-cased leading keyword of the first statement.
	Keyword string
	// Count is the number of non-empty statements separated by semicolons.
	Count       int
	ReturnsRows bool
	// Modifying lists data- or schema-changing keywords found outside
	// literals and comments, in order of appearance.
	Modifying []string
	// Unterminated is set when a quote or block comment is never closed.
	Unterminated bool
}

var rowKeywords = map[string]struct{}{
	"SELECT":   {},
	"WITH":     {},
	"SHOW":     {},
	"DESCRIBE": {},
	"DESC":     {},
	"EXPLAIN":  {},
	"VALUES":   {},
	"PRAGMA":   {},
	"TABLE":    {},
}

var modifyingKeywords = map[string]struct{}{
	"INSERT":   {},
	"UPDATE":   {},
	"DELETE":   {},
	"MERGE":    {},
	"UPSERT":   {},
	"REPLACE":  {},
	"DROP":     {},
	"CREATE":   {},
	"ALTER":    {},
	"TRUNCATE": {},
	"GRANT":    {},
	"REVOKE":   {},
	"RENAME":   {},
	"CALL":     {},
	"EXEC":     {},
	"EXECUTE":  {},
	"COPY":     {},
	"LOAD":     {},
	"ATTACH":   {},
	"DETACH":   {},
	"INTO":     {},
}

// Classify scans sql without executing it. Words inside string literals,
// quoted identifiers and comments are ignored, as are qualified names
// (t.update) and function calls (REPLACE(...)).
func Classify(sql string) Statement {
	statements, unterminated := scan(sql)
	out := Statement{Count: len(statements), Unterminated: unterminated}
	if len(statements) == 0 {
		return out
	}

	returning := false
	for _, stmt := range statements {
		for _, w := range stmt {
			if w.call || w.qualified {
				continue
			}
			if _, ok := modifyingKeywords[w.text]; ok {
				out.Modifying = append(out.Modifying, w.text)
			}
			if w.text == "RETURNING" {
				returning = true
			}
		}
	}

	if first := statements[0]; len(first) > 0 {
		out.Keyword = first[0].text
	}
	_, rowKeyword := rowKeywords[out.Keyword]
	switch {
	case out.Keyword == "WITH":
		out.ReturnsRows = len(out.Modifying) == 0 || returning
	case rowKeyword:
		out.ReturnsRows = true
	default:
		out.ReturnsRows = returning
	}
	return out
}

type word struct {
	text      string
	call      bool
	qualified bool
}

// scan splits sql into statements of upper-cased bare words. A statement
// with content but no bare words (a lone literal, say) is kept with a nil
// word list so that it still counts.
func scan(sql string) ([][]word, bool) {
	var (
		statements [][]word
		current    []word
		content    bool
	)
	flush := func() {
		if content {
			if current == nil {
				current = []word{}
			}
			statements = append(statements, current)
		}
		current = nil
		content = false
	}

	n := len(sql)
	prev := byte(0)
	for i := 0; i < n; {
		c := sql[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			end := closeQuote(sql, i+1, c)
			if end < 0 {
				flush()
				return statements, true
			}
			content = true
			i = end + 1
			prev = c
			continue
		case c == '-' && i+1 < n && sql[i+1] == '-', c == '#':
			for i < n && sql[i] != '\n' {
				i++
			}
			continue
		case c == '/' && i+1 < n && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				flush()
				return statements, true
			}
			i += end + 4
			continue
		case c == ';':
			flush()
			i++
			prev = c
			continue
		case isWordStart(c):
			start := i
			for i < n && isWordPart(sql[i]) {
				i++
			}
			j := i
			for j < n && isSpace(sql[j]) {
				j++
			}
			current = append(current, word{
				text:      strings.ToUpper(sql[start:i]),
				call:      j < n && sql[j] == '(',
				qualified: prev == '.',
			})
			content = true
			prev = sql[i-1]
			continue
		}
		if !isSpace(c) {
			content = true
			prev = c
		}
		i++
	}
	flush()
	return statements, false
}

func closeQuote(sql string, from int, quote byte) int {
	for i := from; i < len(sql); i++ {
		switch sql[i] {
		case '\\':
			if quote != '`' {
				i++
			}
		case quote:
			if i+1 < len(sql) && sql[i+1] == quote {
				i++
				continue
			}
			return i
		}
	}
	return -1
}

func isWordStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isWordPart(c byte) bool {
	return isWordStart(c) || (c >= '0' && c <= '9') || c == '$'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}
