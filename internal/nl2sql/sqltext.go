package nl2sql

import (
	"regexp"
	"strings"
)

// fencedBlock matches the first ``` fenced block, with or without a language tag.
var fencedBlock = regexp.MustCompile("(?s)```(?:[A-Za-z0-9_-]*[ \t]*\\r?\\n)?(.*?)```")

// StripMarkdownSQL returns the bare statement from a model reply. When the reply
// carries a fenced block, only the block body is kept, even if prose surrounds it.
// An unterminated fence is treated as running to the end of the reply.
func StripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if !strings.Contains(trimmed, "```") {
		return trimmed
	}
	if match := fencedBlock.FindStringSubmatch(trimmed); match != nil {
		return trimSQLTag(match[1])
	}

	start := strings.Index(trimmed, "```")
	body := trimmed[start+3:]
	if newline := strings.IndexByte(body, '\n'); newline >= 0 && isLanguageTag(body[:newline]) {
		body = body[newline+1:]
	}
	return trimSQLTag(strings.ReplaceAll(body, "```", ""))
}

// trimSQLTag drops a "sql" tag written on the same line as the opening fence,
// as in ```sql SELECT 1```.
func trimSQLTag(body string) string {
	body = strings.TrimSpace(body)
	if len(body) > 3 && strings.EqualFold(body[:3], "sql") && isSpace(body[3]) {
		return strings.TrimSpace(body[4:])
	}
	return body
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

func isLanguageTag(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return true
	}
	for _, r := range value {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-') {
			return false
		}
	}
	return true
}
