package assistant

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Entry records one processed question.
type Entry struct {
	Timestamp time.Time
	Question  string
	// SQL is empty when generation failed.
	SQL     string
	Columns []string
	// Results is nil when execution failed or was never attempted.
	Results [][]any
	Error   string
}

func (e Entry) Failed() bool {
	return e.Error != ""
}

// clone copies the column and row storage so that neither the caller that
// produced the entry nor a reader of it can change what was recorded.
func (e Entry) clone() Entry {
	if e.Columns != nil {
		e.Columns = append([]string(nil), e.Columns...)
	}
	e.Results = cloneRows(e.Results)
	return e
}

func cloneRows(rows [][]any) [][]any {
	if rows == nil {
		return nil
	}
	out := make([][]any, len(rows))
	for i, row := range rows {
		out[i] = cloneRow(row)
	}
	return out
}

func cloneRow(row []any) []any {
	if row == nil {
		return nil
	}
	out := make([]any, len(row))
	for i, value := range row {
		if raw, ok := value.([]byte); ok {
			value = append([]byte(nil), raw...)
		}
		out[i] = value
	}
	return out
}

// History is the append-only conversation log. It is not safe for
// concurrent use; the assistant serializes turns.
type History struct {
	entries []Entry
}

func (h *History) Append(entry Entry) {
	h.entries = append(h.entries, entry.clone())
}

// Entries returns a deep copy of every entry in chronological order.
func (h *History) Entries() []Entry {
	return cloneEntries(h.entries)
}

// Recent returns at most n of the newest entries, oldest first.
func (h *History) Recent(n int) []Entry {
	if n <= 0 || len(h.entries) == 0 {
		return nil
	}
	start := len(h.entries) - n
	if start < 0 {
		start = 0
	}
	return cloneEntries(h.entries[start:])
}

func cloneEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, entry := range entries {
		out[i] = entry.clone()
	}
	return out
}

func (h *History) Len() int {
	return len(h.entries)
}

func (h *History) Clear() {
	h.entries = nil
}

// RenderHistory formats the newest window entries for a prompt. It returns
// the empty string when there is nothing to render. A previewRows of zero
// leaves result previews out; a negative one shows every row.
func RenderHistory(entries []Entry, window, previewRows int) string {
	if window <= 0 || len(entries) == 0 {
		return ""
	}
	if len(entries) > window {
		entries = entries[len(entries)-window:]
	}

	var b strings.Builder
	b.WriteString("Previous conversation context:\n")
	for i, entry := range entries {
		fmt.Fprintf(&b, "%d. User asked: '%s'\n", i+1, entry.Question)
		sqlText := strings.TrimSpace(entry.SQL)
		if sqlText == "" {
			sqlText = "(none)"
		}
		fmt.Fprintf(&b, "   Generated SQL: %s\n", sqlText)
		if len(entry.Results) > 0 && previewRows != 0 {
			fmt.Fprintf(&b, "   Results: %s\n", PreviewRows(entry.Results, previewRows))
		}
		if entry.Error != "" {
			fmt.Fprintf(&b, "   Error: %s\n", entry.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// PreviewRows renders the first n rows as a list of tuples, adding "..."
// when rows were left out.
func PreviewRows(rows [][]any, n int) string {
	shown := rows
	if n >= 0 && len(rows) > n {
		shown = rows[:n]
	}
	parts := make([]string, 0, len(shown))
	for _, row := range shown {
		parts = append(parts, formatTuple(row))
	}
	out := "[" + strings.Join(parts, ", ") + "]"
	if len(shown) < len(rows) {
		out += "..."
	}
	return out
}

func formatTuple(row []any) string {
	values := make([]string, 0, len(row))
	for _, value := range row {
		values = append(values, FormatValue(value, true))
	}
	if len(values) == 1 {
		return "(" + values[0] + ",)"
	}
	return "(" + strings.Join(values, ", ") + ")"
}

// FormatValue renders a scanned column value. Strings are single-quoted when
// quote is set.
func FormatValue(value any, quote bool) string {
	switch typed := value.(type) {
	case nil:
		return "NULL"
	case string:
		if quote {
			return "'" + strings.ReplaceAll(typed, "'", `\'`) + "'"
		}
		return typed
	case []byte:
		return FormatValue(string(typed), quote)
	case time.Time:
		return FormatValue(typed.Format(time.RFC3339), quote)
	case float32:
		return strconv.FormatFloat(float64(typed), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(typed, 'g', -1, 64)
	case fmt.Stringer:
		return FormatValue(typed.String(), quote)
	default:
		return fmt.Sprint(typed)
	}
}
