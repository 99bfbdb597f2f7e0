package sqlguard

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmpty              = errors.New("sql statement is empty")
	ErrMultipleStatements = errors.New("only one sql statement may be executed per question")
	ErrNotAllowed         = errors.New("sql statement is not allowed")
)

// DefaultAllowed is the read-only allow-list.
var DefaultAllowed = []string{"SELECT", "WITH", "SHOW", "DESCRIBE", "DESC", "EXPLAIN"}

// Policy decides whether generated SQL may run. The zero value allows any
// single statement.
type Policy struct {
	ReadOnly bool
	// Allowed holds permitted leading keywords when ReadOnly is set.
	// Empty means DefaultAllowed.
	Allowed []string
}

// RejectionError names the keyword that caused a rejection. It unwraps to
// ErrNotAllowed.
type RejectionError struct {
	Keyword string
	Reason  string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s", ErrNotAllowed, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	return ErrNotAllowed
}

// Check classifies sql and returns an error when the policy forbids running it.
func (p Policy) Check(sql string) error {
	if strings.TrimSpace(sql) == "" {
		return ErrEmpty
	}
	stmt := Classify(sql)
	if stmt.Unterminated {
		return &RejectionError{Reason: "unterminated quote or comment"}
	}
	if stmt.Count == 0 {
		return ErrEmpty
	}
	if stmt.Count > 1 {
		return fmt.Errorf("%w: found %d", ErrMultipleStatements, stmt.Count)
	}
	if !p.ReadOnly {
		return nil
	}
	if stmt.Keyword == "" {
		return &RejectionError{Reason: "statement has no leading keyword"}
	}
	if !p.allows(stmt.Keyword) {
		return &RejectionError{Keyword: stmt.Keyword, Reason: fmt.Sprintf("%s statements are not permitted in read-only mode", stmt.Keyword)}
	}
	if len(stmt.Modifying) > 0 {
		keyword := stmt.Modifying[0]
		return &RejectionError{Keyword: keyword, Reason: fmt.Sprintf("%s is not permitted in read-only mode", keyword)}
	}
	return nil
}

func (p Policy) allows(keyword string) bool {
	allowed := p.Allowed
	if len(allowed) == 0 {
		allowed = DefaultAllowed
	}
	for _, candidate := range allowed {
		if strings.EqualFold(strings.TrimSpace(candidate), keyword) {
			return true
		}
	}
	return false
}
