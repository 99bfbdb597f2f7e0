package query

import (
	"context"
	"time"
)

type Request struct {
	SQL string
	// RowLimit caps materialized rows; 0 means unlimited.
	RowLimit int
}

type Result struct {
	Columns []string
	Rows    [][]any
	// ReturnsRows is false for statements that were executed for effect.
	ReturnsRows  bool
	RowsAffected int64
	// Truncated reports that RowLimit stopped the scan early.
	Truncated bool
	Duration  time.Duration
}

// Engine runs a single SQL statement. Implementations acquire whatever
// connection they need per call and release it before returning.
type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}
