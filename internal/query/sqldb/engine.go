package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/duckmesh/sqlassist/internal/query"
	"github.com/duckmesh/sqlassist/internal/sqlguard"
)

// Engine executes statements against a pooled *sql.DB.
type Engine struct {
	DB *sql.DB
}

func NewEngine(db *sql.DB) *Engine {
	return &Engine{DB: db}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText := stripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	if e.DB == nil {
		return query.Result{}, fmt.Errorf("database is required")
	}

	start := time.Now()
	conn, err := e.DB.Conn(ctx)
	if err != nil {
		return query.Result{}, &ConnectionError{Op: "acquire", Err: err}
	}
	defer func() { _ = conn.Close() }()

	var result query.Result
	statement := sqlguard.Classify(sqlText)
	switch {
	case statement.ReturnsRows:
		result, err = queryRows(ctx, conn, sqlText, request.RowLimit)
	case procedureKeywords[statement.Keyword]:
		result, err = callProcedure(ctx, conn, sqlText, request.RowLimit)
	default:
		result, err = execStatement(ctx, conn, sqlText)
	}
	if err != nil {
		return query.Result{}, err
	}
	result.Duration = time.Since(start)
	return result, nil
}

func queryRows(ctx context.Context, conn *sql.Conn, sqlText string, limit int) (query.Result, error) {
	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, &QueryError{SQL: sqlText, Err: err}
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, &QueryError{SQL: sqlText, Err: fmt.Errorf("read columns: %w", err)}
	}

	result := query.Result{Columns: columns, Rows: make([][]any, 0), ReturnsRows: true}
	for rows.Next() {
		if limit > 0 && len(result.Rows) == limit {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, &QueryError{SQL: sqlText, Err: fmt.Errorf("scan row: %w", err)}
		}
		result.Rows = append(result.Rows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, &QueryError{SQL: sqlText, Err: fmt.Errorf("iterate rows: %w", err)}
	}
	return result, nil
}

// procedureKeywords start statements that may or may not produce a result
// set; only the driver knows which.
var procedureKeywords = map[string]bool{
	"CALL":    true,
	"EXEC":    true,
	"EXECUTE": true,
}

// callProcedure runs a procedure call through the query path so a result
// set it produces is kept. A call without one reports no rows.
func callProcedure(ctx context.Context, conn *sql.Conn, sqlText string, limit int) (query.Result, error) {
	result, err := queryRows(ctx, conn, sqlText, limit)
	if err != nil {
		return query.Result{}, err
	}
	if len(result.Columns) == 0 {
		return query.Result{}, nil
	}
	return result, nil
}

// execStatement runs a statement that produces no rows inside a transaction
// and commits it.
func execStatement(ctx context.Context, conn *sql.Conn, sqlText string) (query.Result, error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return query.Result{}, &QueryError{SQL: sqlText, Err: fmt.Errorf("begin transaction: %w", err)}
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, &QueryError{SQL: sqlText, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return query.Result{}, &QueryError{SQL: sqlText, Err: fmt.Errorf("commit: %w", err)}
	}

	affected, err := res.RowsAffected()
	if err != nil {
		affected = 0
	}
	return query.Result{RowsAffected: affected}, nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
