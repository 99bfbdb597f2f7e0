// Package assistant turns conversational questions into SQL, runs them and
// remembers what happened so that follow-up questions can build on it.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/duckmesh/sqlassist/internal/nl2sql"
	"github.com/duckmesh/sqlassist/internal/observability"
	"github.com/duckmesh/sqlassist/internal/query"
	"github.com/duckmesh/sqlassist/internal/sqlguard"
)

var (
	ErrGeneration = errors.New("sql generation failed")
	ErrRejected   = errors.New("generated sql was rejected")
	ErrExecution  = errors.New("sql execution failed")
)

type Config struct {
	// Schema is the rendered schema section of the prompt.
	Schema        string
	Rules         []string
	HistoryWindow int
	PreviewRows   int
	Temperature   float64
	MaxTokens     int
	LLMTimeout    time.Duration
	SQLTimeout    time.Duration
	RowLimit      int
	Guard         sqlguard.Policy
}

// Turn is the outcome of one ProcessQuery call.
type Turn struct {
	Entry  Entry
	Result query.Result
}

type Assistant struct {
	completer nl2sql.Completer
	engine    query.Engine
	logger    *slog.Logger
	config    Config
	history   History
	last      *query.Result
	now       func() time.Time
}

func New(cfg Config, completer nl2sql.Completer, engine query.Engine, logger *slog.Logger) (*Assistant, error) {
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("query engine is required")
	}
	if strings.TrimSpace(cfg.Schema) == "" {
		return nil, fmt.Errorf("schema description is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 5
	}
	if cfg.PreviewRows < 0 {
		cfg.PreviewRows = 3
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 200
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 30 * time.Second
	}
	if cfg.SQLTimeout <= 0 {
		cfg.SQLTimeout = 30 * time.Second
	}
	return &Assistant{
		completer: completer,
		engine:    engine,
		logger:    logger,
		config:    cfg,
		now:       time.Now,
	}, nil
}

// RenderHistory renders the configured window of the current history.
func (a *Assistant) RenderHistory() string {
	return RenderHistory(a.history.Recent(a.config.HistoryWindow), a.config.HistoryWindow, a.config.PreviewRows)
}

// GenerateSQL asks the completer for a statement answering question, given
// the rendered conversation history.
func (a *Assistant) GenerateSQL(ctx context.Context, question, history string) (string, error) {
	prompt := nl2sql.BuildPrompt(nl2sql.PromptInput{
		Schema:   a.config.Schema,
		Rules:    a.config.Rules,
		History:  history,
		Question: question,
	})

	callCtx, cancel := context.WithTimeout(ctx, a.config.LLMTimeout)
	defer cancel()

	start := time.Now()
	raw, err := a.completer.Complete(callCtx, nl2sql.Completion{
		System:      nl2sql.SystemPrompt,
		Prompt:      prompt,
		Temperature: a.config.Temperature,
		MaxTokens:   a.config.MaxTokens,
	})
	observability.ObserveCompletion(time.Since(start), err)
	if err != nil {
		a.logger.ErrorContext(ctx, "sql generation failed", slog.String("trace_id", observability.TraceIDFromContext(ctx)), slog.Any("error", err))
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	sqlText := nl2sql.StripMarkdownSQL(raw)
	if sqlText == "" {
		a.logger.WarnContext(ctx, "completion contained no sql", slog.String("trace_id", observability.TraceIDFromContext(ctx)))
		return "", fmt.Errorf("%w: empty response", ErrGeneration)
	}
	a.logger.DebugContext(ctx, "sql generated", slog.String("trace_id", observability.TraceIDFromContext(ctx)), slog.String("sql", sqlText))
	return sqlText, nil
}

// ExecuteSQL runs sqlText verbatim. A zero-row result is a success.
func (a *Assistant) ExecuteSQL(ctx context.Context, sqlText string) (query.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.config.SQLTimeout)
	defer cancel()

	start := time.Now()
	result, err := a.engine.Execute(callCtx, query.Request{SQL: sqlText, RowLimit: a.config.RowLimit})
	observability.ObserveExecution(time.Since(start), len(result.Rows), err)
	if err != nil {
		a.logger.ErrorContext(ctx, "sql execution failed", slog.String("trace_id", observability.TraceIDFromContext(ctx)), slog.Any("error", err))
		return query.Result{}, fmt.Errorf("%w: %w", ErrExecution, err)
	}
	a.logger.InfoContext(ctx, "sql executed",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.Int("rows", len(result.Rows)),
		slog.Int64("rows_affected", result.RowsAffected),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

// ProcessQuery runs one full turn and records it in the history, whatever
// the outcome. The returned error wraps ErrGeneration, ErrRejected or
// ErrExecution.
func (a *Assistant) ProcessQuery(ctx context.Context, question string) (Turn, error) {
	traceID := observability.TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = observability.NewTraceID()
		ctx = observability.ContextWithTraceID(ctx, traceID)
	}
	a.logger.InfoContext(ctx, "processing question", slog.String("trace_id", traceID), slog.String("question", question))

	entry := Entry{Question: question}
	sqlText, err := a.GenerateSQL(ctx, question, a.RenderHistory())
	if err != nil {
		return a.record(entry, query.Result{}, err, observability.OutcomeGenerationError)
	}
	entry.SQL = sqlText

	if err := a.config.Guard.Check(sqlText); err != nil {
		var rejection *sqlguard.RejectionError
		keyword := ""
		if errors.As(err, &rejection) {
			keyword = rejection.Keyword
		}
		observability.IncrementGuardRejection(keyword)
		a.logger.WarnContext(ctx, "generated sql rejected", slog.String("trace_id", traceID), slog.String("sql", sqlText), slog.Any("error", err))
		return a.record(entry, query.Result{}, fmt.Errorf("%w: %w", ErrRejected, err), observability.OutcomeRejected)
	}

	result, err := a.ExecuteSQL(ctx, sqlText)
	if err != nil {
		return a.record(entry, query.Result{}, err, observability.OutcomeExecutionError)
	}
	entry.Columns = result.Columns
	if len(result.Rows) > 0 {
		entry.Results = result.Rows
	}
	a.last = cloneResult(result)
	return a.record(entry, result, nil, observability.OutcomeSuccess)
}

func (a *Assistant) record(entry Entry, result query.Result, err error, outcome string) (Turn, error) {
	entry.Timestamp = a.now()
	if err != nil {
		entry.Error = err.Error()
	}
	a.history.Append(entry)
	observability.ObserveTurn(outcome)
	return Turn{Entry: entry, Result: result}, err
}

// History returns a copy of every recorded entry.
func (a *Assistant) History() []Entry {
	return a.history.Entries()
}

// Clear forgets the conversation and the retained result set.
func (a *Assistant) Clear() {
	a.history.Clear()
	a.last = nil
}

// LastResult returns the most recent successful result, if any.
func (a *Assistant) LastResult() (query.Result, bool) {
	if a.last == nil {
		return query.Result{}, false
	}
	return *cloneResult(*a.last), true
}

func cloneResult(result query.Result) *query.Result {
	if result.Columns != nil {
		result.Columns = append([]string(nil), result.Columns...)
	}
	result.Rows = cloneRows(result.Rows)
	return &result
}

// Schema returns the schema section used in prompts.
func (a *Assistant) Schema() string {
	return a.config.Schema
}
