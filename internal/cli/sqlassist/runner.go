package sqlassist

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/duckmesh/sqlassist/internal/assistant"
	"github.com/duckmesh/sqlassist/internal/query"
)

// Assistant is the part of *assistant.Assistant the REPL drives.
type Assistant interface {
	ProcessQuery(ctx context.Context, question string) (assistant.Turn, error)
	History() []assistant.Entry
	Clear()
	LastResult() (query.Result, bool)
	Schema() string
}

type Exporter interface {
	Export(ctx context.Context, target string, result query.Result) (string, error)
}

type Options struct {
	Assistant Assistant
	// Exporter is optional; without it the export command is unavailable.
	Exporter Exporter
	Logger   *slog.Logger
	Stdin    io.Reader
	Stdout   io.Writer
	Stderr   io.Writer
	// Color is the default for the -color flag.
	Color bool
}

var demoQuestions = []string{
	"How many patients are there?",
	"Give me their names",
	"Which of them are older than 40?",
}

// Run starts the interactive loop, or answers a single question when
// -question is given. It returns the process exit code.
func Run(ctx context.Context, args []string, opts Options) int {
	stdout := opts.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("sqlassist", flag.ContinueOnError)
	fs.SetOutput(stderr)
	question := fs.String("question", "", "answer one question and exit")
	color := fs.Bool("color", opts.Color, "colorize output")
	demo := fs.Bool("demo", false, "run the scripted example conversation and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 0 {
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
		return 2
	}
	if opts.Assistant == nil {
		_, _ = fmt.Fprintln(stderr, "assistant is not configured")
		return 1
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &runner{
		assistant: opts.Assistant,
		exporter:  opts.Exporter,
		logger:    logger,
		out:       newPrinter(stdout, *color),
	}

	switch {
	case strings.TrimSpace(*question) != "":
		if err := r.ask(ctx, strings.TrimSpace(*question)); err != nil {
			return 1
		}
		return 0
	case *demo:
		failed := false
		for _, q := range demoQuestions {
			if err := r.ask(ctx, q); err != nil {
				failed = true
			}
		}
		r.showHistory()
		if failed {
			return 1
		}
		return 0
	}

	stdin := opts.Stdin
	if stdin == nil {
		_, _ = fmt.Fprintln(stderr, "no input available")
		return 1
	}
	r.loop(ctx, stdin)
	return 0
}

type runner struct {
	assistant Assistant
	exporter  Exporter
	logger    *slog.Logger
	out       *printer
}

func (r *runner) loop(ctx context.Context, stdin io.Reader) {
	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdin)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	r.out.banner()
	for {
		r.out.prompt()
		select {
		case <-ctx.Done():
			r.out.line("")
			r.out.line("Goodbye!")
			return
		case line, ok := <-lines:
			if !ok {
				r.out.line("")
				r.out.line("Goodbye!")
				return
			}
			if r.handle(ctx, line) {
				return
			}
		}
	}
}

// handle runs one line of input and reports whether the loop should stop.
func (r *runner) handle(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}
	fields := strings.Fields(input)
	command := strings.ToLower(fields[0])

	if len(fields) == 1 {
		switch command {
		case "quit", "exit", "q":
			r.out.line("Goodbye!")
			return true
		case "history":
			r.showHistory()
			return false
		case "clear":
			r.assistant.Clear()
			r.out.line("Conversation history cleared.")
			return false
		case "schema":
			r.out.line(r.assistant.Schema())
			return false
		case "help":
			r.out.help()
			return false
		}
	}
	if command == "export" && len(fields) == 2 {
		r.export(ctx, fields[1])
		return false
	}

	_ = r.ask(ctx, input)
	return false
}

// ask processes one question. A panic inside the turn is reported and
// turned into an error so the session survives it.
func (r *runner) ask(ctx context.Context, question string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.ErrorContext(ctx, "turn panicked", slog.Any("panic", rec))
			r.out.failure(fmt.Sprintf("An error occurred: %v", rec))
			err = fmt.Errorf("turn panicked: %v", rec)
		}
	}()

	r.out.section("Processing: " + question)
	turn, err := r.assistant.ProcessQuery(ctx, question)
	if turn.Entry.SQL != "" {
		r.out.line("")
		r.out.line(r.out.label("Generated SQL Query:"))
		r.out.sql(turn.Entry.SQL)
	}
	if err != nil {
		switch {
		case errors.Is(err, assistant.ErrGeneration):
			r.out.failure("Failed to generate SQL query: " + err.Error())
		case errors.Is(err, assistant.ErrRejected):
			r.out.failure("Refusing to run the generated SQL: " + err.Error())
		case errors.Is(err, assistant.ErrExecution):
			r.out.failure("Query failed: " + err.Error())
		default:
			r.out.failure(err.Error())
		}
		return err
	}
	r.out.result(turn.Result)
	return nil
}

func (r *runner) showHistory() {
	entries := r.assistant.History()
	if len(entries) == 0 {
		r.out.line("No conversation history yet.")
		return
	}
	r.out.heading("CONVERSATION HISTORY")
	for i, entry := range entries {
		r.out.line("")
		r.out.line(fmt.Sprintf("%d. [%s]", i+1, entry.Timestamp.Format("2006-01-02T15:04:05")))
		r.out.line("   User: " + entry.Question)
		sqlText := entry.SQL
		if sqlText == "" {
			sqlText = "(none)"
		}
		r.out.line("   SQL: " + sqlText)
		if len(entry.Results) > 0 {
			r.out.line(fmt.Sprintf("   Results: %d rows returned", len(entry.Results)))
		}
		if entry.Error != "" {
			r.out.line("   Error: " + entry.Error)
		}
	}
}

func (r *runner) export(ctx context.Context, target string) {
	if r.exporter == nil {
		r.out.failure("Export is not configured.")
		return
	}
	result, ok := r.assistant.LastResult()
	if !ok || !result.ReturnsRows {
		r.out.failure("Nothing to export yet: run a query that returns rows first.")
		return
	}
	location, err := r.exporter.Export(ctx, target, result)
	if err != nil {
		r.logger.ErrorContext(ctx, "export failed", slog.String("target", target), slog.Any("error", err))
		r.out.failure("Export failed: " + err.Error())
		return
	}
	r.out.line(fmt.Sprintf("Exported %d rows to %s", len(result.Rows), location))
}
