package nl2sql

import "context"

// Completion is a single chat-completion request: one system message, one user prompt.
type Completion struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Completer turns a prompt into generated text. Implementations own transport and auth.
type Completer interface {
	Complete(ctx context.Context, req Completion) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, req Completion) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req Completion) (string, error) {
	return f(ctx, req)
}
