package nl2sql

import (
	"strings"
)

// SystemPrompt is sent as the system message of every SQL generation request.
const SystemPrompt = "You are a helpful assistant that writes SQL queries based on natural language and conversation context. Return only the SQL query."

// baseRules apply regardless of the schema in use.
var baseRules = []string{
	`If the user asks "how many", return a COUNT query.`,
	"Follow-up questions may refer to earlier questions, generated SQL or results in the conversation context; resolve pronouns such as \"their\" or \"those\" against them.",
	"Use only the tables and columns listed in the schema.",
	"Output only the SQL query, with no explanations or commentary.",
}

type PromptInput struct {
	// Schema is the rendered schema description, including the dialect line.
	Schema string
	// Rules are schema-specific disambiguation hints.
	Rules    []string
	History  string
	Question string
}

// BuildPrompt assembles the user message: schema, rules, conversation context, question.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder
	b.WriteString("You are an assistant that converts natural language into SQL queries.\n\n")
	b.WriteString("Here is the database schema:\n\n")
	b.WriteString(strings.TrimSpace(in.Schema))
	b.WriteString("\n\nAdditional Context:\n")
	for _, rule := range in.Rules {
		rule = strings.TrimSpace(rule)
		if rule == "" {
			continue
		}
		b.WriteString("- ")
		b.WriteString(rule)
		b.WriteString("\n")
	}
	for _, rule := range baseRules {
		b.WriteString("- ")
		b.WriteString(rule)
		b.WriteString("\n")
	}
	if history := strings.TrimSpace(in.History); history != "" {
		b.WriteString("\n")
		b.WriteString(history)
		b.WriteString("\n")
	}
	b.WriteString("\nBased on the schema and previous conversation context, convert the following natural language question into a SQL query.\n")
	b.WriteString("Consider any references to previous queries or results.\n\n")
	b.WriteString(`Current Question: "`)
	b.WriteString(strings.TrimSpace(in.Question))
	b.WriteString("\"\n\nSQL Query:")
	return b.String()
}
