package nl2sql

import (
	"strings"
	"testing"
)

func TestBuildPromptOrdersSections(t *testing.T) {
	prompt := BuildPrompt(PromptInput{
		Schema:   "Table: patient_personal_details\n- id (BIGINT)",
		Rules:    []string{`When the user refers to "patients", use patient_personal_details.`, " "},
		History:  "Previous conversation context:\n1. User asked: 'How many patients are there?'",
		Question: "  Give me their names ",
	})

	schemaAt := strings.Index(prompt, "Table: patient_personal_details")
	ruleAt := strings.Index(prompt, `"patients"`)
	countAt := strings.Index(prompt, "COUNT query")
	historyAt := strings.Index(prompt, "Previous conversation context:")
	questionAt := strings.Index(prompt, `Current Question: "Give me their names"`)
	for name, at := range map[string]int{"schema": schemaAt, "rule": ruleAt, "count": countAt, "history": historyAt, "question": questionAt} {
		if at < 0 {
			t.Fatalf("prompt missing %s section:\n%s", name, prompt)
		}
	}
	if !(schemaAt < ruleAt && ruleAt < historyAt && historyAt < questionAt) {
		t.Fatalf("unexpected section order:\n%s", prompt)
	}
	if strings.Contains(prompt, "- \n") {
		t.Fatalf("blank rule rendered:\n%s", prompt)
	}
	if !strings.HasSuffix(prompt, "SQL Query:") {
		t.Fatalf("prompt should end with the SQL cue:\n%s", prompt)
	}
}

func TestBuildPromptWithoutHistory(t *testing.T) {
	prompt := BuildPrompt(PromptInput{Schema: "Table: t", Question: "q"})
	if strings.Contains(prompt, "Previous conversation context") {
		t.Fatalf("unexpected history section:\n%s", prompt)
	}
}
