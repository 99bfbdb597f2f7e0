package assistant

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestRenderHistoryEmpty(t *testing.T) {
	var h History
	if got := RenderHistory(h.Recent(5), 5, 3); got != "" {
		t.Fatalf("RenderHistory() = %q, want empty", got)
	}
}

func TestRenderHistoryKeepsNewestWindowInOrder(t *testing.T) {
	var h History
	for i := 1; i <= 7; i++ {
		h.Append(Entry{Question: fmt.Sprintf("question %d", i), SQL: fmt.Sprintf("SELECT %d", i)})
	}

	rendered := RenderHistory(h.Entries(), 5, 3)
	for _, gone := range []string{"'question 1'", "'question 2'"} {
		if strings.Contains(rendered, gone) {
			t.Fatalf("rendered history should not contain %s:\n%s", gone, rendered)
		}
	}
	last := -1
	for i := 3; i <= 7; i++ {
		at := strings.Index(rendered, fmt.Sprintf("%d. User asked: 'question %d'", i-2, i))
		if at < 0 {
			t.Fatalf("missing question %d:\n%s", i, rendered)
		}
		if at < last {
			t.Fatalf("question %d out of order:\n%s", i, rendered)
		}
		last = at
	}
	if h.Len() != 7 {
		t.Fatalf("Len() = %d; rendering must not drop entries", h.Len())
	}
}

func TestRenderHistoryFormatsEntries(t *testing.T) {
	entries := []Entry{
		{Question: "How many patients are there?", SQL: "SELECT COUNT(*) FROM patient_personal_details", Results: [][]any{{int64(5)}}},
		{Question: "List ids", SQL: "SELECT id FROM t", Results: [][]any{{1}, {2}, {3}, {4}}},
		{Question: "Broken", SQL: "SELEC", Error: "syntax error"},
		{Question: "Nothing", Error: "sql generation failed: timeout"},
		{Question: "Empty", SQL: "SELECT name FROM t WHERE 1 = 0"},
	}
	want := "Previous conversation context:\n" +
		"1. User asked: 'How many patients are there?'\n" +
		"   Generated SQL: SELECT COUNT(*) FROM patient_personal_details\n" +
		"   Results: [(5,)]\n\n" +
		"2. User asked: 'List ids'\n" +
		"   Generated SQL: SELECT id FROM t\n" +
		"   Results: [(1,), (2,), (3,)]...\n\n" +
		"3. User asked: 'Broken'\n" +
		"   Generated SQL: SELEC\n" +
		"   Error: syntax error\n\n" +
		"4. User asked: 'Nothing'\n" +
		"   Generated SQL: (none)\n" +
		"   Error: sql generation failed: timeout\n\n" +
		"5. User asked: 'Empty'\n" +
		"   Generated SQL: SELECT name FROM t WHERE 1 = 0\n\n"
	if got := RenderHistory(entries, 5, 3); got != want {
		t.Fatalf("RenderHistory() =\n%s\nwant\n%s", got, want)
	}
}

func TestRenderHistoryWithoutPreview(t *testing.T) {
	entries := []Entry{
		{Question: "How many patients are there?", SQL: "SELECT COUNT(*) FROM patient_personal_details", Results: [][]any{{int64(5)}}},
	}
	want := "Previous conversation context:\n" +
		"1. User asked: 'How many patients are there?'\n" +
		"   Generated SQL: SELECT COUNT(*) FROM patient_personal_details\n\n"
	if got := RenderHistory(entries, 5, 0); got != want {
		t.Fatalf("RenderHistory() =\n%s\nwant\n%s", got, want)
	}
}

func TestHistoryStoresDeepCopies(t *testing.T) {
	rows := [][]any{{"Asha", []byte("A+")}}
	var h History
	h.Append(Entry{Question: "names", Columns: []string{"name", "blood_group"}, Results: rows})

	rows[0][0] = "changed"
	h.Recent(1)[0].Results[0][0] = "changed"
	h.Entries()[0].Results[0][1].([]byte)[0] = 'B'

	got := h.Entries()[0]
	if got.Results[0][0] != "Asha" || string(got.Results[0][1].([]byte)) != "A+" {
		t.Fatalf("stored row = %v", got.Results[0])
	}
}

func TestPreviewRowsFormatsValues(t *testing.T) {
	ts := time.Date(2025, 3, 2, 9, 30, 0, 0, time.UTC)
	got := PreviewRows([][]any{{"Asha Rao", int64(34), nil, 1.5, ts, "O'Neil"}}, 3)
	want := `[('Asha Rao', 34, NULL, 1.5, '2025-03-02T09:30:00Z', 'O\'Neil')]`
	if got != want {
		t.Fatalf("PreviewRows() = %s, want %s", got, want)
	}
}

func TestHistoryCopiesAndClear(t *testing.T) {
	var h History
	h.Append(Entry{Question: "a"})
	h.Append(Entry{Question: "b"})

	entries := h.Entries()
	entries[0].Question = "mutated"
	if h.Entries()[0].Question != "a" {
		t.Fatal("Entries() must return a copy")
	}
	if recent := h.Recent(1); len(recent) != 1 || recent[0].Question != "b" {
		t.Fatalf("Recent(1) = %+v", recent)
	}

	h.Clear()
	if h.Len() != 0 || len(h.Entries()) != 0 {
		t.Fatalf("history not cleared: %+v", h.Entries())
	}
	if got := RenderHistory(h.Entries(), 5, 3); got != "" {
		t.Fatalf("RenderHistory() after Clear = %q", got)
	}
}
