package sqlassist

import (
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/duckmesh/sqlassist/internal/assistant"
	"github.com/duckmesh/sqlassist/internal/query"
)

const ruleWidth = 60

type printer struct {
	w     io.Writer
	color bool

	bold   lipgloss.Style
	dim    lipgloss.Style
	errorS lipgloss.Style
	labelS lipgloss.Style
	header lipgloss.Style
}

func newPrinter(w io.Writer, color bool) *printer {
	r := lipgloss.NewRenderer(w)
	return &printer{
		w:      w,
		color:  color,
		bold:   r.NewStyle().Bold(true),
		dim:    r.NewStyle().Faint(true),
		errorS: r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		labelS: r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#559db6", Dark: "#a3ddef"}).Bold(true),
		header: r.NewStyle().Bold(true).Padding(0, 1),
	}
}

func (p *printer) render(style lipgloss.Style, s string) string {
	if !p.color {
		return s
	}
	return style.Render(s)
}

func (p *printer) label(s string) string { return p.render(p.labelS, s) }

func (p *printer) line(s string) {
	_, _ = fmt.Fprintln(p.w, s)
}

func (p *printer) prompt() {
	_, _ = fmt.Fprint(p.w, "\n"+p.label("Ask me anything:")+" ")
}

func (p *printer) failure(s string) {
	p.line(p.render(p.errorS, s))
}

func (p *printer) section(title string) {
	rule := strings.Repeat("=", ruleWidth)
	p.line("")
	p.line(p.render(p.dim, rule))
	p.line(p.render(p.bold, title))
	p.line(p.render(p.dim, rule))
}

func (p *printer) heading(title string) {
	rule := strings.Repeat("=", ruleWidth+20)
	p.line("")
	p.line(rule)
	p.line(p.render(p.bold, title))
	p.line(rule)
}

func (p *printer) banner() {
	p.heading("CONVERSATIONAL SQL ASSISTANT")
	p.line("Ask questions in natural language. I'll remember our conversation!")
	p.help()
}

func (p *printer) help() {
	p.line("")
	p.line("Special commands:")
	p.line("- 'history'         : Show conversation history")
	p.line("- 'clear'           : Clear conversation history")
	p.line("- 'schema'          : Show the schema the assistant works with")
	p.line("- 'export <target>' : Save the last result (.csv, .json, .parquet; s3://key for the object store)")
	p.line("- 'quit' or 'exit'  : Exit the program")
}

// sql prints a statement, highlighted when color is on.
func (p *printer) sql(statement string) {
	if p.color {
		var b strings.Builder
		if err := quick.Highlight(&b, statement, "sql", "terminal256", "monokai"); err == nil {
			p.line(strings.TrimRight(b.String(), "\n"))
			return
		}
	}
	p.line(statement)
}

func (p *printer) result(result query.Result) {
	if !result.ReturnsRows {
		p.line("")
		p.line(fmt.Sprintf("Query executed successfully (no return rows, %d affected).", result.RowsAffected))
		return
	}
	p.line("")
	p.line(p.label(fmt.Sprintf("Query Results (%d rows):", len(result.Rows))))
	if len(result.Columns) > 0 {
		p.line(p.table(result))
	}
	if result.Truncated {
		p.line(p.render(p.dim, fmt.Sprintf("(row limit reached, showing the first %d rows)", len(result.Rows))))
	}
}

func (p *printer) table(result query.Result) string {
	rows := make([][]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		cells := make([]string, len(result.Columns))
		for i := range cells {
			if i < len(row) {
				cells[i] = assistant.FormatValue(row[i], false)
			}
		}
		rows = append(rows, cells)
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(result.Columns...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				if p.color {
					return p.header
				}
				return lipgloss.NewStyle().Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	if p.color {
		t = t.BorderStyle(p.dim)
	}
	return t.Render()
}
