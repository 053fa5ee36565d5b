package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Align places a cell within its column.
type Align int

const (
	AlignLeft Align = iota
	AlignRight
)

// Column defines a table column. Numeric columns read best right-aligned.
type Column struct {
	Title string
	Width int
	Align Align
}

// Row is a slice of cell values. Cells may already carry lipgloss styling.
type Row []string

// Table renders rows under a header and a dashed divider.
type Table struct {
	Columns []Column
	Rows    []Row
}

// NewTable creates a table with no rows.
func NewTable(cols []Column) *Table {
	return &Table{Columns: cols}
}

// AddRow appends a row. Missing trailing cells render empty.
func (t *Table) AddRow(r Row) {
	t.Rows = append(t.Rows, r)
}

// Render returns the table, one line per row.
func (t *Table) Render() string {
	header := lipgloss.NewStyle().Foreground(ColorHighlight).Bold(true)
	value := lipgloss.NewStyle().Foreground(ColorValue)

	var sb strings.Builder
	line := func(cell func(j int, c Column) string) {
		parts := make([]string, len(t.Columns))
		for j, c := range t.Columns {
			parts[j] = cell(j, c)
		}
		sb.WriteString(strings.Join(parts, " "))
		sb.WriteString("\n")
	}

	line(func(_ int, c Column) string { return header.Render(fit(c.Title, c.Width, c.Align)) })
	line(func(_ int, c Column) string { return StyleDim.Render(strings.Repeat("-", c.Width)) })
	for _, row := range t.Rows {
		line(func(j int, c Column) string {
			var v string
			if j < len(row) {
				v = row[j]
			}
			return value.Render(fit(v, c.Width, c.Align))
		})
	}
	return sb.String()
}

// fit pads or truncates s to exactly width terminal cells. Escape codes in
// styled cells do not count toward the width.
func fit(s string, width int, align Align) string {
	if lipgloss.Width(s) > width {
		s = lipgloss.NewStyle().MaxWidth(width).Render(s)
	}
	gap := strings.Repeat(" ", max(0, width-lipgloss.Width(s)))
	if align == AlignRight {
		return gap + s
	}
	return s + gap
}

// KeyValueBlock renders a set of key-value pairs in a bordered box.
func KeyValueBlock(title string, pairs [][2]string) string {
	var sb strings.Builder
	if title != "" {
		sb.WriteString(StyleTitle.Render(title))
		sb.WriteString("\n")
	}
	for _, p := range pairs {
		key := StyleMeta.Render(fmt.Sprintf("%-20s", p[0]+":"))
		val := StyleValue.Render(p[1])
		sb.WriteString("  " + key + " " + val + "\n")
	}
	return StyleBorder.Render(sb.String())
}
