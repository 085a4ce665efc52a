// Package report renders tagging reports for terminals and appends them to a
// shared JSONL results log.
package report

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/gomlx/go-tagging-eval/tagging"
)

var (
	colorAccent = lipgloss.Color("#20B9B4")
	colorMuted  = lipgloss.Color("#2C4A54")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	nameStyle   = lipgloss.NewStyle().Padding(0, 1)
	valueStyle  = lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Right)
)

// FormatValue formats a metric value with 2 decimals, or 4 for the loss.
func FormatValue(m tagging.Metric) string {
	precision := 2
	if m.Name == tagging.MetricLoss {
		precision = 4
	}
	return strconv.FormatFloat(m.Value, 'f', precision, 64)
}

// Render returns a two-column table of the report, in report order, under the given title.
func Render(title string, r tagging.Report) string {
	rows := make([][]string, len(r))
	for i, m := range r {
		rows[i] = []string{m.Name, FormatValue(m)}
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorMuted)).
		Headers("metric", "value").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 1:
				return valueStyle
			}
			return nameStyle
		})
	if title == "" {
		return t.Render()
	}
	return lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(title), t.Render())
}
