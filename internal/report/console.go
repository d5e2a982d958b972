package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mwiater/mockbench/internal/benchmark"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	fastestStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("34")).Bold(true).Padding(0, 1)
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("160")).Padding(0, 1)
	noteStyle    = lipgloss.NewStyle().Faint(true)
)

// RenderComparison renders the comparison table for the console.
func RenderComparison(results []benchmark.ConfigResult) string {
	c, ok := Compare(results)

	rows := make([][]string, 0, len(results))
	for _, res := range results {
		s := res.Summary
		avg, total := "-", "-"
		if s.HasTimings() {
			avg = fmt.Sprintf("%.3fs", s.Average)
			total = fmt.Sprintf("%.3fs", s.Total)
		}
		rows = append(rows, []string{
			res.Preset.Name,
			fmt.Sprint(res.Preset.Prefill),
			fmt.Sprint(res.Preset.Decode),
			avg,
			total,
			fmt.Sprintf("%d/%d", s.SuccessCount, s.QueryCount),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("Config", "Prefill", "Decode", "Avg Time", "Total Time", "Success").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row < 0 || row >= len(results):
				return cellStyle
			case !results[row].Summary.HasTimings():
				return failedStyle
			case ok && results[row].Preset == c.Fastest.Preset:
				return fastestStyle
			}
			return cellStyle
		})

	var b strings.Builder
	b.WriteString(titleStyle.Render("📈 BENCHMARK COMPARISON"))
	b.WriteString("\n")
	b.WriteString(t.String())
	b.WriteString("\n")
	if !ok {
		b.WriteString(noteStyle.Render("No configuration completed a query."))
		b.WriteString("\n")
		return b.String()
	}
	fmt.Fprintf(&b, "🏆 Fastest config: %s (avg: %.3fs)\n", c.Fastest.Preset.Name, c.Fastest.Summary.Average)
	fmt.Fprintf(&b, "⚡ Speedup: %.2fx faster than slowest\n", c.Speedup)
	return b.String()
}
