package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/vulnverified/certscan/internal/engine"
)

// WriteCertificateTable renders the certificate IDs found per subdomain.
func WriteCertificateTable(w io.Writer, result engine.ScanResult, noColor bool) {
	if len(result) == 0 {
		fmt.Fprintln(w, "\nNo certificates discovered.")
		return
	}

	subs := make([]string, 0, len(result))
	for sub := range result {
		subs = append(subs, sub)
	}
	sort.Strings(subs)

	rows := make([][]string, 0, len(subs))
	for _, sub := range subs {
		ids := result[sub]
		rows = append(rows, []string{
			sub,
			fmt.Sprintf("%d", len(ids)),
			truncate(strings.Join(ids, ", "), 60),
		})
	}

	fmt.Fprintln(w)
	writeTable(w, []string{"Subdomain", "Certificates", "IDs"}, rows, noColor)
}

// WriteRecordTable renders DNS records as type/value rows.
func WriteRecordTable(w io.Writer, rows [][]string, noColor bool) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "\nNo records found.")
		return
	}
	fmt.Fprintln(w)
	writeTable(w, []string{"Type", "Value"}, rows, noColor)
}

func writeTable(w io.Writer, headers []string, rows [][]string, noColor bool) {
	if noColor {
		writeSimpleTable(w, headers, rows)
		return
	}

	t := table.New().
		Headers(headers...).
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
			}
			return lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
		})

	for _, row := range rows {
		t.Row(row...)
	}

	fmt.Fprintln(w, t.Render())
}

func writeSimpleTable(w io.Writer, headers []string, rows [][]string) {
	// Calculate column widths.
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	// Print header.
	for i, h := range headers {
		if i > 0 {
			fmt.Fprint(w, " | ")
		}
		fmt.Fprintf(w, "%-*s", widths[i], h)
	}
	fmt.Fprintln(w)

	// Separator.
	for i, width := range widths {
		if i > 0 {
			fmt.Fprint(w, "-+-")
		}
		fmt.Fprint(w, strings.Repeat("-", width))
	}
	fmt.Fprintln(w)

	// Rows.
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				fmt.Fprint(w, " | ")
			}
			fmt.Fprintf(w, "%-*s", widths[i], cell)
		}
		fmt.Fprintln(w)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
