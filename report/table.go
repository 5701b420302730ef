package report

import (
	"bytes"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/perfgo/webgrid/model"
)

// TableSummary renders one row per test execution plus a totals footer.
func TableSummary(r *model.Report) string {
	var buf bytes.Buffer

	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.SetTitle(r.Name)

	t.AppendHeader(table.Row{"Test", "Attempt", "Worker", "Duration", "Status", "Artifacts"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Test", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Attempt", Align: text.AlignRight},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Artifacts", Align: text.AlignRight},
	})

	for _, n := range r.Tests {
		t.AppendRow(table.Row{
			n.Name,
			n.Attempt,
			n.Worker,
			formatDuration(n.Duration),
			statusText(n.Status),
			len(n.Artifacts()),
		})
	}

	switch {
	case r.Totals.Failed > 0:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	case r.Totals.Skipped > 0:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		r.Totals.Executions,
		"",
		formatDuration(r.Duration),
		fmt.Sprintf("%d/%d/%d", r.Totals.Passed, r.Totals.Failed, r.Totals.Skipped),
		r.Totals.Artifacts,
	})

	t.Render()
	return buf.String()
}

func statusText(s model.Status) string {
	switch s {
	case model.StatusPassed:
		return "PASS"
	case model.StatusFailed:
		return "FAIL"
	case model.StatusSkipped:
		return "SKIP"
	}
	return "UNKNOWN"
}
