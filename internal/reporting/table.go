// internal/reporting/table.go
package reporting

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/xkilldash9x/formpilot/internal/formfill"
)

// NewTable returns a rounded table writer mirrored to w.
func NewTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

// RenderTable prints one row per target followed by a summary footer.
func RenderTable(w io.Writer, result *formfill.BatchResult) {
	t := NewTable(w)
	t.SetTitle(fmt.Sprintf("Run %s: %s", result.RunID, result.Status))
	t.AppendHeader(table.Row{"#", "Identifier", "Reference", "Status", "Duration", "Error"})
	for _, tr := range result.Targets {
		d := duration(tr.StartedAt, tr.FinishedAt)
		dur := ""
		if d > 0 {
			dur = d.Round(time.Millisecond).String()
		}
		t.AppendRow(table.Row{tr.Target.Index, tr.Target.Identifier, tr.Target.Reference, tr.Status, dur, errorText(tr.Err)})
	}
	submitted, failed, skipped := result.Counts()
	t.AppendFooter(table.Row{"", "", "Total", fmt.Sprintf("%d/%d submitted", submitted, len(result.Targets)),
		fmt.Sprintf("%d failed", failed), fmt.Sprintf("%d skipped", skipped)})
	t.Render()
}
