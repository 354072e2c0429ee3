package cmd

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/overmindtech/teardown/aws/procedurehelpers"
)

// renderSummary Prints one row per procedure that ran, followed by every
// resource whose deletion could not be confirmed
func renderSummary(out io.Writer, reports []*procedurehelpers.Report) {
	if len(reports) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Region", "Type", "Deleted", "Skipped", "Planned", "Unconfirmed", "Timed Out"})

	var deleted, skipped, planned, unconfirmed, timedOut int
	for _, r := range reports {
		t.AppendRow(table.Row{r.Region, r.Type, len(r.Deleted), len(r.Skipped), len(r.Planned), len(r.Unconfirmed), len(r.TimedOut)})

		deleted += len(r.Deleted)
		skipped += len(r.Skipped)
		planned += len(r.Planned)
		unconfirmed += len(r.Unconfirmed)
		timedOut += len(r.TimedOut)
	}

	t.AppendFooter(table.Row{"", "Total", deleted, skipped, planned, unconfirmed, timedOut})
	t.Render()

	if unconfirmed+timedOut == 0 {
		return
	}

	problems := table.NewWriter()
	problems.SetOutputMirror(out)
	problems.AppendHeader(table.Row{"Region", "Type", "Name", "Status"})

	for _, r := range reports {
		for _, name := range r.Unconfirmed {
			problems.AppendRow(table.Row{r.Region, r.Type, name, "unconfirmed"})
		}
		for _, name := range r.TimedOut {
			problems.AppendRow(table.Row{r.Region, r.Type, name, "timed out"})
		}
	}

	problems.Render()
}
