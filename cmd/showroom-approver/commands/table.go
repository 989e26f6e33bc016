package commands

import (
	"os"
	"showroom-approver/internal/scrapers/showroom"

	"github.com/jedib0t/go-pretty/v6/table"
)

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

func renderRecords(records []showroom.ApprovalRecord) {
	t := newTable()
	t.AppendHeader(table.Row{"Room", "Room name", "Event", "Event name"})
	for _, r := range records {
		t.AppendRow(table.Row{r.RoomId, r.RoomName, r.EventId, r.EventName})
	}
	t.AppendFooter(table.Row{"", "", "Pending", len(records)})
	t.Render()
}

func renderOutcomes(outcomes []showroom.ApprovalOutcome) {
	t := newTable()
	t.AppendHeader(table.Row{"Room", "Event", "Status", "Final url", "Message"})
	for _, o := range outcomes {
		t.AppendRow(table.Row{o.RoomId, o.EventId, o.Status.String(), o.FinalUrl, o.Message})
	}
	t.Render()
}
