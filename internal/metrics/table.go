package metrics

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// RenderTable renders a run's per-video outcomes as a rounded-box table,
// adapted from the teacher's batch-run summary renderer.
func (s Summary) RenderTable() string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Video", "Status", "Type", "Segments", "Duration"})

	for _, o := range s.Outcomes {
		tw.AppendRow(table.Row{
			truncate(o.Title, 40),
			string(o.Status),
			string(o.VideoType),
			o.SegmentCount,
			o.Duration.Round(1e9),
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignLeft},
		{Number: 3, Align: text.AlignLeft},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})

	tw.AppendFooter(table.Row{
		fmt.Sprintf("%d videos", s.Total), "", "",
		s.SegmentsWritten, s.Elapsed.Round(1e9),
	})

	return tw.Render()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
