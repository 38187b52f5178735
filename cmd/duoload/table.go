package main

import (
	"strconv"
	"time"

	"github.com/Sternrassler/duoload/pkg/transfer"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func renderSummary(s transfer.Summary) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Summary", ""})

	pages := strconv.Itoa(s.Pages)
	if s.LimitReached {
		pages += " (limit reached)"
	}

	tw.AppendRows([]table.Row{
		{"Pages", pages},
		{"Fetched", s.Fetched},
		{"Added", s.Admitted},
		{"Duplicates skipped", s.DuplicatesSkipped},
		{"Elapsed", s.Elapsed.Round(time.Millisecond).String()},
	})

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})

	return tw.Render()
}
