package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ligustah/milvue/internal/pipeline"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// renderSummary lists every study of a run followed by the totals.
func renderSummary(s *pipeline.Summary) string {
	rows := make([][]string, 0, len(s.Studies))
	for _, r := range s.Studies {
		state := r.Stage.String()
		if r.Stage == pipeline.StageFailed {
			state = "failed at " + r.FailedAt.String()
		}
		detail := ""
		if err := r.Failure(); err != nil {
			detail = firstLine(err.Error())
		}
		rows = append(rows, []string{
			r.StudyKey,
			state,
			strconv.Itoa(r.Files),
			strconv.Itoa(len(r.Outputs)),
			strconv.Itoa(r.EmptySets),
			r.Elapsed.Round(time.Millisecond).String(),
			detail,
		})
	}

	var b strings.Builder
	b.WriteString(renderTable(
		[]string{"Study", "Stage", "Files", "Outputs", "Empty", "Elapsed", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
	))
	fmt.Fprintf(&b, "\nRun %s: %d studies, %d failed, %d files written in %s",
		s.RunID, len(s.Studies), len(s.Failed()), s.Outputs(), s.Elapsed.Round(time.Millisecond))
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
