package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/creatorhub/copyscan/internal/models"
	"github.com/creatorhub/copyscan/internal/scheduler"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range headers {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(headers))
	for i := range headers {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render() + "\n"
}

func renderMatch(m *models.CopyrightMatch) string {
	var b strings.Builder
	rows := [][]string{
		{"ID", m.ID.String()},
		{"Original", m.OriginalRef},
		{"Candidate", m.CandidateURL},
		{"Platform", m.Platform},
		{"Similarity", percent(m.SimilarityScore)},
		{"Data quality", fmt.Sprintf("%s (%d aligned pairs)", m.DataQuality, m.AlignedPairs)},
		{"Frames", fmt.Sprintf("%d original / %d candidate", m.OriginalFrames, m.CandidateFrames)},
		{"Keyframe / OCR", fmt.Sprintf("%s / %s", percent(m.Breakdown.KeyframeScore), percent(m.Breakdown.OCRScore))},
		{"Face / Motion", fmt.Sprintf("%s / %s", percent(m.Breakdown.FaceScore), percent(m.Breakdown.MotionScore))},
		{"State", m.State()},
		{"Created", when(m.CreatedAt)},
	}
	b.WriteString(renderTable([]string{"Field", "Value"}, rows, nil))
	if len(m.Actions) > 0 {
		b.WriteString(renderActions(m.Actions))
	}
	return b.String()
}

func renderActions(actions []models.CopyrightAction) string {
	rows := make([][]string, 0, len(actions))
	for _, a := range actions {
		note := a.DocumentURL
		if note == "" {
			note = a.Detail
		}
		rows = append(rows, []string{a.ID.String(), string(a.ActionType), string(a.Status), note, when(a.CreatedAt)})
	}
	return renderTable([]string{"Action", "Type", "Status", "Document / Detail", "When"}, rows, nil)
}

func renderMatchList(matches []models.CopyrightMatch) string {
	rows := make([][]string, 0, len(matches))
	for _, m := range matches {
		rows = append(rows, []string{
			m.ID.String(),
			m.Platform,
			m.CandidateURL,
			percent(m.SimilarityScore),
			string(m.DataQuality),
			m.State(),
			when(m.CreatedAt),
		})
	}
	return renderTable(
		[]string{"Match", "Platform", "Candidate", "Score", "Quality", "State", "Created"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
	)
}

func renderJob(job *scheduler.Job) string {
	rows := [][]string{
		{"ID", job.ID.String()},
		{"Kind", job.Kind},
		{"Status", string(job.Status)},
		{"Attempts", fmt.Sprint(job.Attempts)},
		{"Run after", when(job.RunAfter)},
		{"Payload", string(job.Payload)},
	}
	if job.LastError != "" {
		rows = append(rows, []string{"Last error", job.LastError})
	}
	if len(job.Result) > 0 {
		rows = append(rows, []string{"Result", string(job.Result)})
	}
	return renderTable([]string{"Field", "Value"}, rows, nil)
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

func when(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}
