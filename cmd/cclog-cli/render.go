package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/victorarias/cclog/internal/logs"
)

const (
	ansiReset     = "\x1b[0m"
	ansiHighlight = "\x1b[1;33m"
)

var hlPattern = regexp.MustCompile(`<<hl>>(.*?)<</hl>>`)

func writeProjectsTable(w io.Writer, projects []logs.Project) error {
	tw := newTable(w)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 4, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignCenter},
	})
	tw.AppendHeader(table.Row{"ID", "Name", "Sessions", "Last Active", "Size"})

	idWidth := columnBudget(w, 40)
	for _, p := range projects {
		tw.AppendRow(table.Row{
			truncateCell(p.ID, idWidth),
			p.ShortName,
			p.SessionCount,
			timeOrDash(p.LastActive),
			formatBytes(p.TotalSizeBytes),
		})
	}
	if len(projects) == 0 {
		tw.AppendRow(table.Row{"-", "(no projects)", 0, "-", "0 B"})
	}

	tw.Render()
	return nil
}

func writeProjectsPlain(w io.Writer, projects []logs.Project, includeHeader bool) error {
	if includeHeader {
		if _, err := fmt.Fprintln(w, "id\tname\tsessions\tlast_active\tsize_bytes"); err != nil {
			return err
		}
	}
	for _, p := range projects {
		line := fmt.Sprintf("%s\t%s\t%d\t%s\t%d",
			p.ID, p.ShortName, p.SessionCount, timeOrDash(p.LastActive), p.TotalSizeBytes)
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func writeSessionsTable(w io.Writer, sessions []logs.SessionSummary) error {
	tw := newTable(w)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 3, Align: text.AlignCenter, AlignHeader: text.AlignCenter},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 6, Align: text.AlignLeft, AlignHeader: text.AlignCenter, WidthMax: 80},
	})
	tw.AppendHeader(table.Row{"ID", "Started", "Duration", "Messages", "Size", "First Message"})

	msgWidth := columnBudget(w, 60)
	for _, s := range sessions {
		tw.AppendRow(table.Row{
			s.ID,
			timeOrDash(s.StartTime),
			s.DurationDisplay,
			s.MessageCount,
			formatBytes(s.FileSizeBytes),
			truncateCell(escapeNewlines(s.FirstMessage), msgWidth),
		})
	}
	if len(sessions) == 0 {
		tw.AppendRow(table.Row{"(no sessions)", "-", "-", 0, "0 B", "-"})
	}

	tw.Render()
	return nil
}

func writeSessionsPlain(w io.Writer, sessions []logs.SessionSummary, includeHeader bool) error {
	if includeHeader {
		if _, err := fmt.Fprintln(w, "id\tstart_time\tduration\tmessages\tsize_bytes\tfirst_message"); err != nil {
			return err
		}
	}
	for _, s := range sessions {
		line := fmt.Sprintf("%s\t%s\t%s\t%d\t%d\t%s",
			s.ID, timeOrDash(s.StartTime), s.DurationDisplay, s.MessageCount,
			s.FileSizeBytes, escapeNewlines(s.FirstMessage))
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func writeResultsTable(w io.Writer, results []logs.SearchResult, useColor bool) error {
	tw := newTable(w)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 3, Align: text.AlignCenter, AlignHeader: text.AlignCenter},
		{Number: 4, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 5, Align: text.AlignLeft, AlignHeader: text.AlignCenter, WidthMax: 80},
	})
	tw.AppendHeader(table.Row{"Session", "Project", "Role", "Time", "Snippet"})

	for _, r := range results {
		tw.AppendRow(table.Row{
			r.SessionID,
			r.ProjectName,
			r.Role,
			timeOrDash(r.Timestamp),
			renderSnippet(escapeNewlines(r.Snippet), useColor),
		})
	}
	if len(results) == 0 {
		tw.AppendRow(table.Row{"-", "-", "-", "-", "(no matches)"})
	}

	tw.Render()
	return nil
}

func writeResultsPlain(w io.Writer, results []logs.SearchResult, includeHeader, useColor bool) error {
	if includeHeader {
		if _, err := fmt.Fprintln(w, "session_id\tproject\trole\ttimestamp\tsnippet"); err != nil {
			return err
		}
	}
	for _, r := range results {
		line := fmt.Sprintf("%s\t%s\t%s\t%s\t%s",
			r.SessionID, r.ProjectName, r.Role, timeOrDash(r.Timestamp),
			renderSnippet(escapeNewlines(r.Snippet), useColor))
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeKV(w io.Writer, width int, label, value string) {
	fmt.Fprintf(w, "%-*s: %s\n", width, label, value)
}

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateRows = false
	tw.Style().Options.SeparateHeader = true
	tw.Style().Options.DrawBorder = true
	return tw
}

// renderSnippet rewrites the index's highlight markers as ANSI emphasis, or
// strips them when color is off.
func renderSnippet(snippet string, useColor bool) string {
	if useColor {
		return hlPattern.ReplaceAllString(snippet, ansiHighlight+"$1"+ansiReset)
	}
	return hlPattern.ReplaceAllString(snippet, "$1")
}

func escapeNewlines(s string) string {
	return strings.ReplaceAll(s, "\n", "\\n")
}

// columnBudget caps a free-text column so the table still fits the terminal.
func columnBudget(w io.Writer, max int) int {
	width := terminalWidth(w)
	budget := width - 50
	if budget > max {
		budget = max
	}
	if budget < 20 {
		budget = 20
	}
	return budget
}

func terminalWidth(w io.Writer) int {
	if file, ok := w.(*os.File); ok {
		if cols, _, err := term.GetSize(int(file.Fd())); err == nil && cols > 0 {
			return cols
		}
	}
	if colsStr := os.Getenv("COLUMNS"); colsStr != "" {
		if v, err := strconv.Atoi(colsStr); err == nil && v > 0 {
			return v
		}
	}
	return 80
}

func truncateCell(s string, width int) string {
	return runewidth.Truncate(s, width, "…")
}

func resolveColorChoice(out io.Writer, forceColor, forceNoColor bool) bool {
	if forceColor {
		return true
	}
	if forceNoColor {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := out.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func timeOrDash(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}
