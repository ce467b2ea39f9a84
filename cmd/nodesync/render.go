package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/mattjoyce/nodesync/internal/diff"
	"github.com/mattjoyce/nodesync/internal/storage"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	addedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	removedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	changedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

// renderDiff formats a diff result for a terminal. Without a colour-capable
// terminal lipgloss drops the styling, leaving the plain text.
func renderDiff(r *diff.Result) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Configuration diff") + "\n")
	if r.Empty() {
		b.WriteString(mutedStyle.Render("no changes") + "\n")
		return b.String()
	}
	fmt.Fprintf(&b, "%s  %s  %s\n",
		addedStyle.Render(fmt.Sprintf("+%d added", len(r.Added))),
		removedStyle.Render(fmt.Sprintf("-%d removed", len(r.Removed))),
		changedStyle.Render(fmt.Sprintf("~%d changed", len(r.Changed))),
	)
	for _, id := range r.Added {
		b.WriteString(addedStyle.Render("+ "+id) + "\n")
	}
	for _, id := range r.Removed {
		b.WriteString(removedStyle.Render("- "+id) + "\n")
	}
	for _, c := range r.Changed {
		b.WriteString(changedStyle.Render("~ "+c.ID) + "\n")
		b.WriteString(colorLines(c.Text))
	}
	if r.VariablesCompared && r.Variables != "" {
		b.WriteString(changedStyle.Render("~ variables") + "\n")
		b.WriteString(colorLines(r.Variables))
	}
	return b.String()
}

// colorLines styles a context diff: "+ " and "- " lines as additions and
// removals, "! " lines as changes, hunk markers muted.
func colorLines(text string) string {
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "***"), strings.HasPrefix(line, "---"):
			line = mutedStyle.Render(line)
		case strings.HasPrefix(line, "+ "):
			line = addedStyle.Render(line)
		case strings.HasPrefix(line, "- "):
			line = removedStyle.Render(line)
		case strings.HasPrefix(line, "! "):
			line = changedStyle.Render(line)
		}
		b.WriteString("    " + line + "\n")
	}
	return b.String()
}

const timeFormat = "2006-01-02 15:04:05"

// renderRuns formats run history as a table.
func renderRuns(runs []storage.Run) string {
	if len(runs) == 0 {
		return "no runs recorded"
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("RUN", "ENV", "STARTED", "STATUS", "DRY RUN", "+", "-", "~", "FINGERPRINT").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, r := range runs {
		t.Row(
			shortID(r.ID),
			r.Environment,
			r.StartedAt.Local().Format(timeFormat),
			statusText(r),
			strconv.FormatBool(r.DryRun),
			strconv.Itoa(r.Added),
			strconv.Itoa(r.Removed),
			strconv.Itoa(r.Changed),
			shortID(r.Fingerprint),
		)
	}
	return t.String()
}

func statusText(r storage.Run) string {
	switch r.Status {
	case storage.StatusSucceeded:
		return addedStyle.Render(string(r.Status))
	case storage.StatusFailed:
		return removedStyle.Render(string(r.Status))
	default:
		return changedStyle.Render(string(r.Status))
	}
}

func shortID(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}
