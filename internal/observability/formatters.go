// Package observability provides formatted output utilities for the CLI.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jonathan/content-writer/internal/db"
	"github.com/jonathan/content-writer/internal/pipeline"
	"github.com/jonathan/content-writer/internal/summarize"
	"github.com/jonathan/content-writer/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 72
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
	// maxSectionsToShow bounds the section list; articles are longer than other lists
	maxSectionsToShow = 30
)

// Printer handles formatted output for the CLI
type Printer struct {
	out   io.Writer
	box   lipgloss.Style
	title lipgloss.Style
}

// NewPrinter creates a new Printer that writes to the given writer. Colors
// and attributes follow the capabilities of that writer.
func NewPrinter(out io.Writer) *Printer {
	r := lipgloss.NewRenderer(out)
	return &Printer{
		out: out,
		box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#6B7280")).
			Padding(0, 1).
			Width(boxWidth - 2),
		title: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")),
	}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	inner := boxWidth - 4
	lines := []string{p.title.Render(title), strings.Repeat("─", inner)}
	for _, line := range strings.Split(content, "\n") {
		lines = append(lines, summarize.Truncate(line, inner))
	}
	fmt.Fprintln(p.out, p.box.Render(strings.Join(lines, "\n")))
}

// PrintProjectState outputs the project, section progress and recent runs.
func (p *Printer) PrintProjectState(state *pipeline.ProjectState) {
	if state == nil || state.Project == nil {
		return
	}
	project := state.Project

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("ID:       %s\n", project.ID))
	sb.WriteString(fmt.Sprintf("Topic:    %s (%s)\n", project.Topic, project.Language))
	sb.WriteString(fmt.Sprintf("Stage:    %d\n", project.CurrentStage))
	sb.WriteString(fmt.Sprintf("Status:   %s\n", project.Status))

	if s := state.Sections; s.Total > 0 {
		sb.WriteString(fmt.Sprintf("Sections: %d/%d completed, %d pending, %d failed\n", s.Completed, s.Total, s.Pending, s.Error))
	}
	if r := state.Running; r != nil {
		sb.WriteString(fmt.Sprintf("Running:  stage %d (%s), run %s\n", r.Stage, r.StageName, r.ID))
	}

	if len(state.Runs) > 0 {
		sb.WriteString("\nRecent runs:\n")
		count := min(len(state.Runs), maxItemsToShow)
		for i := 0; i < count; i++ {
			r := state.Runs[i]
			sb.WriteString(fmt.Sprintf("  %s  stage %d  %-9s  %s  %d tok\n",
				r.ID.String()[:8], r.Stage, r.Status, r.StartedAt.Format("2006-01-02 15:04"), r.TotalTokens))
			if r.ErrorMessage != nil {
				sb.WriteString(fmt.Sprintf("    ! %s\n", *r.ErrorMessage))
			}
		}
		if len(state.Runs) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(state.Runs)-maxItemsToShow))
		}
	}

	p.printBox("PROJECT", strings.TrimSuffix(sb.String(), "\n"))
}

var sectionMarks = map[string]string{
	db.SectionStatusPending:    " ",
	db.SectionStatusProcessing: "~",
	db.SectionStatusCompleted:  "✓",
	db.SectionStatusError:      "✗",
}

// PrintSections outputs the article outline with the status of each section.
func (p *Printer) PrintSections(sections []db.Section) {
	if len(sections) == 0 {
		return
	}

	var sb strings.Builder
	count := min(len(sections), maxSectionsToShow)
	for i := 0; i < count; i++ {
		s := sections[i]
		sb.WriteString(fmt.Sprintf("[%s] %2d. %s\n", sectionMarks[s.Status], s.Order+1, summarize.InlineText(s.Heading)))
		if s.ErrorMessage != nil {
			sb.WriteString(fmt.Sprintf("        ! %s\n", *s.ErrorMessage))
		}
	}
	if len(sections) > maxSectionsToShow {
		sb.WriteString(fmt.Sprintf("... and %d more sections\n", len(sections)-maxSectionsToShow))
	}

	p.printBox("SECTIONS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintBrief outputs the planned sections of the brief with their keywords.
func (p *Printer) PrintBrief(items []types.BriefItem) {
	if len(items) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Planned sections: %d\n\n", len(items)))

	count := min(len(items), maxItemsToShow)
	for i := 0; i < count; i++ {
		item := items[i]
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, summarize.InlineText(item.Heading)))
		if item.Keywords != "" {
			sb.WriteString(fmt.Sprintf("   Keywords: %s\n", item.Keywords))
		}
		if i < count-1 {
			sb.WriteString("\n")
		}
	}
	if len(items) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more", len(items)-maxItemsToShow))
	}

	p.printBox("BRIEF", strings.TrimSuffix(sb.String(), "\n"))
}
