package observability

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/content-writer/internal/db"
	"github.com/jonathan/content-writer/internal/pipeline"
	"github.com/jonathan/content-writer/internal/types"
)

func TestPrintProjectState(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	msg := "quota exhausted"
	runID := uuid.New()
	state := &pipeline.ProjectState{
		Project: &db.Project{
			ID: uuid.New(), Topic: "Sourdough", Language: "English",
			CurrentStage: 4, Status: db.ProjectStatusBriefCreated,
		},
		Runs: []db.Run{{
			ID: runID, Stage: 5, StageName: "Content generation", Status: db.RunStatusError,
			ErrorMessage: &msg, StartedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), TotalTokens: 42,
		}},
		Sections: db.SectionProgress{Total: 3, Completed: 1, Pending: 1, Error: 1},
	}

	p.PrintProjectState(state)
	output := buf.String()

	assert.Contains(t, output, "PROJECT")
	assert.Contains(t, output, "Topic:    Sourdough (English)")
	assert.Contains(t, output, "Status:   brief_created")
	assert.Contains(t, output, "Sections: 1/3 completed, 1 pending, 1 failed")
	assert.Contains(t, output, runID.String()[:8])
	assert.Contains(t, output, "2026-03-01 10:00")
	assert.Contains(t, output, "42 tok")
	assert.Contains(t, output, "! quota exhausted")
	assert.NotContains(t, output, "Running:")
}

func TestPrintProjectState_Running(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	running := db.Run{ID: uuid.New(), Stage: 2, StageName: "Q&A", Status: db.RunStatusRunning}
	p.PrintProjectState(&pipeline.ProjectState{
		Project: &db.Project{ID: uuid.New(), Topic: "t", Language: "English", Status: db.ProjectStatusDraft},
		Runs:    []db.Run{running},
		Running: &running,
	})

	assert.Contains(t, buf.String(), "Running:  stage 2 (Q&A)")
	assert.NotContains(t, buf.String(), "Sections:")
}

func TestPrintProjectState_LimitsRuns(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	runs := make([]db.Run, maxItemsToShow+3)
	for i := range runs {
		runs[i] = db.Run{ID: uuid.New(), Stage: 1, Status: db.RunStatusCompleted}
	}
	p.PrintProjectState(&pipeline.ProjectState{
		Project: &db.Project{ID: uuid.New(), Topic: "t"},
		Runs:    runs,
	})

	assert.Contains(t, buf.String(), "... and 3 more")
	assert.NotContains(t, buf.String(), runs[maxItemsToShow].ID.String()[:8])
}

func TestPrintProjectState_Nil(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintProjectState(nil)
	p.PrintProjectState(&pipeline.ProjectState{})
	assert.Empty(t, buf.String())
}

func TestPrintSections(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	failure := "generator timed out"
	p.PrintSections([]db.Section{
		{Order: 0, Heading: "<h2>Why <b>rye</b></h2>", Status: db.SectionStatusCompleted},
		{Order: 1, Heading: "Starter care", Status: db.SectionStatusError, ErrorMessage: &failure},
		{Order: 2, Heading: "Baking day", Status: db.SectionStatusPending},
	})
	output := buf.String()

	assert.Contains(t, output, "SECTIONS")
	assert.Contains(t, output, "[✓]  1. Why rye")
	assert.Contains(t, output, "[✗]  2. Starter care")
	assert.Contains(t, output, "! generator timed out")
	assert.Contains(t, output, "[ ]  3. Baking day")
}

func TestPrintSections_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintSections(nil)
	assert.Empty(t, buf.String())
}

func TestPrintBrief(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	items := make([]types.BriefItem, maxItemsToShow+2)
	for i := range items {
		items[i] = types.BriefItem{Heading: fmt.Sprintf("Heading %d", i+1), Keywords: "rye, starter"}
	}
	p.PrintBrief(items)
	output := buf.String()

	assert.Contains(t, output, "BRIEF")
	assert.Contains(t, output, "Planned sections: 7")
	assert.Contains(t, output, "1. Heading 1")
	assert.Contains(t, output, "Keywords: rye, starter")
	assert.NotContains(t, output, "Heading 6")
	assert.Contains(t, output, "... and 2 more")
}

func TestPrintBox_TruncatesLongLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.printBox("TITLE", strings.Repeat("ж", boxWidth*2))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	for _, line := range lines {
		assert.Equal(t, boxWidth, lipgloss.Width(line), "line %q", line)
	}
	assert.Contains(t, lines[3], "...")
}
