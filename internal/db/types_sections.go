package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/content-writer/internal/types"
)

// SectionStatus constants
const (
	SectionStatusPending    = "pending"
	SectionStatusProcessing = "processing"
	SectionStatusCompleted  = "completed"
	SectionStatusError      = "error"
)

// Section is one heading of the article generated by the content stage.
type Section struct {
	ID           uuid.UUID `json:"id"`
	ProjectID    uuid.UUID `json:"project_id"`
	Order        int       `json:"section_order"`
	Heading      string    `json:"heading"`
	Knowledge    string    `json:"knowledge"`
	Keywords     string    `json:"keywords"`
	Status       string    `json:"status"`
	Content      *string   `json:"content,omitempty"`
	Summary      *string   `json:"summary,omitempty"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SectionInput describes a section materialized from the brief.
type SectionInput struct {
	Order     int
	Heading   string
	Knowledge string
	Keywords  string
}

// ContextState is the resume cursor and rolling summary of the content stage.
type ContextState struct {
	ProjectID           uuid.UUID              `json:"project_id"`
	CurrentSectionIndex int                    `json:"current_section_index"`
	Summaries           []types.SectionSummary `json:"section_summaries"`
	LastSectionContent  string                 `json:"last_section_content"`
	UpdatedAt           time.Time              `json:"updated_at"`
}

// SectionAdvance records a generated section and moves the cursor past it.
type SectionAdvance struct {
	ProjectID uuid.UUID
	SectionID uuid.UUID
	Content   string
	Summary   types.SectionSummary
	NextIndex int
}

// StageCommit is everything a successful stage writes. A non-nil Sections
// replaces the project's sections.
type StageCommit struct {
	ProjectID    uuid.UUID
	Artifacts    []ArtifactInput
	Sections     []SectionInput
	ResetContext bool
	Project      ProjectUpdate
}

// RewindPlan lists what a rewind deletes and where it leaves the project.
type RewindPlan struct {
	ArtifactTypes []string
	DropSections  bool
	ResetSections bool
	Project       ProjectUpdate
}

// SectionProgress counts sections by status.
type SectionProgress struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Error      int `json:"error"`
}

// ProgressOf counts sections by status.
func ProgressOf(sections []Section) SectionProgress {
	p := SectionProgress{Total: len(sections)}
	for _, s := range sections {
		switch s.Status {
		case SectionStatusPending:
			p.Pending++
		case SectionStatusProcessing:
			p.Processing++
		case SectionStatusCompleted:
			p.Completed++
		case SectionStatusError:
			p.Error++
		}
	}
	return p
}
