package db

import (
	"time"

	"github.com/google/uuid"
)

// Project status constants. Each stage has an in-progress status and a
// completed status; the completed status of stage N is what stage N+1 accepts.
const (
	ProjectStatusDraft             = "draft"
	ProjectStatusKnowledgeBuilding = "knowledge_building"
	ProjectStatusKnowledgeBuilt    = "knowledge_built"
	ProjectStatusHeadersGenerating = "headers_generating"
	ProjectStatusHeadersGenerated  = "headers_generated"
	ProjectStatusHeadersSelected   = "headers_selected"
	ProjectStatusRAGBuilding       = "rag_building"
	ProjectStatusRAGCreated        = "rag_created"
	ProjectStatusBriefCreating     = "brief_creating"
	ProjectStatusBriefCreated      = "brief_created"
	ProjectStatusContentGenerating = "content_generating"
	ProjectStatusCompleted         = "completed"
	ProjectStatusError             = "error"
)

// DefaultLanguage is used when a project is created without a language.
const DefaultLanguage = "Polish"

// Project is one article being driven through the generation stages.
type Project struct {
	ID           uuid.UUID `json:"id"`
	Topic        string    `json:"topic"`
	Language     string    `json:"language"`
	SeedDocument *string   `json:"seed_document,omitempty"`
	CurrentStage int       `json:"current_stage"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ProjectInput holds the immutable fields set when a project is created.
type ProjectInput struct {
	Topic        string
	Language     string
	SeedDocument *string
}

// ProjectUpdate moves a project to a stage and status.
type ProjectUpdate struct {
	Stage  int
	Status string
}
