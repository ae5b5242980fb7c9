package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Artifact type constants
const (
	ArtifactKnowledgeGraph    = "knowledge_graph"
	ArtifactInformationGraph  = "information_graph"
	ArtifactSearchPhrases     = "search_phrases"
	ArtifactCompetitorHeaders = "competitor_headers"
	ArtifactHeaderVariant     = "header_variant"
	ArtifactRAGAnswers        = "rag_qa"
	ArtifactBrief             = "brief"
	ArtifactFinalDocument     = "final_document"
)

// Header variant names produced by the header stage
const (
	VariantExtended  = "extended"
	VariantH2        = "h2"
	VariantQuestions = "questions"
)

// ArtifactStages maps every artifact type to the stage that produces it.
var ArtifactStages = map[string]int{
	ArtifactKnowledgeGraph:    1,
	ArtifactInformationGraph:  1,
	ArtifactSearchPhrases:     1,
	ArtifactCompetitorHeaders: 1,
	ArtifactHeaderVariant:     2,
	ArtifactRAGAnswers:        3,
	ArtifactBrief:             4,
	ArtifactFinalDocument:     5,
}

// ArtifactTypesFrom returns every artifact type produced by the given stage or
// any later one, in stage order.
func ArtifactTypesFrom(stage int) []string {
	order := []string{
		ArtifactKnowledgeGraph,
		ArtifactInformationGraph,
		ArtifactSearchPhrases,
		ArtifactCompetitorHeaders,
		ArtifactHeaderVariant,
		ArtifactRAGAnswers,
		ArtifactBrief,
		ArtifactFinalDocument,
	}
	var out []string
	for _, t := range order {
		if ArtifactStages[t] >= stage {
			out = append(out, t)
		}
	}
	return out
}

// Artifact is a persisted stage output. Structured payloads live in Content,
// markup or plain text payloads in TextContent; some artifacts carry both.
type Artifact struct {
	ID          uuid.UUID       `json:"id"`
	ProjectID   uuid.UUID       `json:"project_id"`
	Type        string          `json:"type"`
	Stage       int             `json:"stage"`
	Variant     *string         `json:"variant,omitempty"`
	IsSelected  bool            `json:"is_selected"`
	Content     json.RawMessage `json:"content,omitempty"`
	TextContent *string         `json:"text_content,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Text returns the text payload or an empty string.
func (a *Artifact) Text() string {
	if a == nil || a.TextContent == nil {
		return ""
	}
	return *a.TextContent
}

// ArtifactInput describes an artifact to insert.
type ArtifactInput struct {
	Type    string
	Variant string
	Content json.RawMessage
	Text    *string
}
