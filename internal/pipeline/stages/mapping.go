package stages

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/content-writer/internal/db"
	"github.com/jonathan/content-writer/internal/schemas"
	"github.com/jonathan/content-writer/internal/types"
)

func mapKnowledge(out Values) (*Writes, error) {
	w := &Writes{}
	w.Artifacts = append(w.Artifacts, db.ArtifactInput{
		Type:    db.ArtifactKnowledgeGraph,
		Content: json.RawMessage(out["knowledge_graph"]),
	})
	if out.Has("information_graph") {
		w.Artifacts = append(w.Artifacts, db.ArtifactInput{
			Type:    db.ArtifactInformationGraph,
			Content: json.RawMessage(out["information_graph"]),
		})
	}
	w.Artifacts = append(w.Artifacts, textArtifact(db.ArtifactSearchPhrases, "", out["search_phrases"]))
	if out.Has("competitor_headers") {
		w.Artifacts = append(w.Artifacts, textArtifact(db.ArtifactCompetitorHeaders, "", out["competitor_headers"]))
	}
	return w, nil
}

func mapHeaders(out Values) (*Writes, error) {
	w := &Writes{}
	for _, variant := range []string{db.VariantExtended, db.VariantH2, db.VariantQuestions} {
		if out.Has(variant) {
			w.Artifacts = append(w.Artifacts, textArtifact(db.ArtifactHeaderVariant, variant, out[variant]))
		}
	}
	if len(w.Artifacts) == 0 {
		return nil, &OutputError{Stage: Headers, Output: "headers", Message: "no header variant in output"}
	}
	return w, nil
}

func mapRAG(out Values) (*Writes, error) {
	answers := types.RAGAnswers{
		Detailed: strings.TrimSpace(out["detailed"]),
		General:  strings.TrimSpace(out["general"]),
	}
	if answers.Detailed == "" && answers.General == "" && out.Has("combined") {
		answers.General, answers.Detailed = SplitCombined(out["combined"])
	}
	if answers.Detailed == "" && answers.General == "" {
		return nil, &OutputError{Stage: RAG, Output: "detailed", Message: "missing required output"}
	}

	content, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rag answers: %w", err)
	}
	if err := schemas.Validate(db.ArtifactRAGAnswers, content); err != nil {
		return nil, &OutputError{Stage: RAG, Output: "detailed", Message: "malformed output", Cause: err}
	}
	return &Writes{Artifacts: []db.ArtifactInput{{Type: db.ArtifactRAGAnswers, Content: content}}}, nil
}

// SplitCombined splits a single "general+detailed" RAG output. Without a
// separator both halves get the whole value.
func SplitCombined(combined string) (general, detailed string) {
	combined = strings.TrimSpace(combined)
	parts := strings.SplitN(combined, "+", 2)
	if len(parts) < 2 {
		return combined, combined
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

func mapBrief(out Values) (*Writes, error) {
	items, err := ParseBrief(json.RawMessage(out["brief"]))
	if err != nil {
		return nil, &OutputError{Stage: Brief, Output: "brief", Message: "malformed output", Cause: err}
	}

	content, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal brief: %w", err)
	}
	artifact := db.ArtifactInput{Type: db.ArtifactBrief, Content: content}
	if out.Has("html") {
		html := out["html"]
		artifact.Text = &html
	}

	sections := make([]db.SectionInput, len(items))
	for i, item := range items {
		sections[i] = db.SectionInput{
			Order:     i,
			Heading:   strings.TrimSpace(item.Heading),
			Knowledge: item.Knowledge,
			Keywords:  item.Keywords,
		}
	}

	return &Writes{
		Artifacts:    []db.ArtifactInput{artifact},
		Sections:     sections,
		ResetContext: true,
	}, nil
}

func textArtifact(artifactType, variant, text string) db.ArtifactInput {
	return db.ArtifactInput{Type: artifactType, Variant: variant, Text: &text}
}
