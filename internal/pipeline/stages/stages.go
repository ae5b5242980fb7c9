// Package stages is the static table of pipeline stages: what each stage
// reads, which workflow it calls, which outputs it expects and how those
// outputs become artifacts.
package stages

import (
	"fmt"

	"github.com/jonathan/content-writer/internal/config"
	"github.com/jonathan/content-writer/internal/db"
)

// Stage numbers
const (
	Knowledge = 1
	Headers   = 2
	RAG       = 3
	Brief     = 4
	Content   = 5
)

// Count is the number of stages.
const Count = 5

// Input is an upstream artifact a stage reads.
type Input struct {
	Artifact string
	Required bool
	// Selected restricts the lookup to the selected artifact of the type.
	Selected bool
}

// Stage describes one pipeline stage.
type Stage struct {
	Number   int
	Name     string
	Label    string
	Workflow string
	Inputs   []Input
	Outputs  []Output

	// InProgress is the project status while the stage runs, Completed the
	// status it leaves on success and Ready the status of a project that is
	// about to run it.
	InProgress string
	Completed  string
	Ready      string

	// Iterative stages run once per section and have no Build/Map.
	Iterative bool
	// RequiresSections means at least one section must exist to start.
	RequiresSections bool

	Build func(env *Env) map[string]string
	Map   func(out Values) (*Writes, error)
}

// Env is what a stage's Build function sees.
type Env struct {
	Project   *db.Project
	Artifacts map[string]*db.Artifact
	Options   Options
}

// Options carries the configurable knobs of input building.
type Options struct {
	SeedPlaceholder  string
	MaxHeadingsChars int
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{SeedPlaceholder: "BRAK", MaxHeadingsChars: 50000}
}

// Writes is what a successful single-shot stage stores.
type Writes struct {
	Artifacts []db.ArtifactInput
	// Sections, when non-nil, replaces the project's sections.
	Sections     []db.SectionInput
	ResetContext bool
}

var table = []*Stage{
	{
		Number:     Knowledge,
		Name:       "knowledge",
		Label:      "Knowledge building",
		Workflow:   config.WorkflowKnowledge,
		InProgress: db.ProjectStatusKnowledgeBuilding,
		Completed:  db.ProjectStatusKnowledgeBuilt,
		Ready:      db.ProjectStatusDraft,
		Outputs: []Output{
			{Name: "knowledge_graph", Required: true, Format: FormatJSON, Schema: db.ArtifactKnowledgeGraph},
			{Name: "information_graph", Aliases: []string{"grafinformacji"}, Format: FormatJSON, Schema: db.ArtifactInformationGraph},
			{Name: "search_phrases", Aliases: []string{"frazy z serp", "frazy"}, Required: true},
			{Name: "competitor_headers", Aliases: []string{"naglowki", "headings"}},
		},
		Build: buildKnowledge,
		Map:   mapKnowledge,
	},
	{
		Number:     Headers,
		Name:       "headers",
		Label:      "Header generation",
		Workflow:   config.WorkflowHeaders,
		InProgress: db.ProjectStatusHeadersGenerating,
		Completed:  db.ProjectStatusHeadersGenerated,
		Ready:      db.ProjectStatusKnowledgeBuilt,
		Inputs: []Input{
			{Artifact: db.ArtifactKnowledgeGraph, Required: true},
			{Artifact: db.ArtifactSearchPhrases, Required: true},
			{Artifact: db.ArtifactCompetitorHeaders},
		},
		Outputs: []Output{
			{Name: db.VariantExtended, Aliases: []string{"naglowki_rozbudowane"}},
			{Name: db.VariantH2, Aliases: []string{"naglowki_h2"}},
			{Name: db.VariantQuestions, Aliases: []string{"naglowki_pytania"}},
		},
		Build: buildHeaders,
		Map:   mapHeaders,
	},
	{
		Number:     RAG,
		Name:       "rag",
		Label:      "RAG building",
		Workflow:   config.WorkflowRAG,
		InProgress: db.ProjectStatusRAGBuilding,
		Completed:  db.ProjectStatusRAGCreated,
		Ready:      db.ProjectStatusHeadersSelected,
		Inputs: []Input{
			{Artifact: db.ArtifactHeaderVariant, Required: true, Selected: true},
		},
		Outputs: []Output{
			{Name: "detailed", Aliases: []string{"dokladne"}},
			{Name: "general", Aliases: []string{"ogolne"}},
			{Name: "combined", Aliases: []string{"output"}},
		},
		Build: buildRAG,
		Map:   mapRAG,
	},
	{
		Number:     Brief,
		Name:       "brief",
		Label:      "Brief creation",
		Workflow:   config.WorkflowBrief,
		InProgress: db.ProjectStatusBriefCreating,
		Completed:  db.ProjectStatusBriefCreated,
		Ready:      db.ProjectStatusRAGCreated,
		Inputs: []Input{
			{Artifact: db.ArtifactKnowledgeGraph, Required: true},
			{Artifact: db.ArtifactSearchPhrases, Required: true},
			{Artifact: db.ArtifactHeaderVariant, Required: true, Selected: true},
			{Artifact: db.ArtifactInformationGraph},
		},
		Outputs: []Output{
			{Name: "brief", Required: true, Format: FormatJSON, Schema: db.ArtifactBrief},
			{Name: "html"},
		},
		Build: buildBrief,
		Map:   mapBrief,
	},
	{
		Number:     Content,
		Name:       "content",
		Label:      "Content generation",
		Workflow:   config.WorkflowContent,
		InProgress: db.ProjectStatusContentGenerating,
		Completed:  db.ProjectStatusCompleted,
		Ready:      db.ProjectStatusBriefCreated,
		Inputs: []Input{
			{Artifact: db.ArtifactBrief, Required: true},
			{Artifact: db.ArtifactHeaderVariant, Required: true, Selected: true},
		},
		Outputs: []Output{
			{Name: "result", Required: true},
		},
		Iterative:        true,
		RequiresSections: true,
	},
}

// Get returns the stage with the given number.
func Get(number int) (*Stage, error) {
	if number < 1 || number > len(table) {
		return nil, fmt.Errorf("invalid stage %d: must be between 1 and %d", number, Count)
	}
	return table[number-1], nil
}

// All returns every stage in order.
func All() []*Stage {
	out := make([]*Stage, len(table))
	copy(out, table)
	return out
}

// ReadyStatus is the status of a project about to run the stage. Zero and
// out-of-range stages map to draft.
func ReadyStatus(number int) string {
	s, err := Get(number)
	if err != nil {
		return db.ProjectStatusDraft
	}
	return s.Ready
}
