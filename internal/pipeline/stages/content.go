package stages

import (
	"encoding/json"
	"strings"

	"github.com/jonathan/content-writer/internal/db"
	"github.com/jonathan/content-writer/internal/summarize"
	"github.com/jonathan/content-writer/internal/types"
)

// Input keys of the content workflow
const (
	keyHeading     = "naglowek"
	keyKnowledge   = "knowledge"
	keyDone        = "done"
	keyInstruction = "instruction"
	keyLastSection = "last_section"
	keyUpcoming    = "upcoming"
)

// maxLastSectionChars caps the verbatim previous section sent for continuity.
const maxLastSectionChars = 4000

// ContentInputs builds the content workflow inputs for sections[index]. The
// context is bounded by the accumulator limits regardless of how many
// sections precede the current one.
func ContentInputs(env *Env, sections []db.Section, index int, state *db.ContextState, acc *summarize.Accumulator) map[string]string {
	sec := sections[index]

	var summaries []types.SectionSummary
	last := ""
	if state != nil {
		summaries = state.Summaries
		last = state.LastSectionContent
	}

	planned := make([]summarize.Planned, 0, len(sections)-index-1)
	for _, s := range sections[index+1:] {
		planned = append(planned, summarize.Planned{Heading: s.Heading, Knowledge: s.Knowledge})
	}

	return map[string]string{
		keyHeading:     sec.Heading,
		keyLanguage:    env.Project.Language,
		keyKnowledge:   sec.Knowledge,
		keyKeywords:    sec.Keywords,
		keyHeadings:    env.SelectedHeadings(),
		keyDone:        acc.PreviousContext(summaries),
		keyKeyword:     env.Project.Topic,
		keyInstruction: acc.Instruction(summaries, planned),
		keyLastSection: summarize.Truncate(last, maxLastSectionChars),
		keyUpcoming:    acc.Upcoming(planned),
	}
}

// AssembleDocument joins the completed sections in order into the final
// document.
func AssembleDocument(sections []db.Section) types.FinalDocument {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		if s.Status != db.SectionStatusCompleted || s.Content == nil {
			continue
		}
		parts = append(parts, s.Heading+"\n"+*s.Content)
	}
	html := strings.Join(parts, "\n\n")
	return types.FinalDocument{HTML: html, Text: summarize.PlainText(html)}
}

// DocumentArtifact converts the final document into an artifact to store.
func DocumentArtifact(doc types.FinalDocument) (db.ArtifactInput, error) {
	content, err := json.Marshal(doc)
	if err != nil {
		return db.ArtifactInput{}, err
	}
	text := doc.Text
	return db.ArtifactInput{Type: db.ArtifactFinalDocument, Content: content, Text: &text}, nil
}
