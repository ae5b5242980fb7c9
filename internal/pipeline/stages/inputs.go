package stages

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/content-writer/internal/db"
	"github.com/jonathan/content-writer/internal/types"
)

// Input keys sent to the remote workflows
const (
	keyKeyword          = "keyword"
	keyLanguage         = "language"
	keySeed             = "aio"
	keyPhrases          = "frazy"
	keyGraph            = "graf"
	keyHeadings         = "headings"
	keyKeywords         = "keywords"
	keyKnowledgeGraph   = "knowledge_graph"
	keyInformationGraph = "information_graph"
)

func buildKnowledge(env *Env) map[string]string {
	seed := ""
	if env.Project.SeedDocument != nil {
		seed = strings.TrimSpace(*env.Project.SeedDocument)
	}
	if seed == "" {
		seed = env.Options.SeedPlaceholder
	}
	return map[string]string{
		keyKeyword:  env.Project.Topic,
		keyLanguage: env.Project.Language,
		keySeed:     seed,
	}
}

func buildHeaders(env *Env) map[string]string {
	return map[string]string{
		keyKeyword:  env.Project.Topic,
		keyLanguage: env.Project.Language,
		keyPhrases:  env.text(db.ArtifactSearchPhrases),
		keyGraph:    env.json(db.ArtifactKnowledgeGraph),
		keyHeadings: env.text(db.ArtifactCompetitorHeaders),
	}
}

func buildRAG(env *Env) map[string]string {
	return map[string]string{
		keyKeyword:  env.Project.Topic,
		keyLanguage: env.Project.Language,
		keyHeadings: env.SelectedHeadings(),
	}
}

func buildBrief(env *Env) map[string]string {
	return map[string]string{
		keyKeyword:          env.Project.Topic,
		keyKeywords:         env.text(db.ArtifactSearchPhrases),
		keyHeadings:         env.SelectedHeadings(),
		keyKnowledgeGraph:   env.json(db.ArtifactKnowledgeGraph),
		keyInformationGraph: env.json(db.ArtifactInformationGraph),
	}
}

// SelectedHeadings returns the selected header variant markup, capped at
// MaxHeadingsChars runes.
func (e *Env) SelectedHeadings() string {
	return truncateRunes(e.text(db.ArtifactHeaderVariant), e.Options.MaxHeadingsChars)
}

func (e *Env) text(artifactType string) string {
	a := e.Artifacts[artifactType]
	if a == nil {
		return ""
	}
	if t := a.Text(); t != "" {
		return t
	}
	return string(a.Content)
}

// json serializes a structured artifact to compact JSON, or "" when absent.
func (e *Env) json(artifactType string) string {
	a := e.Artifacts[artifactType]
	if a == nil || len(a.Content) == 0 {
		return ""
	}
	out, err := compactJSON(string(a.Content))
	if err != nil {
		return string(a.Content)
	}
	return out
}

func compactJSON(s string) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func truncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// ParseBrief decodes a brief artifact's items.
func ParseBrief(content json.RawMessage) ([]types.BriefItem, error) {
	var items []types.BriefItem
	if err := json.Unmarshal(content, &items); err != nil {
		return nil, err
	}
	return items, nil
}
