package stages

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/content-writer/internal/config"
	"github.com/jonathan/content-writer/internal/db"
	"github.com/jonathan/content-writer/internal/summarize"
	"github.com/jonathan/content-writer/internal/types"
)

func strPtr(s string) *string { return &s }

func testEnv(artifacts ...*db.Artifact) *Env {
	env := &Env{
		Project:   &db.Project{ID: uuid.New(), Topic: "sourdough bread", Language: "English"},
		Artifacts: map[string]*db.Artifact{},
		Options:   DefaultOptions(),
	}
	for _, a := range artifacts {
		env.Artifacts[a.Type] = a
	}
	return env
}

func TestGet(t *testing.T) {
	for n := 1; n <= Count; n++ {
		s, err := Get(n)
		require.NoError(t, err)
		assert.Equal(t, n, s.Number)
		assert.Contains(t, config.WorkflowNames, s.Workflow)
	}

	for _, n := range []int{0, 6, -1} {
		_, err := Get(n)
		assert.Error(t, err, "stage %d", n)
	}
}

func TestTable_StatusChain(t *testing.T) {
	all := All()
	require.Len(t, all, Count)

	assert.Equal(t, db.ProjectStatusDraft, all[0].Ready)
	for i := 1; i < len(all); i++ {
		if all[i].Number == RAG {
			// header selection sits between stage 2 and 3
			assert.Equal(t, db.ProjectStatusHeadersSelected, all[i].Ready)
			continue
		}
		assert.Equal(t, all[i-1].Completed, all[i].Ready, "stage %d", all[i].Number)
	}
	assert.True(t, all[Content-1].Iterative)
	assert.True(t, all[Content-1].RequiresSections)
}

func TestReadyStatus(t *testing.T) {
	assert.Equal(t, db.ProjectStatusDraft, ReadyStatus(0))
	assert.Equal(t, db.ProjectStatusDraft, ReadyStatus(1))
	assert.Equal(t, db.ProjectStatusHeadersSelected, ReadyStatus(3))
	assert.Equal(t, db.ProjectStatusBriefCreated, ReadyStatus(5))
}

func TestResolve_Aliases(t *testing.T) {
	s, _ := Get(Knowledge)

	values, err := s.Resolve(map[string]string{
		"knowledge_graph": "```json\n{\"entities\": [\"flour\"]}\n```",
		"grafinformacji":  `{"facts": 3}`,
		"frazy z serp":    "starter, levain",
		"naglowki":        "<h2>History</h2>",
	})
	require.NoError(t, err)

	assert.JSONEq(t, `{"entities":["flour"]}`, values["knowledge_graph"])
	assert.JSONEq(t, `{"facts":3}`, values["information_graph"])
	assert.Equal(t, "starter, levain", values["search_phrases"])
	assert.Equal(t, "<h2>History</h2>", values["competitor_headers"])
}

func TestResolve_CanonicalNameWins(t *testing.T) {
	s, _ := Get(Knowledge)

	values, err := s.Resolve(map[string]string{
		"knowledge_graph": `{"a": 1}`,
		"search_phrases":  "canonical",
		"frazy":           "alias",
	})
	require.NoError(t, err)
	assert.Equal(t, "canonical", values["search_phrases"])
	assert.False(t, values.Has("information_graph"))
}

func TestResolve_Errors(t *testing.T) {
	s, _ := Get(Knowledge)

	t.Run("missing required", func(t *testing.T) {
		_, err := s.Resolve(map[string]string{"knowledge_graph": `{"a": 1}`})
		var oe *OutputError
		require.ErrorAs(t, err, &oe)
		assert.Equal(t, "search_phrases", oe.Output)
		assert.Contains(t, err.Error(), "missing required output")
	})

	t.Run("malformed required json", func(t *testing.T) {
		_, err := s.Resolve(map[string]string{"knowledge_graph": "not json", "frazy": "x"})
		var oe *OutputError
		require.ErrorAs(t, err, &oe)
		assert.Equal(t, "knowledge_graph", oe.Output)
		assert.Contains(t, err.Error(), "malformed output")
	})

	t.Run("empty graph fails schema", func(t *testing.T) {
		_, err := s.Resolve(map[string]string{"knowledge_graph": `{}`, "frazy": "x"})
		assert.Error(t, err)
	})

	t.Run("malformed optional json is wrapped", func(t *testing.T) {
		values, err := s.Resolve(map[string]string{
			"knowledge_graph":   `{"a": 1}`,
			"frazy":             "x",
			"information_graph": "facts: many",
		})
		require.NoError(t, err)
		assert.JSONEq(t, `{"raw":"facts: many"}`, values["information_graph"])
	})
}

func TestBuildKnowledge_SeedPlaceholder(t *testing.T) {
	s, _ := Get(Knowledge)

	env := testEnv()
	inputs := s.Build(env)
	assert.Equal(t, "sourdough bread", inputs["keyword"])
	assert.Equal(t, "English", inputs["language"])
	assert.Equal(t, "BRAK", inputs["aio"])

	env.Project.SeedDocument = strPtr("  existing article  ")
	assert.Equal(t, "existing article", s.Build(env)["aio"])

	env.Project.SeedDocument = strPtr("   ")
	env.Options.SeedPlaceholder = "NONE"
	assert.Equal(t, "NONE", s.Build(env)["aio"])
}

func TestBuildHeaders(t *testing.T) {
	s, _ := Get(Headers)
	env := testEnv(
		&db.Artifact{Type: db.ArtifactKnowledgeGraph, Content: json.RawMessage(`{ "a" : [1, 2] }`)},
		&db.Artifact{Type: db.ArtifactSearchPhrases, TextContent: strPtr("starter")},
	)

	inputs := s.Build(env)
	assert.Equal(t, `{"a":[1,2]}`, inputs["graf"])
	assert.Equal(t, "starter", inputs["frazy"])
	assert.Equal(t, "", inputs["headings"])
}

func TestBuildRAG_TruncatesHeadings(t *testing.T) {
	s, _ := Get(RAG)
	env := testEnv(&db.Artifact{Type: db.ArtifactHeaderVariant, TextContent: strPtr(strings.Repeat("ż", 30))})
	env.Options.MaxHeadingsChars = 10

	inputs := s.Build(env)
	assert.Equal(t, strings.Repeat("ż", 10), inputs["headings"])
}

func TestBuildBrief_OptionalInformationGraph(t *testing.T) {
	s, _ := Get(Brief)
	env := testEnv(
		&db.Artifact{Type: db.ArtifactKnowledgeGraph, Content: json.RawMessage(`{"a":1}`)},
		&db.Artifact{Type: db.ArtifactSearchPhrases, TextContent: strPtr("starter")},
		&db.Artifact{Type: db.ArtifactHeaderVariant, TextContent: strPtr("<h2>A</h2>")},
	)

	inputs := s.Build(env)
	assert.Equal(t, "", inputs["information_graph"])
	assert.Equal(t, `{"a":1}`, inputs["knowledge_graph"])
	assert.Equal(t, "starter", inputs["keywords"])
	assert.Equal(t, "<h2>A</h2>", inputs["headings"])
}

func TestMapHeaders(t *testing.T) {
	s, _ := Get(Headers)

	values, err := s.Resolve(map[string]string{
		"naglowki_rozbudowane": "<h2>Long</h2>",
		"naglowki_pytania":     "<h2>Why?</h2>",
	})
	require.NoError(t, err)
	w, err := s.Map(values)
	require.NoError(t, err)

	require.Len(t, w.Artifacts, 2)
	assert.Equal(t, db.VariantExtended, w.Artifacts[0].Variant)
	assert.Equal(t, db.VariantQuestions, w.Artifacts[1].Variant)
	assert.Nil(t, w.Sections)

	_, err = s.Map(Values{})
	assert.Error(t, err)
}

func TestMapRAG(t *testing.T) {
	s, _ := Get(RAG)

	tests := []struct {
		name    string
		raw     map[string]string
		want    types.RAGAnswers
		wantErr bool
	}{
		{
			name: "separate outputs",
			raw:  map[string]string{"dokladne": "deep", "ogolne": "broad"},
			want: types.RAGAnswers{Detailed: "deep", General: "broad"},
		},
		{
			name: "combined output",
			raw:  map[string]string{"output": " broad + deep + deeper "},
			want: types.RAGAnswers{General: "broad", Detailed: "deep + deeper"},
		},
		{
			name: "combined without separator",
			raw:  map[string]string{"output": "everything"},
			want: types.RAGAnswers{General: "everything", Detailed: "everything"},
		},
		{
			name:    "nothing usable",
			raw:     map[string]string{"other": "x"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := s.Resolve(tt.raw)
			require.NoError(t, err)
			w, err := s.Map(values)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, w.Artifacts, 1)

			var got types.RAGAnswers
			require.NoError(t, json.Unmarshal(w.Artifacts[0].Content, &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMapBrief(t *testing.T) {
	s, _ := Get(Brief)

	values, err := s.Resolve(map[string]string{
		"brief": "```json\n[{\"heading\": \"Intro\", \"knowledge\": \"k1\", \"keywords\": [\"a\", \"b\"]}," +
			"{\"heading\": \" Baking \", \"knowledge\": \"k2\", \"keywords\": \"c\"}]\n```",
		"html": "<ul><li>Intro</li></ul>",
	})
	require.NoError(t, err)

	w, err := s.Map(values)
	require.NoError(t, err)

	assert.True(t, w.ResetContext)
	require.Len(t, w.Sections, 2)
	assert.Equal(t, db.SectionInput{Order: 0, Heading: "Intro", Knowledge: "k1", Keywords: "a, b"}, w.Sections[0])
	assert.Equal(t, db.SectionInput{Order: 1, Heading: "Baking", Knowledge: "k2", Keywords: "c"}, w.Sections[1])

	require.Len(t, w.Artifacts, 1)
	assert.Equal(t, db.ArtifactBrief, w.Artifacts[0].Type)
	require.NotNil(t, w.Artifacts[0].Text)
	assert.Equal(t, "<ul><li>Intro</li></ul>", *w.Artifacts[0].Text)
}

func TestResolveBrief_RejectsEmpty(t *testing.T) {
	s, _ := Get(Brief)
	_, err := s.Resolve(map[string]string{"brief": "[]"})
	assert.Error(t, err)
}

func TestSplitCombined(t *testing.T) {
	g, d := SplitCombined("a+b")
	assert.Equal(t, "a", g)
	assert.Equal(t, "b", d)
}

func contentSections(n int) []db.Section {
	sections := make([]db.Section, n)
	for i := range sections {
		sections[i] = db.Section{
			ID:        uuid.New(),
			Order:     i,
			Heading:   "Heading " + string(rune('A'+i)),
			Knowledge: "knowledge for section " + string(rune('A'+i)),
			Keywords:  "kw",
			Status:    db.SectionStatusPending,
		}
	}
	return sections
}

func TestContentInputs(t *testing.T) {
	env := testEnv(&db.Artifact{Type: db.ArtifactHeaderVariant, TextContent: strPtr("<h2>A</h2><h2>B</h2>")})
	sections := contentSections(4)
	acc := summarize.New(summarize.DefaultLimits())

	state := &db.ContextState{
		CurrentSectionIndex: 1,
		Summaries:           []types.SectionSummary{{Heading: "Heading A", Summary: "About A.", Topics: []string{"Heading A"}}},
		LastSectionContent:  "<p>Body of A</p>",
	}

	inputs := ContentInputs(env, sections, 1, state, acc)

	assert.Equal(t, "Heading B", inputs["naglowek"])
	assert.Equal(t, "knowledge for section B", inputs["knowledge"])
	assert.Equal(t, "kw", inputs["keywords"])
	assert.Equal(t, "sourdough bread", inputs["keyword"])
	assert.Equal(t, "English", inputs["language"])
	assert.Equal(t, "<h2>A</h2><h2>B</h2>", inputs["headings"])
	assert.Contains(t, inputs["done"], "About A.")
	assert.Equal(t, "<p>Body of A</p>", inputs["last_section"])
	assert.Contains(t, inputs["upcoming"], "Heading C")
	assert.Contains(t, inputs["upcoming"], "Heading D")
	assert.NotContains(t, inputs["upcoming"], "Heading B")
	assert.Contains(t, inputs["instruction"], "Heading A")
}

func TestContentInputs_NoState(t *testing.T) {
	env := testEnv()
	sections := contentSections(1)

	inputs := ContentInputs(env, sections, 0, nil, summarize.New(summarize.DefaultLimits()))
	assert.Equal(t, "", inputs["done"])
	assert.Equal(t, "", inputs["last_section"])
	assert.Equal(t, "", inputs["upcoming"])
}

func TestAssembleDocument(t *testing.T) {
	sections := contentSections(3)
	sections[0].Status = db.SectionStatusCompleted
	sections[0].Content = strPtr("<p>First</p>")
	sections[2].Status = db.SectionStatusCompleted
	sections[2].Content = strPtr("<p>Third</p>")

	doc := AssembleDocument(sections)
	assert.Equal(t, "Heading A\n<p>First</p>\n\nHeading C\n<p>Third</p>", doc.HTML)
	assert.Contains(t, doc.Text, "First")
	assert.Contains(t, doc.Text, "Third")
	assert.NotContains(t, doc.Text, "<p>")

	a, err := DocumentArtifact(doc)
	require.NoError(t, err)
	assert.Equal(t, db.ArtifactFinalDocument, a.Type)
	assert.Equal(t, doc.Text, *a.Text)
}
