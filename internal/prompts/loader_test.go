package prompts

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpl, err := Load("brief")
	require.NoError(t, err)
	assert.Equal(t, "brief", tmpl.Workflow)
	assert.NotEmpty(t, tmpl.System)
	assert.Contains(t, tmpl.Task, "{{.keyword}}")
}

func TestLoad_UnknownWorkflow(t *testing.T) {
	_, err := Load("nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"nonexistent"`)
}

func TestWorkflows(t *testing.T) {
	names, err := Workflows()
	require.NoError(t, err)
	assert.Equal(t, []string{"brief", "content", "headers", "knowledge", "rag"}, names)
}

func TestParseAll(t *testing.T) {
	tests := []struct {
		name    string
		files   fstest.MapFS
		wantErr string
	}{
		{
			name: "valid",
			files: fstest.MapFS{
				"a.json": {Data: []byte(`{"system":"s","task":"t"}`)},
			},
		},
		{
			name: "malformed",
			files: fstest.MapFS{
				"a.json": {Data: []byte(`{"system":`)},
			},
			wantErr: "failed to parse prompt file a.json",
		},
		{
			name: "missing task",
			files: fstest.MapFS{
				"a.json": {Data: []byte(`{"system":"s","task":"  "}`)},
			},
			wantErr: "needs both a system and a task",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAll(tt.files)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Contains(t, got, "a")
			assert.Equal(t, "a", got["a"].Workflow)
		})
	}
}

func TestFormat(t *testing.T) {
	got := Format("Topic {{.keyword}} in {{.language}}; {{.missing}}", map[string]string{
		"keyword":  "sourdough",
		"language": "Polish",
	})

	assert.Equal(t, "Topic sourdough in Polish; {{.missing}}", got)
}

func TestFormat_SubstitutedValuesStayLiteral(t *testing.T) {
	got := Format("{{.a}} {{.b}}", map[string]string{"a": "{{.b}}", "b": "x"})
	assert.Equal(t, "{{.b}} x", got)
}

func TestRender(t *testing.T) {
	tmpl := &Template{System: "Write in {{.language}}.", Task: "About {{.keyword}}."}
	system, task := tmpl.Render(map[string]string{"language": "English", "keyword": "rye"})
	assert.Equal(t, "Write in English.", system)
	assert.Equal(t, "About rye.", task)
}
