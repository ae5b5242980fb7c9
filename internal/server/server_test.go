package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/content-writer/internal/config"
	"github.com/jonathan/content-writer/internal/db"
	"github.com/jonathan/content-writer/internal/db/memstore"
	"github.com/jonathan/content-writer/internal/generator"
	"github.com/jonathan/content-writer/internal/pipeline"
	"github.com/jonathan/content-writer/internal/server/ratelimit"
)

// fakeGenerator answers every workflow with canned outputs. A workflow listed
// in fail returns a failed result; gate, when set, blocks every call until
// it is closed.
type fakeGenerator struct {
	mu   sync.Mutex
	fail map[string]string
	gate chan struct{}
}

var cannedOutputs = map[string]map[string]string{
	config.WorkflowKnowledge: {
		"knowledge_graph": `{"entities": ["flour", "water"]}`,
		"frazy z serp":    "sourdough starter, levain",
		"naglowki":        "<h2>What is sourdough</h2>",
	},
	config.WorkflowHeaders: {
		"naglowki_rozbudowane": "<h2>Sourdough basics</h2><h3>Starter</h3>",
		"naglowki_h2":          "<h2>Basics</h2><h2>Baking</h2>",
		"naglowki_pytania":     "<h2>What is a starter?</h2>",
	},
	config.WorkflowRAG: {
		"output": "General answers+Detailed answers",
	},
	config.WorkflowBrief: {
		"brief": `[{"heading": "Introduction", "knowledge": "what sourdough is", "keywords": "sourdough"},
			{"heading": "Baking day", "knowledge": "oven temperatures", "keywords": ["oven"]}]`,
		"html": "<ul><li>Introduction</li><li>Baking day</li></ul>",
	},
}

func (g *fakeGenerator) Bound(string) bool { return true }

func (g *fakeGenerator) Invoke(ctx context.Context, workflow string, inputs map[string]string) (*generator.Result, error) {
	g.mu.Lock()
	gate := g.gate
	msg, failing := g.fail[workflow]
	g.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failing {
		return &generator.Result{Status: generator.StatusFailed, Error: msg}, nil
	}

	outputs := cannedOutputs[workflow]
	if workflow == config.WorkflowContent {
		outputs = map[string]string{
			"result": fmt.Sprintf("<p>A careful paragraph about %s for home bakers.</p>", strings.ToLower(inputs["naglowek"])),
		}
	}
	return &generator.Result{Status: generator.StatusSucceeded, Outputs: outputs, Usage: generator.Usage{TotalTokens: 3}}, nil
}

func (g *fakeGenerator) InvokeStream(ctx context.Context, workflow string, inputs map[string]string, _ func(generator.Event)) (*generator.Result, error) {
	return g.Invoke(ctx, workflow, inputs)
}

type testServer struct {
	handler http.Handler
	store   *memstore.Store
	gen     *fakeGenerator
	orch    *pipeline.Orchestrator
}

func newTestServer(t *testing.T, mutate ...func(*Config)) *testServer {
	t.Helper()
	ts := &testServer{store: memstore.New(), gen: &fakeGenerator{}}
	ts.orch = pipeline.New(ts.store, ts.gen, pipeline.Options{CallTimeout: 5 * time.Second})

	cfg := Config{
		Port:         0,
		Store:        ts.store,
		Orchestrator: ts.orch,
		RateLimit:    &ratelimit.Config{Enabled: false},
	}
	for _, m := range mutate {
		m(&cfg)
	}
	srv, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(srv.rateLimiter.Stop)

	ts.handler = srv.Handler()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.1:1234"
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (ts *testServer) createProject(t *testing.T) *db.Project {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/projects", map[string]string{"topic": "Sourdough bread", "language": "English"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[*db.Project](t, w)
}

func (ts *testServer) runStage(t *testing.T, id uuid.UUID, stage int) *pipeline.Result {
	t.Helper()
	w := ts.do(t, http.MethodPost, fmt.Sprintf("/projects/%s/stages/%d/run", id, stage), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[*pipeline.Result](t, w)
}

func (ts *testServer) selectVariant(t *testing.T, id uuid.UUID) {
	t.Helper()
	w := ts.do(t, http.MethodGet, "/projects/"+id.String()+"/artifacts?type=header_variant", nil)
	require.Equal(t, http.StatusOK, w.Code)
	variants := decode[[]db.Artifact](t, w)
	require.NotEmpty(t, variants)

	w = ts.do(t, http.MethodPost, fmt.Sprintf("/projects/%s/headers/%s/select", id, variants[0].ID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestCreateProject(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.DefaultLanguage = "German" })

	w := ts.do(t, http.MethodPost, "/projects", map[string]string{"topic": "  Rye bread  ", "seed_document": " notes "})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	p := decode[db.Project](t, w)
	assert.Equal(t, "Rye bread", p.Topic)
	assert.Equal(t, "German", p.Language)
	assert.Equal(t, db.ProjectStatusDraft, p.Status)
	require.NotNil(t, p.SeedDocument)
	assert.Equal(t, "notes", *p.SeedDocument)

	tests := []struct {
		name string
		body string
	}{
		{name: "missing topic", body: `{"language": "English"}`},
		{name: "blank topic", body: `{"topic": "   "}`},
		{name: "unknown field", body: `{"topic": "x", "owner": "me"}`},
		{name: "not json", body: `topic=x`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/projects", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, "invalid_request", decode[errorBody](t, w).Code)
		})
	}
}

func TestListProjects(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/projects", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	ts.createProject(t)
	ts.createProject(t)

	w = ts.do(t, http.MethodGet, "/projects?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]db.Project](t, w), 1)

	w = ts.do(t, http.MethodGet, "/projects?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetProject(t *testing.T) {
	ts := newTestServer(t)
	p := ts.createProject(t)

	w := ts.do(t, http.MethodGet, "/projects/"+p.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	state := decode[pipeline.ProjectState](t, w)
	assert.Equal(t, p.ID, state.Project.ID)
	assert.Empty(t, state.Runs)
	assert.Nil(t, state.Running)

	w = ts.do(t, http.MethodGet, "/projects/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/projects/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteProject(t *testing.T) {
	ts := newTestServer(t)
	p := ts.createProject(t)

	w := ts.do(t, http.MethodDelete, "/projects/"+p.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodDelete, "/projects/"+p.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFullPipeline(t *testing.T) {
	ts := newTestServer(t)
	p := ts.createProject(t)

	res := ts.runStage(t, p.ID, 1)
	assert.Equal(t, db.RunStatusCompleted, res.Run.Status)
	assert.Equal(t, db.ProjectStatusKnowledgeBuilt, res.Project.Status)

	res = ts.runStage(t, p.ID, 2)
	assert.Equal(t, db.ProjectStatusHeadersGenerated, res.Project.Status)

	ts.selectVariant(t, p.ID)
	ts.runStage(t, p.ID, 3)
	res = ts.runStage(t, p.ID, 4)
	assert.Equal(t, db.ProjectStatusBriefCreated, res.Project.Status)

	w := ts.do(t, http.MethodGet, "/projects/"+p.ID.String()+"/sections", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sections := decode[[]db.Section](t, w)
	require.Len(t, sections, 2)
	assert.Equal(t, "Introduction", sections[0].Heading)

	w = ts.do(t, http.MethodGet, "/projects/"+p.ID.String()+"/document", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	res = ts.runStage(t, p.ID, 5)
	assert.Equal(t, db.ProjectStatusCompleted, res.Project.Status)

	w = ts.do(t, http.MethodGet, "/projects/"+p.ID.String()+"/document", nil)
	require.Equal(t, http.StatusOK, w.Code)
	doc := decode[DocumentResponse](t, w)
	assert.Contains(t, doc.HTML, "Introduction")
	assert.Contains(t, doc.HTML, "about baking day")
	assert.NotContains(t, doc.Text, "<p>")

	w = ts.do(t, http.MethodGet, "/projects/"+p.ID.String()+"/document?format=html", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, doc.HTML, w.Body.String())

	w = ts.do(t, http.MethodGet, "/projects/"+p.ID.String(), nil)
	state := decode[pipeline.ProjectState](t, w)
	assert.Len(t, state.Runs, 5)
	assert.Equal(t, 2, state.Sections.Completed)
}

func TestRunStage_Errors(t *testing.T) {
	ts := newTestServer(t)
	p := ts.createProject(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantCode   string
	}{
		{name: "stage out of range", path: "/projects/%s/stages/9/run", wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "stage not a number", path: "/projects/%s/stages/abc/run", wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "missing inputs", path: "/projects/%s/stages/2/run", wantStatus: http.StatusUnprocessableEntity, wantCode: "precondition_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, fmt.Sprintf(tt.path, p.ID), nil)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, tt.wantCode, decode[errorBody](t, w).Code)
		})
	}

	w := ts.do(t, http.MethodPost, fmt.Sprintf("/projects/%s/stages/1/run", uuid.New()), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodPost, fmt.Sprintf("/projects/%s/stages/2/run", p.ID), nil)
	body := decode[errorBody](t, w)
	assert.Contains(t, body.Details["missing"], "knowledge_graph")
}

func TestRunStage_GeneratorFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.gen.fail = map[string]string{config.WorkflowKnowledge: "quota exhausted"}
	p := ts.createProject(t)

	w := ts.do(t, http.MethodPost, "/projects/"+p.ID.String()+"/stages/1/run", nil)
	require.Equal(t, http.StatusBadGateway, w.Code, w.Body.String())

	body := decode[RunFailedResponse](t, w)
	assert.Equal(t, "generator_failed", body.Code)
	assert.Contains(t, body.Error, "quota exhausted")
	require.NotNil(t, body.Result)
	assert.Equal(t, db.RunStatusError, body.Result.Run.Status)
	assert.Equal(t, db.ProjectStatusError, body.Result.Project.Status)
}

func TestAsyncRun_ConflictAndCancel(t *testing.T) {
	ts := newTestServer(t)
	ts.gen.gate = make(chan struct{})
	p := ts.createProject(t)

	w := ts.do(t, http.MethodPost, "/projects/"+p.ID.String()+"/stages/1/run?async=true", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	run := decode[db.Run](t, w)
	assert.Equal(t, db.RunStatusRunning, run.Status)
	assert.Equal(t, "/projects/"+p.ID.String(), w.Header().Get("Location"))

	w = ts.do(t, http.MethodPost, "/projects/"+p.ID.String()+"/stages/1/run", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	body := decode[errorBody](t, w)
	assert.Equal(t, "conflict", body.Code)
	assert.Contains(t, body.Error, "already running")
	assert.Equal(t, run.ID.String(), body.Details["run_id"])

	w = ts.do(t, http.MethodPost, "/projects/"+p.ID.String()+"/rewind", map[string]int{"to_stage": 1})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPost, fmt.Sprintf("/projects/%s/runs/%s/cancel", p.ID, run.ID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, db.RunStatusCancelled, decode[db.Run](t, w).Status)

	close(ts.gen.gate)
	require.NoError(t, ts.orch.Wait())

	w = ts.do(t, http.MethodPost, fmt.Sprintf("/projects/%s/runs/%s/cancel", p.ID, run.ID), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = ts.do(t, http.MethodPost, fmt.Sprintf("/projects/%s/runs/%s/cancel", p.ID, uuid.New()), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	state := decode[pipeline.ProjectState](t, ts.do(t, http.MethodGet, "/projects/"+p.ID.String(), nil))
	assert.Equal(t, db.ProjectStatusDraft, state.Project.Status)
	assert.Nil(t, state.Running)
}

func TestStreamStage(t *testing.T) {
	ts := newTestServer(t)
	p := ts.createProject(t)

	w := ts.do(t, http.MethodPost, "/projects/"+p.ID.String()+"/stages/1/stream", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	started := strings.Index(body, "event: stage_started\n")
	completed := strings.Index(body, "event: stage_completed\n")
	result := strings.Index(body, "event: result\n")
	assert.True(t, started >= 0 && started < completed && completed < result, body)
	assert.NotContains(t, body, "event: error")
}

func TestStreamStage_PreconditionIsPlainJSON(t *testing.T) {
	ts := newTestServer(t)
	p := ts.createProject(t)

	w := ts.do(t, http.MethodPost, "/projects/"+p.ID.String()+"/stages/3/stream", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestStreamStage_FailureEvent(t *testing.T) {
	ts := newTestServer(t)
	ts.gen.fail = map[string]string{config.WorkflowKnowledge: "model overloaded"}
	p := ts.createProject(t)

	w := ts.do(t, http.MethodPost, "/projects/"+p.ID.String()+"/stages/1/stream", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "event: stage_failed\n")
	assert.Contains(t, body, "event: error\n")
	assert.Contains(t, body, "model overloaded")
	assert.Contains(t, body, "event: result\n")
}

func TestRewind(t *testing.T) {
	ts := newTestServer(t)
	p := ts.createProject(t)
	ts.runStage(t, p.ID, 1)
	ts.runStage(t, p.ID, 2)

	w := ts.do(t, http.MethodPost, "/projects/"+p.ID.String()+"/rewind", map[string]int{"to_stage": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	project := decode[db.Project](t, w)
	assert.Equal(t, 1, project.CurrentStage)
	assert.Equal(t, db.ProjectStatusKnowledgeBuilt, project.Status)

	w = ts.do(t, http.MethodGet, "/projects/"+p.ID.String()+"/artifacts?type=header_variant", nil)
	assert.JSONEq(t, `[]`, w.Body.String())

	for _, body := range []string{`{"to_stage": 0}`, `{"to_stage": 6}`, `{}`} {
		w = ts.do(t, http.MethodPost, "/projects/"+p.ID.String()+"/rewind", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestArtifacts_ListAndEdit(t *testing.T) {
	ts := newTestServer(t)
	p := ts.createProject(t)
	ts.runStage(t, p.ID, 1)
	ts.runStage(t, p.ID, 2)

	w := ts.do(t, http.MethodGet, "/projects/"+p.ID.String()+"/artifacts?type=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/projects/"+uuid.NewString()+"/artifacts", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/projects/"+p.ID.String()+"/artifacts?type=knowledge_graph", nil)
	require.Equal(t, http.StatusOK, w.Code)
	graphs := decode[[]db.Artifact](t, w)
	require.Len(t, graphs, 1)

	path := fmt.Sprintf("/projects/%s/artifacts/%s", p.ID, graphs[0].ID)
	w = ts.do(t, http.MethodPut, path, map[string]any{"content": map[string]any{"entities": []string{"rye"}}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[ArtifactResponse](t, w)
	assert.JSONEq(t, `{"entities":["rye"]}`, string(resp.Artifact.Content))
	require.NotNil(t, resp.Rewind)
	assert.Equal(t, 2, resp.Rewind.ToStage)

	w = ts.do(t, http.MethodPut, path, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPut, fmt.Sprintf("/projects/%s/artifacts/%s", p.ID, uuid.New()), map[string]string{"text": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSelectHeader(t *testing.T) {
	ts := newTestServer(t)
	p := ts.createProject(t)
	ts.runStage(t, p.ID, 1)
	ts.runStage(t, p.ID, 2)

	w := ts.do(t, http.MethodGet, "/projects/"+p.ID.String()+"/artifacts?type=header_variant", nil)
	variants := decode[[]db.Artifact](t, w)
	require.Len(t, variants, 3)

	w = ts.do(t, http.MethodPost, fmt.Sprintf("/projects/%s/headers/%s/select", p.ID, variants[1].ID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[SelectionResponse](t, w)
	assert.Equal(t, db.ProjectStatusHeadersSelected, resp.Project.Status)
	assert.Nil(t, resp.Rewind)

	w = ts.do(t, http.MethodGet, "/projects/"+p.ID.String()+"/artifacts?type=knowledge_graph", nil)
	graph := decode[[]db.Artifact](t, w)[0]
	w = ts.do(t, http.MethodPost, fmt.Sprintf("/projects/%s/headers/%s/select", p.ID, graph.ID), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRateLimit_StageRuns(t *testing.T) {
	ts := newTestServer(t, func(c *Config) {
		c.RateLimit = &ratelimit.Config{
			Enabled:       true,
			DefaultLimit:  1000,
			DefaultWindow: time.Minute,
			Endpoints: []ratelimit.EndpointConfig{
				{Path: "/projects/*/stages/*/run", Method: http.MethodPost, Limit: 1, Window: time.Hour, Burst: 1},
			},
		}
	})
	p := ts.createProject(t)

	w := ts.do(t, http.MethodPost, "/projects/"+p.ID.String()+"/stages/1/run", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = ts.do(t, http.MethodPost, "/projects/"+p.ID.String()+"/stages/2/run", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limit_exceeded", decode[errorBody](t, w).Code)

	w = ts.do(t, http.MethodGet, "/projects/"+p.ID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code, "reads use a separate bucket")
}

func TestAuth(t *testing.T) {
	jwtCfg := &config.JWTConfig{Secret: testSecret, ExpirationHours: 1}
	ts := newTestServer(t, func(c *Config) { c.JWT = jwtCfg })

	token, err := NewJWTService(jwtCfg).GenerateToken("ops")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/projects", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/projects", nil, "Authorization", "Bearer nope").Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/projects", nil, "Authorization", "Bearer "+token).Code)

	w := ts.do(t, http.MethodOptions, "/projects", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestHTTPStatus(t *testing.T) {
	section := 2
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &ErrValidation{Field: "f", Message: "bad"}, http.StatusBadRequest},
		{"invalid stage", fmt.Errorf("wrapped: %w", pipeline.ErrInvalidStage), http.StatusBadRequest},
		{"project not found", pipeline.ErrProjectNotFound, http.StatusNotFound},
		{"run not found", pipeline.ErrRunNotFound, http.StatusNotFound},
		{"store not found", db.ErrNotFound, http.StatusNotFound},
		{"conflict", &pipeline.ConflictError{RunningStage: 1}, http.StatusConflict},
		{"store conflict", &db.RunConflictError{}, http.StatusConflict},
		{"precondition", &pipeline.PreconditionError{Stage: 3}, http.StatusUnprocessableEntity},
		{"generator", &pipeline.GeneratorError{Stage: 5, Section: &section, Message: "boom"}, http.StatusBadGateway},
		{"generator timeout", &pipeline.GeneratorError{Stage: 1, Message: "call failed", Cause: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{"busy", pipeline.ErrBusy, http.StatusServiceUnavailable},
		{"unbound", &pipeline.ConfigError{Stage: 1, Workflow: "knowledge"}, http.StatusServiceUnavailable},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestDescribe_HidesInternalErrors(t *testing.T) {
	status, body := describe(errors.New("pq: password authentication failed"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal server error", body.Error)
}
