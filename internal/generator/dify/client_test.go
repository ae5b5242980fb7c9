package dify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/content-writer/internal/generator"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(Config{
		BaseURL: srv.URL + "/",
		Keys:    map[string]string{"knowledge": "app-knowledge", "content": "app-content", "empty": ""},
		User:    "content-writer",
	})
}

func TestBound(t *testing.T) {
	c := New(Config{Keys: map[string]string{"rag": "k", "brief": ""}})

	assert.True(t, c.Bound("rag"))
	assert.False(t, c.Bound("brief"))
	assert.False(t, c.Bound("content"))
	assert.Equal(t, DefaultBaseURL, c.baseURL)
}

func TestInvoke_Success(t *testing.T) {
	var got runRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/workflows/run", r.URL.Path)
		assert.Equal(t, "Bearer app-knowledge", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{
			"workflow_run_id": "run-1",
			"data": {
				"status": "succeeded",
				"outputs": {"knowledge_graph": {"nodes": [1]}, "frazy": "a, b", "empty": null},
				"total_tokens": 321,
				"elapsed_time": 1.5
			}
		}`)
	})

	res, err := c.Invoke(context.Background(), "knowledge", map[string]string{"keyword": "bread"})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"keyword": "bread"}, got.Inputs)
	assert.Equal(t, "blocking", got.ResponseMode)
	assert.Equal(t, "content-writer", got.User)

	assert.True(t, res.Succeeded())
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, `{"nodes": [1]}`, res.Outputs["knowledge_graph"])
	assert.Equal(t, "a, b", res.Outputs["frazy"])
	assert.Equal(t, "", res.Outputs["empty"])
	assert.Equal(t, 321, res.Usage.TotalTokens)
}

func TestInvoke_FailedStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"data": {"status": "failed", "error": "node crashed"}}`)
	})

	res, err := c.Invoke(context.Background(), "knowledge", nil)
	require.NoError(t, err)
	assert.False(t, res.Succeeded())
	assert.Equal(t, "node crashed", res.Error)
}

func TestInvoke_HTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	})

	_, err := c.Invoke(context.Background(), "knowledge", nil)
	require.Error(t, err)

	var gerr *generator.Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, http.StatusUnauthorized, gerr.StatusCode)
	assert.Equal(t, "invalid api key", gerr.Message)
	assert.Contains(t, err.Error(), "status 401")
}

func TestInvoke_NotBound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := c.Invoke(context.Background(), "empty", nil)
	assert.ErrorIs(t, err, generator.ErrNotBound)
}

func TestInvoke_ContextDeadline(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Invoke(ctx, "knowledge", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInvokeStream(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req runRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "streaming", req.ResponseMode)
		assert.Equal(t, "Bearer app-content", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`{"event":"workflow_started","workflow_run_id":"run-9","data":{"status":"running"}}`,
			`{"event":"node_finished","data":{"node_id":"n1","node_type":"llm","title":"Writer","execution_metadata":{"total_tokens":100}}}`,
			`not json`,
			`{"event":"node_finished","data":{"node_id":"n2","node_type":"code","title":"Format","execution_metadata":{"total_tokens":0}}}`,
			`{"event":"node_finished","data":{"node_id":"n3","node_type":"llm","title":"Polish","execution_metadata":{"total_tokens":50}}}`,
			`{"event":"workflow_finished","workflow_run_id":"run-9","data":{"status":"succeeded","outputs":{"result":"<p>Body</p>"},"total_tokens":999}}`,
		}
		_, _ = fmt.Fprint(w, "event: ping\n\n")
		for _, e := range events {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", e)
		}
	})

	var seen []string
	res, err := c.InvokeStream(context.Background(), "content", map[string]string{"naglowek": "<h2>A</h2>"}, func(e generator.Event) {
		seen = append(seen, e.Type)
	})
	require.NoError(t, err)

	assert.True(t, res.Succeeded())
	assert.Equal(t, "run-9", res.RunID)
	assert.Equal(t, "<p>Body</p>", res.Outputs["result"])
	assert.Equal(t, 150, res.Usage.TotalTokens)
	require.Len(t, res.Usage.Nodes, 2)
	assert.Equal(t, "Writer", res.Usage.Nodes[0].NodeTitle)
	assert.Equal(t, "Polish", res.Usage.Nodes[1].NodeTitle)
	assert.Equal(t, []string{"workflow_started", "node_finished", "node_finished", "node_finished", "workflow_finished"}, seen)
}

func TestInvokeStream_FallsBackToWorkflowTokens(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "data: {\"event\":\"workflow_finished\",\"data\":{\"status\":\"succeeded\",\"outputs\":{},\"total_tokens\":42}}\n\n")
	})

	res, err := c.InvokeStream(context.Background(), "content", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, res.Usage.TotalTokens)
	assert.Empty(t, res.Usage.Nodes)
}

func TestInvokeStream_ErrorEvent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "data: {\"event\":\"error\",\"status\":400,\"code\":\"invalid_param\",\"message\":\"bad input\"}\n\n")
	})

	_, err := c.InvokeStream(context.Background(), "content", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_param: bad input")
}

func TestInvokeStream_TruncatedStream(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "data: {\"event\":\"workflow_started\",\"data\":{}}\n\n")
	})

	_, err := c.InvokeStream(context.Background(), "content", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ended before workflow finished")
}
