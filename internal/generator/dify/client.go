// Package dify implements generator.Generator against a Dify-compatible
// workflow runner API (POST {base}/workflows/run).
package dify

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/content-writer/internal/generator"
)

// DefaultBaseURL is the hosted Dify API.
const DefaultBaseURL = "https://api.dify.ai/v1"

const (
	responseModeBlocking  = "blocking"
	responseModeStreaming = "streaming"

	maxErrorBody = 4096
	maxEventSize = 16 << 20
)

// Config configures a Client.
type Config struct {
	BaseURL string
	// Keys maps a workflow name to the API key of the Dify app running it.
	Keys       map[string]string
	User       string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client calls Dify workflows over HTTP.
type Client struct {
	baseURL    string
	keys       map[string]string
	user       string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ generator.Generator = (*Client)(nil)

// New creates a Client. Per-call deadlines come from the context, so the
// default HTTP client carries no timeout of its own.
func New(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	keys := make(map[string]string, len(cfg.Keys))
	for k, v := range cfg.Keys {
		if v != "" {
			keys[k] = v
		}
	}

	return &Client{
		baseURL:    baseURL,
		keys:       keys,
		user:       cfg.User,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Bound reports whether an API key is configured for the workflow.
func (c *Client) Bound(workflow string) bool {
	_, ok := c.keys[workflow]
	return ok
}

type runRequest struct {
	Inputs       map[string]string `json:"inputs"`
	ResponseMode string            `json:"response_mode"`
	User         string            `json:"user"`
}

type runData struct {
	ID          string                     `json:"id"`
	Status      string                     `json:"status"`
	Outputs     map[string]json.RawMessage `json:"outputs"`
	Error       string                     `json:"error"`
	ElapsedTime float64                    `json:"elapsed_time"`
	TotalTokens int                        `json:"total_tokens"`

	// node_finished fields
	NodeID            string             `json:"node_id"`
	NodeType          string             `json:"node_type"`
	Title             string             `json:"title"`
	ExecutionMetadata *executionMetadata `json:"execution_metadata"`
}

type executionMetadata struct {
	TotalTokens int `json:"total_tokens"`
}

type runResponse struct {
	WorkflowRunID string  `json:"workflow_run_id"`
	TaskID        string  `json:"task_id"`
	Data          runData `json:"data"`
}

type streamEvent struct {
	Event         string  `json:"event"`
	WorkflowRunID string  `json:"workflow_run_id"`
	Data          runData `json:"data"`
	// error events carry these at the top level
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Invoke runs the workflow in blocking mode.
func (c *Client) Invoke(ctx context.Context, workflow string, inputs map[string]string) (*generator.Result, error) {
	resp, err := c.post(ctx, workflow, inputs, responseModeBlocking)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var out runResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &generator.Error{Workflow: workflow, Message: "failed to decode response", Cause: err}
	}

	result := toResult(out.WorkflowRunID, &out.Data)
	result.Usage.TotalTokens = out.Data.TotalTokens

	c.logger.Debug("workflow finished",
		zap.String("workflow", workflow),
		zap.String("status", result.Status),
		zap.Int("total_tokens", result.Usage.TotalTokens),
		zap.Float64("elapsed_seconds", out.Data.ElapsedTime),
	)
	return result, nil
}

// InvokeStream runs the workflow in streaming mode. Token usage is collected
// from node_finished events; the workflow total is used when no node reported
// any.
func (c *Client) InvokeStream(ctx context.Context, workflow string, inputs map[string]string, onEvent func(generator.Event)) (*generator.Result, error) {
	resp, err := c.post(ctx, workflow, inputs, responseModeStreaming)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var (
		result *generator.Result
		usage  generator.Usage
	)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxEventSize)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		var ev streamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			c.logger.Warn("skipping malformed stream event", zap.String("workflow", workflow), zap.Error(err))
			continue
		}

		switch ev.Event {
		case "error":
			return nil, &generator.Error{Workflow: workflow, StatusCode: ev.Status, Message: fmt.Sprintf("%s: %s", ev.Code, ev.Message)}
		case generator.EventNodeFinished:
			if md := ev.Data.ExecutionMetadata; md != nil && md.TotalTokens > 0 {
				usage.Nodes = append(usage.Nodes, generator.NodeUsage{
					NodeID:    ev.Data.NodeID,
					NodeType:  ev.Data.NodeType,
					NodeTitle: ev.Data.Title,
					Tokens:    md.TotalTokens,
				})
				usage.TotalTokens += md.TotalTokens
			}
		case generator.EventWorkflowFinished:
			result = toResult(ev.WorkflowRunID, &ev.Data)
			if usage.TotalTokens == 0 {
				usage.TotalTokens = ev.Data.TotalTokens
			}
		}

		if onEvent != nil && ev.Event != "ping" {
			onEvent(generator.Event{
				Type:      ev.Event,
				NodeID:    ev.Data.NodeID,
				NodeTitle: ev.Data.Title,
				Status:    ev.Data.Status,
			})
		}
		if result != nil {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &generator.Error{Workflow: workflow, Message: "failed to read event stream", Cause: err}
	}
	if result == nil {
		return nil, &generator.Error{Workflow: workflow, Message: "event stream ended before workflow finished"}
	}

	result.Usage = usage
	return result, nil
}

func (c *Client) post(ctx context.Context, workflow string, inputs map[string]string, mode string) (*http.Response, error) {
	key, ok := c.keys[workflow]
	if !ok {
		return nil, &generator.Error{Workflow: workflow, Message: "missing API key", Cause: generator.ErrNotBound}
	}

	body, err := json.Marshal(runRequest{Inputs: inputs, ResponseMode: mode, User: c.user})
	if err != nil {
		return nil, &generator.Error{Workflow: workflow, Message: "failed to encode request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/workflows/run", bytes.NewReader(body))
	if err != nil {
		return nil, &generator.Error{Workflow: workflow, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")
	if mode == responseModeStreaming {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &generator.Error{Workflow: workflow, Message: "HTTP request failed", Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &generator.Error{
			Workflow:   workflow,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(text)),
		}
	}

	return resp, nil
}

func toResult(runID string, data *runData) *generator.Result {
	result := &generator.Result{
		RunID:   runID,
		Status:  data.Status,
		Outputs: generator.FlattenOutputs(data.Outputs),
		Error:   data.Error,
	}
	if result.Status == "" {
		result.Status = generator.StatusFailed
	}
	return result
}
