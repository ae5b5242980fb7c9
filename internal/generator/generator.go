// Package generator defines the contract for the remote engine that turns a
// set of named inputs into named outputs for one pipeline workflow.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Result statuses reported by a generator.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusStopped   = "stopped"
)

// Stream event types delivered to InvokeStream callbacks.
const (
	EventWorkflowStarted  = "workflow_started"
	EventNodeStarted      = "node_started"
	EventNodeFinished     = "node_finished"
	EventWorkflowFinished = "workflow_finished"
)

// ErrNotBound is returned when a workflow has no binding configured.
var ErrNotBound = errors.New("workflow is not bound")

// Result is the terminal outcome of one workflow invocation.
type Result struct {
	RunID   string            `json:"run_id,omitempty"`
	Status  string            `json:"status"`
	Outputs map[string]string `json:"outputs"`
	Error   string            `json:"error,omitempty"`
	Usage   Usage             `json:"usage"`
}

// Succeeded reports whether the generator finished the workflow successfully.
func (r *Result) Succeeded() bool {
	return r != nil && r.Status == StatusSucceeded
}

// Usage is the token accounting of one invocation.
type Usage struct {
	TotalTokens int         `json:"total_tokens"`
	Nodes       []NodeUsage `json:"nodes,omitempty"`
}

// NodeUsage is the token usage of a single workflow node.
type NodeUsage struct {
	NodeID    string `json:"node_id,omitempty"`
	NodeType  string `json:"node_type,omitempty"`
	NodeTitle string `json:"node_title"`
	Tokens    int    `json:"tokens"`
}

// Event is an incremental progress notification from a streaming invocation.
type Event struct {
	Type      string `json:"type"`
	NodeID    string `json:"node_id,omitempty"`
	NodeTitle string `json:"node_title,omitempty"`
	Status    string `json:"status,omitempty"`
}

// Generator invokes remote workflows. Implementations must be safe for
// concurrent use.
type Generator interface {
	// Bound reports whether the workflow has a binding configured.
	Bound(workflow string) bool
	// Invoke runs the workflow and waits for its result.
	Invoke(ctx context.Context, workflow string, inputs map[string]string) (*Result, error)
	// InvokeStream runs the workflow, reporting progress to onEvent, and
	// returns the terminal result. onEvent may be nil.
	InvokeStream(ctx context.Context, workflow string, inputs map[string]string, onEvent func(Event)) (*Result, error)
}

// Error is a transport or protocol failure talking to a generator.
type Error struct {
	Workflow   string
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("generator error for workflow %s", e.Workflow)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	msg += ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// FlattenOutputs turns raw JSON output values into the flat string form the
// pipeline works with. Strings are unquoted, null becomes empty and anything
// else keeps its JSON encoding.
func FlattenOutputs(raw map[string]json.RawMessage) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = flatten(v)
	}
	return out
}

func flatten(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
