package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/jonathan/content-writer/internal/generator"
	"github.com/jonathan/content-writer/internal/prompts"
)

// Generator runs pipeline workflows directly against Gemini models instead of
// a hosted workflow runner.
type Generator struct {
	client   Client
	config   *Config
	bindings map[string]string
	logger   *zap.Logger
}

var _ generator.Generator = (*Generator)(nil)

// NewGenerator creates a Generator. bindings maps a workflow name to a tier
// name or a model name.
func NewGenerator(client Client, config *Config, bindings map[string]string, logger *zap.Logger) *Generator {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{client: client, config: config, bindings: bindings, logger: logger}
}

// Bound reports whether the workflow resolves to a model and has prompts.
func (g *Generator) Bound(workflow string) bool {
	if _, ok := OutputsFor(workflow); !ok {
		return false
	}
	return g.config.ResolveModel(g.bindings[workflow]) != ""
}

// Invoke runs the workflow prompt in one blocking call.
func (g *Generator) Invoke(ctx context.Context, workflow string, inputs map[string]string) (*generator.Result, error) {
	model, system, prompt, err := g.prepare(workflow, inputs)
	if err != nil {
		return nil, err
	}

	completion, err := g.client.GenerateJSON(ctx, model, system, prompt)
	if err != nil {
		return nil, &generator.Error{Workflow: workflow, Message: "model call failed", Cause: err}
	}
	return g.toResult(workflow, model, completion), nil
}

// InvokeStream runs the workflow prompt over a streaming call. Progress is
// reported as a single model node.
func (g *Generator) InvokeStream(ctx context.Context, workflow string, inputs map[string]string, onEvent func(generator.Event)) (*generator.Result, error) {
	model, system, prompt, err := g.prepare(workflow, inputs)
	if err != nil {
		return nil, err
	}

	emit := func(typ, status string) {
		if onEvent != nil {
			onEvent(generator.Event{Type: typ, NodeID: model, NodeTitle: workflow, Status: status})
		}
	}

	emit(generator.EventWorkflowStarted, "running")
	emit(generator.EventNodeStarted, "running")
	completion, err := g.client.StreamJSON(ctx, model, system, prompt, nil)
	if err != nil {
		return nil, &generator.Error{Workflow: workflow, Message: "model call failed", Cause: err}
	}
	result := g.toResult(workflow, model, completion)
	emit(generator.EventNodeFinished, result.Status)
	emit(generator.EventWorkflowFinished, result.Status)

	return result, nil
}

func (g *Generator) prepare(workflow string, inputs map[string]string) (model, system, prompt string, err error) {
	schema, ok := OutputsFor(workflow)
	model = g.config.ResolveModel(g.bindings[workflow])
	if !ok || model == "" {
		return "", "", "", &generator.Error{Workflow: workflow, Message: "no model bound", Cause: generator.ErrNotBound}
	}

	tmpl, err := prompts.Load(workflow)
	if err != nil {
		return "", "", "", &generator.Error{Workflow: workflow, Message: "missing prompt", Cause: err}
	}

	system, task := tmpl.Render(inputs)
	prompt = BuildPrompt(schema, task)
	return model, system, prompt, nil
}

// toResult maps the model's JSON object onto workflow outputs. A reply that
// is not a JSON object is reported as a failed run, like a workflow failure.
func (g *Generator) toResult(workflow, model string, completion *Completion) *generator.Result {
	usage := generator.Usage{
		TotalTokens: completion.TotalTokens,
		Nodes: []generator.NodeUsage{{
			NodeID:    model,
			NodeType:  "llm",
			NodeTitle: workflow,
			Tokens:    completion.TotalTokens,
		}},
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(completion.Text), &raw); err != nil {
		g.logger.Warn("model returned invalid JSON",
			zap.String("workflow", workflow),
			zap.String("model", model),
			zap.Error(err),
		)
		return &generator.Result{
			Status: generator.StatusFailed,
			Error:  fmt.Sprintf("model returned invalid JSON: %v", err),
			Usage:  usage,
		}
	}

	return &generator.Result{
		Status:  generator.StatusSucceeded,
		Outputs: generator.FlattenOutputs(raw),
		Usage:   usage,
	}
}
