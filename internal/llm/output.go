package llm

import (
	"fmt"
	"strings"
)

// OutputSchema describes the JSON object a workflow prompt must return.
type OutputSchema struct {
	Name   string
	Fields []OutputField
}

// OutputField is one key of the returned JSON object.
type OutputField struct {
	Name        string
	Type        string // type hint shown to the model
	Description string
	Required    bool
}

// workflowOutputs lists the outputs each workflow returns. Names match the
// canonical output names of the pipeline stages.
var workflowOutputs = map[string]OutputSchema{
	"knowledge": {
		Name: "Knowledge",
		Fields: []OutputField{
			{Name: "knowledge_graph", Type: `{"entities": [...], "relations": [...]}`, Description: "entities of the topic and how they relate", Required: true},
			{Name: "information_graph", Type: `[{"subject": "", "predicate": "", "object": ""}]`, Description: "fact triplets, only when no seed material was given"},
			{Name: "search_phrases", Type: `"string"`, Description: "search phrases, one per line", Required: true},
			{Name: "competitor_headers", Type: `"string"`, Description: "competitor section headings, one per line"},
		},
	},
	"headers": {
		Name: "Outlines",
		Fields: []OutputField{
			{Name: "extended", Type: `"html"`, Description: "extended outline with H2 and H3 headings", Required: true},
			{Name: "h2", Type: `"html"`, Description: "flat outline of H2 headings", Required: true},
			{Name: "questions", Type: `"html"`, Description: "outline with question headings", Required: true},
		},
	},
	"rag": {
		Name: "Notes",
		Fields: []OutputField{
			{Name: "detailed", Type: `"string"`, Description: "detailed question and answer notes per heading", Required: true},
			{Name: "general", Type: `"string"`, Description: "general question and answer notes", Required: true},
		},
	},
	"brief": {
		Name: "Brief",
		Fields: []OutputField{
			{Name: "brief", Type: `[{"heading": "html", "knowledge": "string", "keywords": "string"}]`, Description: "one item per outline heading, in order", Required: true},
			{Name: "html", Type: `"html"`, Description: "the brief rendered as HTML", Required: true},
		},
	},
	"content": {
		Name: "Section",
		Fields: []OutputField{
			{Name: "result", Type: `"html"`, Description: "the section body", Required: true},
		},
	},
}

// OutputsFor returns the output schema of a workflow.
func OutputsFor(workflow string) (OutputSchema, bool) {
	s, ok := workflowOutputs[workflow]
	return s, ok
}

// BuildPrompt appends the expected JSON structure to a task description.
func BuildPrompt(schema OutputSchema, task string) string {
	var sb strings.Builder

	sb.WriteString(task)
	sb.WriteString("\n\n")

	sb.WriteString("Return ONLY valid JSON matching this exact structure:\n{\n")
	for i, field := range schema.Fields {
		typeHint := field.Type
		if typeHint == "" {
			typeHint = `"string"`
		}
		requiredHint := ""
		if field.Required {
			requiredHint = " (required)"
		}
		sb.WriteString(fmt.Sprintf("  \"%s\": %s%s", field.Name, typeHint, requiredHint))
		if field.Description != "" {
			sb.WriteString(fmt.Sprintf(" // %s", field.Description))
		}
		if i < len(schema.Fields)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}\n\n")

	sb.WriteString("IMPORTANT:\n")
	sb.WriteString("- Return ONLY the JSON object, no markdown, no explanation, no code blocks.\n")
	sb.WriteString("- Strings that hold HTML must be valid HTML fragments.\n")

	return sb.String()
}
