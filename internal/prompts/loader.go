// Package prompts provides the per-workflow prompt templates used by the
// Gemini generator. Each workflow has one JSON file with a "system" and a
// "task" template, embedded at compile time.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
	"sync"
)

//go:embed *.json
var files embed.FS

// Template is the prompt pair of one workflow.
type Template struct {
	Workflow string `json:"-"`
	System   string `json:"system"`
	Task     string `json:"task"`
}

var (
	loadOnce  sync.Once
	templates map[string]*Template
	loadErr   error
)

func all() (map[string]*Template, error) {
	loadOnce.Do(func() { templates, loadErr = parseAll(files) })
	return templates, loadErr
}

// Load returns the template of the named workflow.
func Load(workflow string) (*Template, error) {
	set, err := all()
	if err != nil {
		return nil, err
	}
	t, ok := set[workflow]
	if !ok {
		return nil, fmt.Errorf("no prompt template for workflow %q", workflow)
	}
	return t, nil
}

// Workflows lists the workflows that have a template, sorted by name.
func Workflows() ([]string, error) {
	set, err := all()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func parseAll(fsys fs.FS) (map[string]*Template, error) {
	paths, err := fs.Glob(fsys, "*.json")
	if err != nil {
		return nil, err
	}

	out := make(map[string]*Template, len(paths))
	for _, path := range paths {
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("failed to read prompt file %s: %w", path, err)
		}
		var t Template
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("failed to parse prompt file %s: %w", path, err)
		}
		if strings.TrimSpace(t.System) == "" || strings.TrimSpace(t.Task) == "" {
			return nil, fmt.Errorf("prompt file %s needs both a system and a task template", path)
		}
		t.Workflow = strings.TrimSuffix(path, ".json")
		out[t.Workflow] = &t
	}
	return out, nil
}

// Render fills both templates with inputs.
func (t *Template) Render(inputs map[string]string) (system, task string) {
	return Format(t.System, inputs), Format(t.Task, inputs)
}

var placeholder = regexp.MustCompile(`\{\{\.([A-Za-z0-9_]+)\}\}`)

// Format replaces placeholders in the form {{.key}} with values from data in
// a single pass, so placeholders inside substituted values stay literal.
// Placeholders without a value are left untouched.
func Format(template string, data map[string]string) string {
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		if v, ok := data[placeholder.FindStringSubmatch(m)[1]]; ok {
			return v
		}
		return m
	})
}
