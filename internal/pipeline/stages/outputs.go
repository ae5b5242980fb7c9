package stages

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/content-writer/internal/llm"
	"github.com/jonathan/content-writer/internal/schemas"
)

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Output is a named value a stage expects from its workflow. Aliases are the
// alternative keys workflows have been seen to use for the same value.
type Output struct {
	Name     string
	Aliases  []string
	Required bool
	// Format defaults to text.
	Format string
	// Schema names the JSON schema a JSON output is validated against.
	Schema string
}

// Keys returns the canonical name followed by the aliases.
func (o Output) Keys() []string {
	return append([]string{o.Name}, o.Aliases...)
}

// Values are resolved outputs keyed by canonical name. JSON outputs are stored
// as compact JSON text.
type Values map[string]string

// Has reports whether the output resolved to a non-empty value.
func (v Values) Has(name string) bool {
	return strings.TrimSpace(v[name]) != ""
}

// OutputError reports a required output that is missing or malformed.
type OutputError struct {
	Stage   int
	Output  string
	Message string
	Cause   error
}

func (e *OutputError) Error() string {
	msg := fmt.Sprintf("stage %d output %q: %s", e.Stage, e.Output, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *OutputError) Unwrap() error {
	return e.Cause
}

// Resolve maps raw workflow outputs onto the stage's declared outputs. The
// first non-empty key among name and aliases wins. JSON outputs are stripped
// of code fences, parsed and validated; a malformed optional JSON output is
// kept wrapped as {"raw": ...}.
func (s *Stage) Resolve(raw map[string]string) (Values, error) {
	values := make(Values, len(s.Outputs))
	for _, out := range s.Outputs {
		value := firstNonEmpty(raw, out.Keys())
		if value == "" {
			if out.Required {
				return nil, &OutputError{Stage: s.Number, Output: out.Name, Message: "missing required output"}
			}
			continue
		}

		if out.Format != FormatJSON {
			values[out.Name] = value
			continue
		}

		doc, err := normalizeJSON(value, out.Schema)
		if err != nil {
			if out.Required {
				return nil, &OutputError{Stage: s.Number, Output: out.Name, Message: "malformed output", Cause: err}
			}
			wrapped, _ := json.Marshal(map[string]string{"raw": value})
			doc = string(wrapped)
		}
		values[out.Name] = doc
	}
	return values, nil
}

func firstNonEmpty(raw map[string]string, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(raw[k]); v != "" {
			return v
		}
	}
	return ""
}

// normalizeJSON returns the compacted JSON payload of a model response after schema validation.
func normalizeJSON(value, schema string) (string, error) {
	cleaned := llm.ExtractJSON(value)
	if !json.Valid([]byte(cleaned)) {
		return "", fmt.Errorf("not valid JSON")
	}
	compact, err := compactJSON(cleaned)
	if err != nil {
		return "", err
	}
	if schema != "" {
		if err := schemas.Validate(schema, []byte(compact)); err != nil {
			return "", err
		}
	}
	return compact, nil
}
