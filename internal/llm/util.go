package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \t]*\n?(.*?)```")

// ExtractJSON returns the JSON payload of a model reply. Replies that are
// already valid JSON are only trimmed. Otherwise the first fenced code block
// wins, then the outermost object or array found in surrounding prose. If
// none of these applies the trimmed reply is returned unchanged.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	if text == "" || json.Valid([]byte(text)) {
		return text
	}

	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	// an opening fence without a closing one: the reply was cut short
	if rest, ok := strings.CutPrefix(text, "```"); ok {
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			return strings.TrimSpace(rest[i+1:])
		}
	}

	if candidate, ok := outermost(text); ok {
		return candidate
	}
	return text
}

// outermost slices text from its first '{' or '[' to the last matching closer
// and reports whether the slice is valid JSON.
func outermost(text string) (string, bool) {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", false
	}
	closer := byte('}')
	if text[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(text, closer)
	if end <= start {
		return "", false
	}
	candidate := text[start : end+1]
	return candidate, json.Valid([]byte(candidate))
}
