package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BriefItem is one planned section of the article produced by the brief stage.
type BriefItem struct {
	Heading   string `json:"heading"`
	Knowledge string `json:"knowledge"`
	Keywords  string `json:"keywords"`
}

// UnmarshalJSON accepts keywords either as a string or as a list of strings.
func (b *BriefItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		Heading   string          `json:"heading"`
		Knowledge string          `json:"knowledge"`
		Keywords  json.RawMessage `json:"keywords"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	b.Heading = raw.Heading
	b.Knowledge = raw.Knowledge
	b.Keywords = ""

	if len(raw.Keywords) == 0 || string(raw.Keywords) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw.Keywords, &s); err == nil {
		b.Keywords = s
		return nil
	}

	var list []string
	if err := json.Unmarshal(raw.Keywords, &list); err != nil {
		return fmt.Errorf("keywords must be a string or a list of strings: %w", err)
	}
	b.Keywords = strings.Join(list, ", ")
	return nil
}

// RAGAnswers holds the question/answer material built by the RAG stage.
type RAGAnswers struct {
	Detailed string `json:"detailed"`
	General  string `json:"general"`
}

// FinalDocument is the assembled article in markup and plain text form.
type FinalDocument struct {
	HTML string `json:"html"`
	Text string `json:"text"`
}
