// Package summarize builds the bounded context handed to each generated
// section: per-section summaries, the upcoming plan and the anti-repetition
// instruction.
package summarize

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/content-writer/internal/types"
)

const (
	minSentenceChars = 20
	summarySentences = 2
	maxHeadingChars  = 200
	maxTopicChars    = 80

	recentTopics   = 5
	upcomingTopics = 3
)

// Limits bounds every piece of context produced by an Accumulator.
type Limits struct {
	MaxSummaryChars        int
	MaxTopics              int
	MaxPreviousSections    int
	MaxUpcomingSections    int
	UpcomingKnowledgeChars int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxSummaryChars:        400,
		MaxTopics:              5,
		MaxPreviousSections:    30,
		MaxUpcomingSections:    10,
		UpcomingKnowledgeChars: 150,
	}
}

// Planned is a section that has not been generated yet.
type Planned struct {
	Heading   string
	Knowledge string
}

// Accumulator turns generated sections into bounded summaries and renders
// them back into generator inputs. It holds no state between calls.
type Accumulator struct {
	limits Limits
}

// New creates an Accumulator. Zero limits fall back to the defaults.
func New(limits Limits) *Accumulator {
	d := DefaultLimits()
	if limits.MaxSummaryChars <= 0 {
		limits.MaxSummaryChars = d.MaxSummaryChars
	}
	if limits.MaxTopics <= 0 {
		limits.MaxTopics = d.MaxTopics
	}
	if limits.MaxPreviousSections <= 0 {
		limits.MaxPreviousSections = d.MaxPreviousSections
	}
	if limits.MaxUpcomingSections <= 0 {
		limits.MaxUpcomingSections = d.MaxUpcomingSections
	}
	if limits.UpcomingKnowledgeChars <= 0 {
		limits.UpcomingKnowledgeChars = d.UpcomingKnowledgeChars
	}
	return &Accumulator{limits: limits}
}

// Limits returns the effective limits.
func (a *Accumulator) Limits() Limits {
	return a.limits
}

// Summarize produces the summary of one generated section. The result size
// depends only on the limits, never on the length of content.
func (a *Accumulator) Summarize(heading, content string) types.SectionSummary {
	headingText := Truncate(InlineText(heading), maxHeadingChars)

	return types.SectionSummary{
		Heading: headingText,
		Summary: Truncate(synopsis(headingText, InlineText(content)), a.limits.MaxSummaryChars),
		Topics:  a.topics(headingText, heading+content),
	}
}

// PreviousContext renders the summaries of already generated sections. Only
// the most recent MaxPreviousSections are included.
func (a *Accumulator) PreviousContext(summaries []types.SectionSummary) string {
	if len(summaries) > a.limits.MaxPreviousSections {
		summaries = summaries[len(summaries)-a.limits.MaxPreviousSections:]
	}

	parts := make([]string, 0, len(summaries))
	for _, s := range summaries {
		parts = append(parts, s.Heading+"\n"+s.Summary)
	}
	return strings.Join(parts, "\n\n")
}

// Upcoming renders the headings still to be written, each with a shortened
// note about what it will cover.
func (a *Accumulator) Upcoming(planned []Planned) string {
	if len(planned) > a.limits.MaxUpcomingSections {
		planned = planned[:a.limits.MaxUpcomingSections]
	}

	parts := make([]string, 0, len(planned))
	for _, p := range planned {
		heading := Truncate(InlineText(p.Heading), maxHeadingChars)
		knowledge := strings.TrimSpace(p.Knowledge)
		if utf8.RuneCountInString(knowledge) > a.limits.UpcomingKnowledgeChars {
			knowledge = string([]rune(knowledge)[:a.limits.UpcomingKnowledgeChars]) + "..."
		}
		parts = append(parts, fmt.Sprintf("## %s\nTopic: %s", heading, knowledge))
	}
	return strings.Join(parts, "\n\n")
}

// Instruction builds the anti-repetition instruction from the topics already
// covered and the headings still to come.
func (a *Accumulator) Instruction(summaries []types.SectionSummary, planned []Planned) string {
	var covered []string
	for _, s := range summaries {
		covered = append(covered, s.Topics...)
	}
	if len(covered) > recentTopics {
		covered = covered[len(covered)-recentTopics:]
	}

	var next []string
	for _, p := range planned {
		if len(next) == upcomingTopics {
			break
		}
		if h := Truncate(InlineText(p.Heading), maxTopicChars); h != "" {
			next = append(next, h)
		}
	}

	var sb strings.Builder
	sb.WriteString("IMPORTANT RULES:\n")
	sb.WriteString("1. Do NOT repeat information from previous sections.\n")
	sb.WriteString("2. Do NOT write about topics planned for later sections.\n")
	sb.WriteString("3. Focus ONLY on the current heading.\n")
	sb.WriteString("4. Avoid generalities, write specifically about this section's topic.")

	if len(covered) > 0 {
		sb.WriteString("\n\nTopics already covered (do not repeat): ")
		sb.WriteString(strings.Join(covered, ", "))
	}
	if len(next) > 0 {
		sb.WriteString("\n\nTopics for the next sections (do not write about them now): ")
		sb.WriteString(strings.Join(next, ", "))
	}
	return sb.String()
}

func (a *Accumulator) topics(headingText, markup string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(t string) {
		t = Truncate(t, maxTopicChars)
		key := strings.ToLower(t)
		if t == "" || seen[key] || len(out) >= a.limits.MaxTopics {
			return
		}
		seen[key] = true
		out = append(out, t)
	}

	add(headingText)
	for _, h := range Headings(markup) {
		add(h)
	}
	return out
}

// synopsis picks the first sentences that are long enough to carry meaning
// and do not merely restate the heading.
func synopsis(headingText, text string) string {
	lowerHeading := strings.ToLower(headingText)

	var picked []string
	for _, s := range splitSentences(text) {
		if len(picked) == summarySentences {
			break
		}
		if utf8.RuneCountInString(s) <= minSentenceChars {
			continue
		}
		if lowerHeading != "" && strings.Contains(strings.ToLower(s), lowerHeading) {
			continue
		}
		picked = append(picked, s)
	}
	return strings.Join(picked, " ")
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	runes := []rune(text)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && runes[i+1] != ' ' {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

var whitespace = regexp.MustCompile(`\s+`)

// Truncate shortens s to at most max runes, marking the cut with an ellipsis.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= 3 {
		return string([]rune(s)[:max])
	}
	return strings.TrimSpace(string([]rune(s)[:max-3])) + "..."
}
