package summarize

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

func parse(markup string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}
	doc.Find("script, style").Remove()
	return doc, nil
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// InlineText strips markup and collapses all whitespace to single spaces.
// Every element boundary counts as a word break.
func InlineText(markup string) string {
	if !strings.Contains(markup, "<") {
		return collapse(markup)
	}

	doc, err := parse(markup)
	if err != nil {
		return collapse(markup)
	}

	var sb strings.Builder
	collectText(doc.Find("body"), &sb)
	return collapse(sb.String())
}

// PlainText strips markup from a document while keeping its line structure.
// Runs of three or more newlines are collapsed to a blank line.
func PlainText(markup string) string {
	doc, err := parse(markup)
	if err != nil {
		return strings.TrimSpace(markup)
	}

	text := doc.Find("body").Text()
	return strings.TrimSpace(blankLines.ReplaceAllString(text, "\n\n"))
}

// Headings returns the text of every h1-h6 element in document order.
func Headings(markup string) []string {
	doc, err := parse(markup)
	if err != nil {
		return nil
	}

	var out []string
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		if t := collapse(s.Text()); t != "" {
			out = append(out, t)
		}
	})
	return out
}

func collectText(sel *goquery.Selection, sb *strings.Builder) {
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "#text" {
			sb.WriteString(s.Text())
			return
		}
		sb.WriteByte(' ')
		collectText(s, sb)
		sb.WriteByte(' ')
	})
}
