package summarize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInlineText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "  just   text ", want: "just text"},
		{name: "blocks become breaks", in: "<p>one</p><p>two</p>", want: "one two"},
		{name: "entities decoded", in: "<p>salt &amp; pepper</p>", want: "salt & pepper"},
		{name: "script dropped", in: "<p>a</p><script>alert(1)</script>", want: "a"},
		{name: "heading", in: "<h2 class=\"x\">Title</h2>", want: "Title"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InlineText(tt.in))
		})
	}
}

func TestPlainText(t *testing.T) {
	doc := "<h2>First</h2>\n<p>Alpha</p>\n\n<h2>Second</h2>\n<p>Beta</p>\n\n\n\n<p>Gamma</p>"

	assert.Equal(t, "First\nAlpha\n\nSecond\nBeta\n\nGamma", PlainText(doc))
}

func TestHeadings(t *testing.T) {
	got := Headings("<h1>A</h1><p>x</p><h3> B  c </h3><h6></h6><h4>D</h4>")
	assert.Equal(t, []string{"A", "B c", "D"}, got)
	assert.Empty(t, Headings("<p>no headings</p>"))
}
