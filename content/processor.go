// Package content turns generated reading text into safe HTML.
package content

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Processor renders and cleans reading text.
type Processor struct {
	htmlPolicy *bluemonday.Policy
}

func NewProcessor() *Processor {
	return &Processor{htmlPolicy: bluemonday.UGCPolicy()}
}

// RenderHTML escapes text and lays it out as paragraphs. Blank lines split
// paragraphs; single newlines become <br/>.
func (p *Processor) RenderHTML(text string) string {
	text = strings.ReplaceAll(strings.TrimSpace(text), "\r\n", "\n")
	if text == "" {
		return ""
	}

	var b strings.Builder
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		lines := strings.Split(para, "\n")
		for i, line := range lines {
			lines[i] = html.EscapeString(strings.TrimSpace(line))
		}
		b.WriteString("<p>")
		b.WriteString(strings.Join(lines, "<br/>"))
		b.WriteString("</p>")
	}
	return p.htmlPolicy.Sanitize(b.String())
}
