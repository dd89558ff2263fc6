package evidence

import (
	"encoding/json"
	"fmt"
	"strings"

	"privalytics/domain/research"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// RenderStructured serializes a report to indented JSON.
func RenderStructured(report *research.EvidenceReport) ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}

// RenderNarrative produces the markdown narrative form of a report.
func RenderNarrative(report *research.EvidenceReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Evidence Report %s\n\n", report.ID)
	fmt.Fprintf(&b, "Generated %s\n\n", report.GeneratedAt)

	b.WriteString("## Methodology\n\n")
	b.WriteString(report.Methodology)
	b.WriteString("\n\n## Findings\n\n")
	for i, f := range report.Findings {
		marker := "not significant"
		if f.Significant {
			marker = "significant"
		}
		fmt.Fprintf(&b, "%d. **%s** (%s, %s, %s effect)\n", i+1, f.Statement, f.TestType, marker, f.Magnitude)
		fmt.Fprintf(&b, "   - %s\n", f.Result.Conclusion)
		fmt.Fprintf(&b, "   - 95%% CI [%.3f, %.3f], n=%d\n",
			f.Result.ConfidenceInterval[0], f.Result.ConfidenceInterval[1], f.Result.SampleSize)
		if f.Supported {
			b.WriteString("   - Supports the hypothesized direction.\n")
		}
	}

	writeSection(&b, "Conclusions", report.Conclusions)
	writeSection(&b, "Limitations", report.Limitations)
	writeSection(&b, "Recommendations", report.Recommendations)
	writeSection(&b, "References", report.References)
	if len(report.Warnings) > 0 {
		writeSection(&b, "Warnings", report.Warnings)
	}
	return b.String()
}

// RenderNarrativeHTML renders the markdown narrative to standalone HTML.
func RenderNarrativeHTML(report *research.EvidenceReport) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	doc := p.Parse([]byte(RenderNarrative(report)))
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.CompletePage})
	return markdown.Render(doc, renderer)
}

func writeSection(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n## %s\n\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}
