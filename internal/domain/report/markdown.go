package report

import (
	"fmt"
	"strings"

	"github.com/bryanwahyu/mediscan/internal/domain/analysis"
	"github.com/bryanwahyu/mediscan/internal/domain/media"
)

// PlaceholderFindings stands in for a blank finding text.
const PlaceholderFindings = "No findings were returned for this media."

// Disclaimer returns the medical disclaimer rendered on every report.
func Disclaimer(kind media.Kind) string {
	noun := strings.ToLower(kind.Title())
	return fmt.Sprintf("This %s analysis is generated by AI and should not be used as a "+
		"substitute for professional medical advice, diagnosis, or treatment. Always consult "+
		"with qualified healthcare professionals for medical decisions. %s quality and "+
		"lighting conditions may affect analysis accuracy.", noun, kind.Title())
}

// Markdown renders the findings and disclaimer. It depends on Content only,
// so the same content always renders the same text.
func (c Content) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", c.ResultsTitle())
	if c.Placeholder {
		b.WriteString("*" + PlaceholderFindings + "*\n\n")
	} else {
		b.WriteString(strings.TrimSpace(analysis.Markup(c.Findings)))
		b.WriteString("\n\n")
	}
	b.WriteString(c.DisclaimerMarkdown())
	return b.String()
}

// ResultsTitle heads the findings section.
func (c Content) ResultsTitle() string {
	return c.MediaKind.Title() + " Analysis Results"
}

// DisclaimerMarkdown closes the findings section.
func (c Content) DisclaimerMarkdown() string {
	return "---\n\n**Medical Disclaimer:** " + c.Disclaimer + "\n"
}
