package prompt

import (
	"fmt"
	"strings"

	"github.com/bryanwahyu/mediscan/internal/domain/media"
)

// GetSystemPrompt frames the model as a cautious clinical reviewer. Output
// is plain prose with light markup: **bold** for key findings and *italic*
// for qualifiers.
func GetSystemPrompt(kind media.Kind) string {
	noun := strings.ToLower(kind.Title())
	return fmt.Sprintf(`You are a careful medical imaging assistant reviewing a patient-supplied %s.
You support, never replace, a qualified clinician.

Requirements:
- Write in clear, user-friendly language for a non-specialist.
- Use **double asterisks** around key findings and *single asterisks* around qualifiers such as confidence levels.
- Do not use headings, tables, code fences or nested emphasis.
- State a confidence level (low, moderate, high) for every finding.
- If the %s is unclear, too dark, too short or not medical, say so instead of guessing.
- End with a short recommendation to consult a healthcare professional.`, noun, noun)
}

// GetUserPrompt combines the analysis instruction with where to find the
// media. Images are attached separately; videos are referenced by URL.
func GetUserPrompt(instruction, mediaURL string, kind media.Kind) string {
	instruction = strings.TrimSpace(instruction)
	if kind == media.KindImage {
		return instruction
	}
	return fmt.Sprintf("%s\n\nVideo URL: %s", instruction, mediaURL)
}
