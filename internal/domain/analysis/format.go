package analysis

import (
	"regexp"
	"strings"
)

// Segment is one run of finding text with a single style.
type Segment struct {
	Text   string `json:"text"`
	Bold   bool   `json:"bold,omitempty"`
	Italic bool   `json:"italic,omitempty"`
}

// Plain reports whether the segment carries no style.
func (s Segment) Plain() bool { return !s.Bold && !s.Italic }

// bold spans never cross a line break
var boldPattern = regexp.MustCompile(`\*\*(.*?)\*\*`)

// Format splits raw finding text into styled segments. Bold spans are
// resolved first; italic spans are then resolved inside the plain gaps only,
// so one level of styling applies per span.
func Format(raw string) []Segment {
	var out []Segment
	last := 0
	for _, m := range boldPattern.FindAllStringSubmatchIndex(raw, -1) {
		out = appendItalic(out, raw[last:m[0]])
		out = append(out, Segment{Text: raw[m[2]:m[3]], Bold: true})
		last = m[1]
	}
	return appendItalic(out, raw[last:])
}

// appendItalic splits a plain gap on single-star spans. A "**" run here has
// no closing counterpart and stays literal.
func appendItalic(out []Segment, s string) []Segment {
	start, i := 0, 0
	for i < len(s) {
		if s[i] != '*' {
			i++
			continue
		}
		if i+1 < len(s) && s[i+1] == '*' {
			i += 2
			continue
		}
		end := strings.IndexByte(s[i+1:], '*')
		if end < 0 {
			break
		}
		end += i + 1
		if strings.IndexByte(s[i+1:end], '\n') >= 0 {
			i++
			continue
		}
		out = appendPlain(out, s[start:i])
		out = append(out, Segment{Text: s[i+1 : end], Italic: true})
		i = end + 1
		start = i
	}
	return appendPlain(out, s[start:])
}

func appendPlain(out []Segment, s string) []Segment {
	if s == "" {
		return out
	}
	return append(out, Segment{Text: s})
}

// Markup turns segments back into the light markup they came from. Empty
// styled segments are dropped since "****" would read as a literal.
func Markup(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		switch {
		case s.Text == "" && !s.Plain():
		case s.Bold:
			b.WriteString("**" + s.Text + "**")
		case s.Italic:
			b.WriteString("*" + s.Text + "*")
		default:
			b.WriteString(s.Text)
		}
	}
	return b.String()
}
