package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bryanwahyu/mediscan/internal/domain/analysis"
	"github.com/bryanwahyu/mediscan/internal/domain/media"
	"github.com/bryanwahyu/mediscan/internal/domain/report"
)

var (
	findingStyle = lipgloss.NewStyle()
	boldStyle    = lipgloss.NewStyle().Bold(true)
	italicStyle  = lipgloss.NewStyle().Italic(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#64748B")).Italic(true)
)

func describeAsset(a media.Asset) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", a.Kind.Title(), a.Name)
	fmt.Fprintf(&b, "Size: %s", formatFileSize(a.Size))
	if a.Duration > 0 {
		fmt.Fprintf(&b, "\nDuration: %s", a.Duration.Round(time.Second))
	}
	return b.String()
}

func (c *client) renderResult(res analysis.Result) string {
	label := res.Request.TypeID
	header := lipgloss.NewStyle().Bold(true)
	if d, ok := c.catalog.Get(res.Request.TypeID); ok {
		label = d.Label
		header = header.Foreground(lipgloss.Color(d.Color))
	}

	var b strings.Builder
	b.WriteString(header.Render(label + " findings"))
	b.WriteString("\n\n")
	b.WriteString(renderFindings(res.Segments))
	b.WriteString("\n\n")
	b.WriteString(mutedStyle.Render(report.Disclaimer(res.Kind)))
	return boxStyle.Render(b.String())
}

// renderFindings styles each segment line by line so lipgloss never pads a
// multi-line run.
func renderFindings(segments []analysis.Segment) string {
	var b strings.Builder
	for _, s := range segments {
		style := findingStyle
		switch {
		case s.Bold:
			style = boldStyle
		case s.Italic:
			style = italicStyle
		}
		for i, line := range strings.Split(s.Text, "\n") {
			if i > 0 {
				b.WriteByte('\n')
			}
			if line != "" {
				b.WriteString(style.Render(line))
			}
		}
	}
	return b.String()
}

type exportOutcome struct {
	report.ExportResult
}

func (o exportOutcome) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Report %s\n\n", o.ReportID)
	fmt.Fprintf(&b, "Saved to: %s\n", o.Path)
	fmt.Fprintf(&b, "Pages:    %d", o.Pages)
	if o.ShareURL != "" {
		fmt.Fprintf(&b, "\nLink:     %s", o.ShareURL)
	}
	if o.Notice != "" {
		fmt.Fprintf(&b, "\n\n%s", o.Notice)
	}
	return b.String()
}

func formatFileSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
