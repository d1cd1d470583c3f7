package export

import (
	"regexp"
	"strings"
	"time"

	"github.com/bryanwahyu/mediscan/internal/domain/report"
)

var unsafeRun = regexp.MustCompile(`[^A-Za-z0-9]+`)

func sanitize(s, fallback string) string {
	s = strings.Trim(unsafeRun.ReplaceAllString(s, "_"), "_")
	if s == "" {
		return fallback
	}
	return s
}

// FileName returns <Label>_<Kind>_Report_<Patient>_<YYYY-MM-DD>.pdf.
func FileName(c report.Content, at time.Time) string {
	return sanitize(c.AnalysisLabel, "Medical") + "_" +
		c.MediaKind.Title() + "_Report_" +
		sanitize(c.PatientName, "Patient") + "_" +
		at.Format("2006-01-02") + ".pdf"
}
