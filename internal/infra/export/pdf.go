package export

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/bryanwahyu/mediscan/internal/domain/analysis"
	"github.com/bryanwahyu/mediscan/internal/domain/report"
)

const (
	fontFamily = "Helvetica"
	bodySize   = 10.0
	lineHeight = 5.0
	pageWidth  = 180.0
)

// Renderer turns a report into PDF bytes.
type Renderer interface {
	Render(r *report.Report) ([]byte, error)
}

// PDFRenderer lays out a report on A4 pages with the report's accent color
// on headings and rules. The header and footer are markdown; the findings
// are written from their formatted segments.
type PDFRenderer struct {
	Product string

	uncompressed bool
}

var _ Renderer = PDFRenderer{}

func (p PDFRenderer) Render(r *report.Report) ([]byte, error) {
	if r == nil {
		return nil, report.ErrNoResult
	}
	accent := parseHex(r.Content.AccentColor)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(!p.uncompressed)
	pdf.SetTitle(r.Content.AnalysisLabel+" Report", true)
	pdf.SetAuthor(p.product(), true)
	pdf.SetCreationDate(r.GeneratedAt)
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 18)
	pdf.AliasNbPages("{nb}")

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetHeaderFunc(func() {
		pdf.SetFillColor(accent.r, accent.g, accent.b)
		pdf.Rect(0, 0, 210, 4, "F")
		pdf.SetY(10)
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont(fontFamily, "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 5, tr(fmt.Sprintf("Report #%s - page %d/{nb}", r.ID, pdf.PageNo())), "", 0, "C", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	})
	pdf.AddPage()
	pdf.SetFont(fontFamily, "", bodySize)

	rd := &pdfRenderer{
		pdf:    pdf,
		md:     goldmark.New(goldmark.WithExtensions(extension.Table)),
		tr:     tr,
		accent: accent,
	}
	if err := rd.markdown(r.Header); err != nil {
		return nil, fmt.Errorf("layout report: %w", err)
	}
	rd.findings(r.Content)
	if err := rd.markdown(r.Content.DisclaimerMarkdown() + "\n" + r.Footer); err != nil {
		return nil, fmt.Errorf("layout report: %w", err)
	}
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("layout report: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (p PDFRenderer) product() string {
	if p.Product == "" {
		return "mediscan"
	}
	return p.Product
}

type rgb struct{ r, g, b int }

// parseHex reads "#RRGGBB"; anything else falls back to a neutral blue.
func parseHex(s string) rgb {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return rgb{30, 144, 255}
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return rgb{30, 144, 255}
	}
	return rgb{int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)}
}

type pdfRenderer struct {
	pdf       *fpdf.Fpdf
	md        goldmark.Markdown
	source    []byte
	tr        func(string) string
	accent    rgb
	bold      bool
	italic    bool
	heading   bool
	listLevel int
}

func (r *pdfRenderer) markdown(src string) error {
	r.source = []byte(src)
	doc := r.md.Parser().Parse(text.NewReader(r.source))
	return ast.Walk(doc, r.walk)
}

// findings writes the segments as formatted. Markdown syntax in finding text
// is never interpreted.
func (r *pdfRenderer) findings(c report.Content) {
	r.writeHeading(c.ResultsTitle(), 2)
	segments := c.Findings
	if c.Placeholder {
		segments = []analysis.Segment{{Text: report.PlaceholderFindings, Italic: true}}
	}
	for _, s := range segments {
		r.bold, r.italic = s.Bold, s.Italic
		r.updateFont()
		for i, line := range strings.Split(s.Text, "\n") {
			if i > 0 {
				r.pdf.Ln(lineHeight)
			}
			if line != "" {
				r.pdf.Write(lineHeight, r.tr(line))
			}
		}
	}
	r.bold, r.italic = false, false
	r.updateFont()
	r.pdf.Ln(lineHeight + 2)
}

func (r *pdfRenderer) updateFont() {
	style := ""
	if r.bold || r.heading {
		style += "B"
	}
	if r.italic {
		style += "I"
	}
	r.pdf.SetFont(fontFamily, style, bodySize)
}

func (r *pdfRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n.Kind() {
	case ast.KindHeading:
		return r.handleHeading(n.(*ast.Heading), entering)
	case ast.KindParagraph:
		if !entering {
			r.pdf.Ln(lineHeight + 2)
		}
	case ast.KindTextBlock:
		if !entering {
			r.pdf.Ln(lineHeight)
		}
	case ast.KindText:
		if entering {
			r.handleText(n.(*ast.Text))
		}
	case ast.KindEmphasis:
		if n.(*ast.Emphasis).Level == 2 {
			r.bold = entering
		} else {
			r.italic = entering
		}
		r.updateFont()
	case ast.KindCodeSpan:
		if entering {
			r.pdf.SetFont("Courier", "", bodySize)
			r.pdf.Write(lineHeight, r.tr(r.inlineText(n)))
			r.updateFont()
		}
		return ast.WalkSkipChildren, nil
	case ast.KindList:
		if entering {
			r.listLevel++
		} else {
			r.listLevel--
			if r.listLevel == 0 {
				r.pdf.Ln(2)
			}
		}
	case ast.KindListItem:
		if entering {
			r.pdf.SetX(15 + float64(r.listLevel)*5)
			r.pdf.Write(lineHeight, "- ")
		}
	case ast.KindThematicBreak:
		if entering {
			y := r.pdf.GetY() + 1
			r.pdf.SetDrawColor(r.accent.r, r.accent.g, r.accent.b)
			r.pdf.Line(15, y, 195, y)
			r.pdf.SetDrawColor(0, 0, 0)
			r.pdf.Ln(4)
		}
	case extast.KindTable:
		if entering {
			r.renderTable(n.(*extast.Table))
		}
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

func (r *pdfRenderer) handleHeading(n *ast.Heading, entering bool) (ast.WalkStatus, error) {
	if entering {
		r.writeHeading(r.inlineText(n), n.Level)
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

func (r *pdfRenderer) writeHeading(title string, level int) {
	size := 12.0
	switch level {
	case 1:
		size = 18
	case 2:
		size = 13
	}
	r.pdf.Ln(3)
	r.heading = true
	r.pdf.SetTextColor(r.accent.r, r.accent.g, r.accent.b)
	r.pdf.SetFont(fontFamily, "B", size)
	r.pdf.Write(size*0.5, r.tr(title))
	r.pdf.Ln(size * 0.6)
	r.pdf.SetTextColor(0, 0, 0)
	r.heading = false
	r.updateFont()
}

func (r *pdfRenderer) handleText(n *ast.Text) {
	r.pdf.Write(lineHeight, r.tr(string(util.UnescapePunctuations(n.Segment.Value(r.source)))))
	if n.SoftLineBreak() || n.HardLineBreak() {
		r.pdf.Ln(lineHeight)
	}
}

// inlineText flattens the text under n.
func (r *pdfRenderer) inlineText(n ast.Node) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(util.UnescapePunctuations(t.Segment.Value(r.source)))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func (r *pdfRenderer) renderTable(n *extast.Table) {
	var rows [][]string
	for row := n.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, r.inlineText(cell))
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}

	cols := len(rows[0])
	widths := make([]float64, cols)
	if cols == 2 {
		widths[0], widths[1] = pageWidth*0.35, pageWidth*0.65
	} else {
		for i := range widths {
			widths[i] = pageWidth / float64(cols)
		}
	}

	r.pdf.Ln(1)
	r.pdf.SetDrawColor(226, 232, 240)
	for i, row := range rows {
		header := i == 0
		if header {
			r.pdf.SetFont(fontFamily, "B", bodySize-1)
			r.pdf.SetFillColor(r.accent.r, r.accent.g, r.accent.b)
			r.pdf.SetTextColor(255, 255, 255)
		} else {
			r.pdf.SetFont(fontFamily, "", bodySize-1)
			r.pdf.SetFillColor(248, 250, 252)
			r.pdf.SetTextColor(45, 55, 72)
		}
		for j := 0; j < cols; j++ {
			cell := ""
			if j < len(row) {
				cell = row[j]
			}
			if !header && j == 0 {
				r.pdf.SetFont(fontFamily, "B", bodySize-1)
			}
			r.pdf.CellFormat(widths[j], 7, r.tr(cell), "1", 0, "L", true, 0, "")
			if !header && j == 0 {
				r.pdf.SetFont(fontFamily, "", bodySize-1)
			}
		}
		r.pdf.Ln(-1)
	}
	r.pdf.SetTextColor(0, 0, 0)
	r.pdf.SetDrawColor(0, 0, 0)
	r.pdf.Ln(3)
	r.updateFont()
}
