package report

import (
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark/ast"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

const (
	pageWidth  = 190.0
	pageBottom = 297.0 - 10.0
)

// pdfRenderer walks the goldmark AST of a run summary and draws it with fpdf
type pdfRenderer struct {
	pdf       *fpdf.Fpdf
	source    []byte
	translate func(string) string
	font      string
	size      float64
	bold      bool
}

func (r *pdfRenderer) render(node ast.Node) error {
	if err := ast.Walk(node, r.walk); err != nil {
		return err
	}
	return r.pdf.Error()
}

func (r *pdfRenderer) resetFont() {
	style := ""
	if r.bold {
		style = "B"
	}
	r.pdf.SetFont(r.font, style, r.size)
}

func (r *pdfRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n.Kind() {
	case ast.KindHeading:
		return r.heading(n.(*ast.Heading), entering)
	case ast.KindParagraph:
		if !entering {
			r.pdf.Ln(6)
		}
	case ast.KindText:
		if entering {
			r.pdf.Write(5, r.translate(string(n.(*ast.Text).Segment.Value(r.source))))
		}
	case ast.KindEmphasis:
		r.bold = entering && n.(*ast.Emphasis).Level == 2
		r.resetFont()
	case ast.KindFencedCodeBlock, ast.KindCodeBlock:
		if entering {
			r.codeBlock(n.Lines())
			return ast.WalkSkipChildren, nil
		}
	case extast.KindTable:
		if entering {
			r.table(n.(*extast.Table))
			return ast.WalkSkipChildren, nil
		}
	}
	return ast.WalkContinue, nil
}

func (r *pdfRenderer) heading(n *ast.Heading, entering bool) (ast.WalkStatus, error) {
	if !entering {
		r.pdf.Ln(7)
		r.resetFont()
		return ast.WalkContinue, nil
	}
	size := 14.0
	if n.Level > 1 {
		size = 11
	}
	r.pdf.Ln(2)
	r.pdf.SetFont(r.font, "B", size)
	return ast.WalkContinue, nil
}

// codeBlock prints the workflow log one wrapped line at a time
func (r *pdfRenderer) codeBlock(lines *text.Segments) {
	r.pdf.SetFont("Courier", "", 8)
	r.pdf.SetFillColor(245, 245, 245)
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		line := strings.TrimRight(string(segment.Value(r.source)), "\n")
		r.pdf.MultiCell(0, 4, r.translate(line), "", "L", true)
	}
	r.pdf.SetFillColor(255, 255, 255)
	r.resetFont()
	r.pdf.Ln(2)
}

func (r *pdfRenderer) table(n *extast.Table) {
	var rows [][]string
	var collect func(node ast.Node)
	collect = func(node ast.Node) {
		for child := node.FirstChild(); child != nil; child = child.NextSibling() {
			switch child.(type) {
			case *extast.TableHeader:
				rows = append(rows, r.cells(child))
			case *extast.TableRow:
				rows = append(rows, r.cells(child))
			}
		}
	}
	collect(n)
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}

	widths := r.columnWidths(rows)
	const lineHeight = 5.0
	for i, row := range rows {
		style := ""
		fill := false
		if i == 0 {
			style = "B"
			fill = true
			r.pdf.SetFillColor(230, 230, 230)
		}
		r.pdf.SetFont(r.font, style, 8)

		if r.pdf.GetY()+lineHeight > pageBottom {
			r.pdf.AddPage()
		}
		for j := range widths {
			value := ""
			if j < len(row) {
				value = r.fit(row[j], widths[j]-2)
			}
			r.pdf.CellFormat(widths[j], lineHeight, value, "1", 0, "L", fill, 0, "")
		}
		r.pdf.Ln(-1)
	}
	r.pdf.SetFillColor(255, 255, 255)
	r.resetFont()
	r.pdf.Ln(3)
}

func (r *pdfRenderer) cells(row ast.Node) []string {
	var cells []string
	for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
		var b strings.Builder
		for c := cell.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				b.Write(t.Segment.Value(r.source))
			}
		}
		cells = append(cells, r.translate(strings.TrimSpace(b.String())))
	}
	return cells
}

// columnWidths sizes columns by their widest cell and scales them to the page
func (r *pdfRenderer) columnWidths(rows [][]string) []float64 {
	r.pdf.SetFont(r.font, "B", 8)
	widths := make([]float64, len(rows[0]))
	total := 0.0
	for i := range widths {
		for _, row := range rows {
			if i < len(row) {
				if w := r.pdf.GetStringWidth(row[i]) + 4; w > widths[i] {
					widths[i] = w
				}
			}
		}
		if widths[i] < 12 {
			widths[i] = 12
		}
		total += widths[i]
	}
	if total > pageWidth {
		scale := pageWidth / total
		for i := range widths {
			widths[i] *= scale
		}
	}
	return widths
}

// fit truncates value with an ellipsis until it fits width
func (r *pdfRenderer) fit(value string, width float64) string {
	if r.pdf.GetStringWidth(value) <= width {
		return value
	}
	for len(value) > 0 && r.pdf.GetStringWidth(value+"...") > width {
		value = value[:len(value)-1]
	}
	return value + "..."
}
