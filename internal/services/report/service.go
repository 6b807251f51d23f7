package report

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/ternarybob/ecrop/internal/interfaces"
	"github.com/ternarybob/ecrop/internal/models"
)

// Service renders run reports as markdown and PDF
type Service struct {
	logger arbor.ILogger
	md     goldmark.Markdown
}

// Compile-time assertion
var _ interfaces.ReportService = (*Service)(nil)

func NewService(logger arbor.ILogger) *Service {
	return &Service{
		logger: logger,
		md:     goldmark.New(goldmark.WithExtensions(extension.Table)),
	}
}

// RenderPDF lays out the markdown summary of a run on A4 pages
func (s *Service) RenderPDF(report *models.RunReport) ([]byte, error) {
	markdown := s.RenderMarkdown(report)
	s.logger.Debug().
		Str("run_id", report.ID).
		Int("markdown_len", len(markdown)).
		Msg("Rendering run report PDF")

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Owner Update Run "+report.ID, true)
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 10)
	pdf.AddPage()
	pdf.SetFont("Arial", "", 9)

	source := []byte(markdown)
	doc := s.md.Parser().Parse(text.NewReader(source))

	renderer := &pdfRenderer{
		pdf:       pdf,
		source:    source,
		translate: pdf.UnicodeTranslatorFromDescriptor(""),
		font:      "Arial",
		size:      9,
	}
	if err := renderer.render(doc); err != nil {
		s.logger.Error().Err(err).Str("run_id", report.ID).Msg("Failed to render run report")
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		s.logger.Error().Err(err).Str("run_id", report.ID).Msg("Failed to generate PDF output")
		return nil, fmt.Errorf("failed to generate PDF output: %w", err)
	}

	s.logger.Debug().Int("pdf_size", buf.Len()).Msg("PDF generated successfully")
	return buf.Bytes(), nil
}
