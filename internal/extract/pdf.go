// Package extract turns an uploaded PDF into plain text for the analysis stages.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	apperrors "github.com/PratikB30/crewai-financial-doc-analyzer/internal/errors"
)

// ErrNoText is wrapped when a document parses but yields no readable text.
var ErrNoText = errors.New("document contains no extractable text")

// Options configures a PDFExtractor.
type Options struct {
	Logger *slog.Logger
}

// PDFExtractor validates documents with pdfcpu and reads their text page by
// page with ledongthuc/pdf.
type PDFExtractor struct {
	conf   *model.Configuration
	logger *slog.Logger
}

// NewPDFExtractor builds an extractor.
func NewPDFExtractor(opts Options) *PDFExtractor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFExtractor{
		conf:   conf,
		logger: logger.With("component", "pdf_extractor"),
	}
}

// Extract returns the document text with pages in order and blank lines collapsed.
// Every failure is an extraction error.
func (e *PDFExtractor) Extract(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperrors.Extraction(err)
	}

	if err := api.ValidateFile(path, e.conf); err != nil {
		return "", apperrors.Extraction(fmt.Errorf("validate pdf: %w", err))
	}
	pageCount, err := api.PageCountFile(path)
	if err != nil {
		return "", apperrors.Extraction(fmt.Errorf("count pages: %w", err))
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", apperrors.Extraction(fmt.Errorf("open pdf: %w", err))
	}
	defer func() { _ = f.Close() }()

	var b strings.Builder
	read := 0
	for i := 1; i <= r.NumPage(); i++ {
		if err = ctx.Err(); err != nil {
			return "", apperrors.Extraction(err)
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, pageErr := pageText(page)
		if pageErr != nil {
			return "", apperrors.Extraction(fmt.Errorf("read page %d: %w", i, pageErr))
		}
		b.WriteString(text)
		b.WriteByte('\n')
		read++
	}

	text := collapseBlankLines(b.String())
	if strings.TrimSpace(text) == "" {
		return "", apperrors.Extraction(ErrNoText)
	}

	e.logger.DebugContext(ctx, "pdf extracted",
		"pages", pageCount,
		"pages_read", read,
		"chars", len(text),
	)
	return text, nil
}

// pageText decodes one page. The reader panics on some malformed content
// streams; those surface as errors.
func pageText(page pdf.Page) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed page content: %v", rec)
		}
	}()
	return page.GetPlainText(nil)
}

func collapseBlankLines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	for strings.Contains(s, "\n\n") {
		s = strings.ReplaceAll(s, "\n\n", "\n")
	}
	return s
}
