package extractor

import (
	"context"
	"fmt"
	"slices"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
	"github.com/kirillkom/document-chat-assistant/internal/core/ports"
)

// Router dispatches analysis by file extension. OCR formats go to the OCR
// analyzer; without one, PDFs fall back to the local text layer reader.
type Router struct {
	ocr         ports.DocumentAnalyzer
	pdfFallback ports.DocumentAnalyzer
	local       map[string]ports.DocumentAnalyzer
}

func NewRouter(ocr, pdfFallback, plainText, spreadsheet ports.DocumentAnalyzer) *Router {
	return &Router{
		ocr:         ocr,
		pdfFallback: pdfFallback,
		local: map[string]ports.DocumentAnalyzer{
			".txt":  plainText,
			".md":   plainText,
			".csv":  plainText,
			".xlsx": spreadsheet,
		},
	}
}

func (r *Router) Analyze(ctx context.Context, doc *domain.Document, content []byte) ([]string, error) {
	ext := domain.DocumentExtension(doc.Filename)
	if analyzer, ok := r.local[ext]; ok && analyzer != nil {
		return analyzer.Analyze(ctx, doc, content)
	}
	if slices.Contains(domain.OCRExtensions, ext) {
		if r.ocr != nil {
			return r.ocr.Analyze(ctx, doc, content)
		}
		if ext == ".pdf" && r.pdfFallback != nil {
			return r.pdfFallback.Analyze(ctx, doc, content)
		}
		return nil, &domain.DetailedError{
			Kind:    domain.ErrConfiguration,
			Message: "OCR is not configured for this file type",
			Err:     fmt.Errorf("no analyzer for %s", ext),
		}
	}
	return nil, &domain.DetailedError{
		Kind:    domain.ErrUnsupportedFormat,
		Message: "unsupported file format: " + ext,
	}
}
