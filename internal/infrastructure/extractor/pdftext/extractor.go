package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
)

// Extractor reads the text layer of PDFs without OCR.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Analyze(_ context.Context, doc *domain.Document, content []byte) ([]string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, &domain.DetailedError{Kind: domain.ErrUnsupportedFormat, Message: "the PDF could not be read", Err: err}
	}
	textReader, err := reader.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extract pdf text from %s: %w", doc.Filename, err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, textReader); err != nil {
		return nil, fmt.Errorf("read pdf text from %s: %w", doc.Filename, err)
	}

	var paragraphs []string
	for _, line := range strings.Split(buf.String(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			paragraphs = append(paragraphs, line)
		}
	}
	if len(paragraphs) == 0 {
		return nil, &domain.DetailedError{Kind: domain.ErrUnsupportedFormat, Message: "the PDF has no text layer; configure OCR to process scanned documents"}
	}
	return paragraphs, nil
}
