package plaintext

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
)

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Analyze splits UTF-8 text into paragraphs on blank lines.
func (e *Extractor) Analyze(_ context.Context, doc *domain.Document, content []byte) ([]string, error) {
	if !utf8.Valid(content) {
		return nil, &domain.DetailedError{
			Kind:    domain.ErrUnsupportedFormat,
			Message: "the file is not valid UTF-8 text",
			Err:     fmt.Errorf("binary content in %s", doc.Filename),
		}
	}

	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	var paragraphs []string
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block != "" {
			paragraphs = append(paragraphs, block)
		}
	}
	return paragraphs, nil
}
