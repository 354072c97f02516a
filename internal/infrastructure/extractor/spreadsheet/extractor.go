package spreadsheet

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
)

// Extractor turns every non-empty XLSX row into one tab separated paragraph.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Analyze(_ context.Context, doc *domain.Document, content []byte) ([]string, error) {
	book, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, &domain.DetailedError{Kind: domain.ErrUnsupportedFormat, Message: "the spreadsheet could not be read", Err: err}
	}
	defer book.Close()

	var paragraphs []string
	for _, sheet := range book.GetSheetList() {
		rows, err := book.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q of %s: %w", sheet, doc.Filename, err)
		}
		for _, row := range rows {
			cells := make([]string, 0, len(row))
			for _, cell := range row {
				if cell = strings.TrimSpace(cell); cell != "" {
					cells = append(cells, cell)
				}
			}
			if len(cells) > 0 {
				paragraphs = append(paragraphs, strings.Join(cells, "\t"))
			}
		}
	}
	return paragraphs, nil
}
