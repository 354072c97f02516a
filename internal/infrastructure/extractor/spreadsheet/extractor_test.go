package spreadsheet

import (
	"context"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
)

func TestAnalyzeReadsRowsAcrossSheets(t *testing.T) {
	book := excelize.NewFile()
	defer book.Close()
	_ = book.SetCellValue("Sheet1", "A1", "Policy")
	_ = book.SetCellValue("Sheet1", "B1", "Days")
	_ = book.SetCellValue("Sheet1", "A2", "Vacation")
	_ = book.SetCellValue("Sheet1", "B2", 20)
	if _, err := book.NewSheet("Extra"); err != nil {
		t.Fatalf("NewSheet() error = %v", err)
	}
	_ = book.SetCellValue("Extra", "A1", "Note")

	buf, err := book.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer() error = %v", err)
	}

	paragraphs, err := NewExtractor().Analyze(context.Background(), &domain.Document{Filename: "hr.xlsx"}, buf.Bytes())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	want := []string{"Policy\tDays", "Vacation\t20", "Note"}
	if len(paragraphs) != len(want) {
		t.Fatalf("expected %v, got %v", want, paragraphs)
	}
	for i := range want {
		if paragraphs[i] != want[i] {
			t.Fatalf("paragraph %d: expected %q, got %q", i, want[i], paragraphs[i])
		}
	}
}

func TestAnalyzeRejectsNonWorkbook(t *testing.T) {
	_, err := NewExtractor().Analyze(context.Background(), &domain.Document{Filename: "x.xlsx"}, []byte("plain"))
	if !domain.IsKind(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}
