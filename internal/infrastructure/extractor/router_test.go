package extractor

import (
	"context"
	"testing"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
)

type analyzerFake struct {
	name  string
	calls int
}

func (f *analyzerFake) Analyze(context.Context, *domain.Document, []byte) ([]string, error) {
	f.calls++
	return []string{f.name}, nil
}

func TestRouterDispatchesByExtension(t *testing.T) {
	ocr := &analyzerFake{name: "ocr"}
	pdf := &analyzerFake{name: "pdf"}
	text := &analyzerFake{name: "text"}
	sheet := &analyzerFake{name: "sheet"}
	router := NewRouter(ocr, pdf, text, sheet)

	cases := map[string]string{
		"scan.PNG":   "ocr",
		"report.pdf": "ocr",
		"notes.md":   "text",
		"data.csv":   "text",
		"book.xlsx":  "sheet",
	}
	for filename, want := range cases {
		got, err := router.Analyze(context.Background(), &domain.Document{Filename: filename}, nil)
		if err != nil {
			t.Fatalf("%s: Analyze() error = %v", filename, err)
		}
		if got[0] != want {
			t.Fatalf("%s: expected %s analyzer, got %s", filename, want, got[0])
		}
	}
	if pdf.calls != 0 {
		t.Fatalf("expected pdf fallback unused while OCR is configured")
	}
}

func TestRouterFallsBackToPDFTextWithoutOCR(t *testing.T) {
	pdf := &analyzerFake{name: "pdf"}
	router := NewRouter(nil, pdf, &analyzerFake{}, &analyzerFake{})

	got, err := router.Analyze(context.Background(), &domain.Document{Filename: "a.pdf"}, nil)
	if err != nil || got[0] != "pdf" {
		t.Fatalf("expected pdf fallback, got %v err=%v", got, err)
	}
	if _, err := router.Analyze(context.Background(), &domain.Document{Filename: "a.jpg"}, nil); !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for image without OCR, got %v", err)
	}
}

func TestRouterRejectsUnknownExtension(t *testing.T) {
	router := NewRouter(nil, nil, nil, nil)
	_, err := router.Analyze(context.Background(), &domain.Document{Filename: "a.docx"}, nil)
	if !domain.IsKind(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}
