package domain

import (
	"slices"
	"strings"
	"time"
)

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

type Document struct {
	ID             string         `json:"id"`
	Filename       string         `json:"filename"`
	MimeType       string         `json:"mime_type"`
	StoragePath    string         `json:"storage_path"`
	DepartmentID   string         `json:"department_id,omitempty"`
	DepartmentName string         `json:"department_name,omitempty"`
	UploadedBy     string         `json:"uploaded_by,omitempty"`
	SizeBytes      int64          `json:"size_bytes"`
	ChunkCount     int            `json:"chunk_count"`
	Status         DocumentStatus `json:"status"`
	Error          string         `json:"error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// UploadRequest carries an admin upload before it is stored.
type UploadRequest struct {
	Filename     string
	MimeType     string
	SizeBytes    int64
	DepartmentID string
	UploadedBy   string
}

// DocumentChunk is a contiguous slice of extracted text. Offsets count runes.
type DocumentChunk struct {
	Content       string `json:"content"`
	StartOffset   int    `json:"start_offset"`
	EndOffset     int    `json:"end_offset"`
	SequenceIndex int    `json:"sequence_index"`
}

// ChatTypeDocument partitions passages used for document search.
const ChatTypeDocument = "doc"

// IndexedPassage is a chunk as written to the vector index.
type IndexedPassage struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"owner_id"`
	Content         string    `json:"content"`
	SourceFileLabel string    `json:"source_file_label"`
	ChatType        string    `json:"chat_type"`
	DepartmentLabel string    `json:"department_label,omitempty"`
	SequenceIndex   int       `json:"sequence_index"`
	Embedding       []float32 `json:"-"`
}

// MaxDocumentSize is the exclusive upload size limit in bytes.
const MaxDocumentSize = 20_000_000

// OCRExtensions are analyzed by the external OCR service.
var OCRExtensions = []string{".pdf", ".jpg", ".jpeg", ".png", ".bmp", ".tiff", ".tif", ".heic", ".heif", ".webp", ".gif"}

// LocalExtensions are extracted in process.
var LocalExtensions = []string{".txt", ".md", ".csv", ".xlsx"}

// DocumentExtension returns the lower-cased extension of filename.
func DocumentExtension(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(filename[idx:])
}

func SupportedExtension(filename string) bool {
	ext := DocumentExtension(filename)
	return slices.Contains(OCRExtensions, ext) || slices.Contains(LocalExtensions, ext)
}
