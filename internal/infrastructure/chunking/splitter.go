package chunking

import (
	"fmt"
	"unicode/utf8"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Chunk walks text in runes producing chunks of targetSize runes, each chunk
// after the first starting overlap runes before the previous chunk's end.
// The final chunk may be shorter. Whitespace is kept as is.
func Chunk(text string, targetSize, overlap int) ([]domain.DocumentChunk, error) {
	if text == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk", fmt.Errorf("text is empty"))
	}
	if !utf8.ValidString(text) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk", fmt.Errorf("text is not valid UTF-8"))
	}
	if targetSize <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk", fmt.Errorf("target size %d must be positive", targetSize))
	}
	if overlap < 0 || overlap >= targetSize {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk", fmt.Errorf("overlap %d must be in [0, %d)", overlap, targetSize))
	}

	runes := []rune(text)
	step := targetSize - overlap

	out := make([]domain.DocumentChunk, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + targetSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, domain.DocumentChunk{
			Content:       string(runes[start:end]),
			StartOffset:   start,
			EndOffset:     end,
			SequenceIndex: len(out),
		})
		if end == len(runes) {
			break
		}
	}
	return out, nil
}

type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 5
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(text string) ([]domain.DocumentChunk, error) {
	return Chunk(text, s.ChunkSize, s.Overlap)
}
