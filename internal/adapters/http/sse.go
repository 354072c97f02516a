package httpadapter

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
	"github.com/kirillkom/document-chat-assistant/internal/core/ports"
)

const threadIDHeader = "X-Thread-Id"

type streamFrame struct {
	Type          string                   `json:"type"`
	Content       string                   `json:"content,omitempty"`
	ThreadID      string                   `json:"threadId,omitempty"`
	Citations     []domain.Citation        `json:"citations,omitempty"`
	SearchResults []domain.WebSearchResult `json:"searchResults,omitempty"`
	Error         string                   `json:"error,omitempty"`
}

// streamAnswer relays tokens as server-sent events. When the client goes
// away the stream is detached and finishes without a reader.
func (rt *Router) streamAnswer(w http.ResponseWriter, r *http.Request, stream ports.AnswerStream) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		stream.Detach()
		rt.writeError(w, r, fmt.Errorf("streaming is not supported by response writer"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(threadIDHeader, stream.ThreadID())
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	tokens := stream.Tokens()
	for {
		select {
		case <-r.Context().Done():
			stream.Detach()
			rt.logger.Info("client_detached",
				"request_id", requestIDFromContext(r.Context()),
				"thread_id", stream.ThreadID(),
			)
			return
		case token, open := <-tokens:
			if !open {
				rt.finishStream(w, flusher, stream)
				return
			}
			if err := writeFrame(w, streamFrame{Type: "token", Content: token}); err != nil {
				stream.Detach()
				return
			}
			flusher.Flush()
		}
	}
}

func (rt *Router) finishStream(w io.Writer, flusher http.Flusher, stream ports.AnswerStream) {
	frame := streamFrame{
		Type:          "done",
		ThreadID:      stream.ThreadID(),
		Citations:     stream.Citations(),
		SearchResults: stream.SearchResults(),
	}
	if _, err := stream.Wait(); err != nil {
		frame = streamFrame{
			Type:     "error",
			ThreadID: stream.ThreadID(),
			Error:    domain.UserMessage(err, "the assistant could not complete the answer"),
		}
	}
	if err := writeFrame(w, frame); err != nil {
		return
	}
	_, _ = io.WriteString(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func writeFrame(w io.Writer, frame streamFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}
