package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
	"github.com/kirillkom/document-chat-assistant/internal/core/ports"
	"github.com/kirillkom/document-chat-assistant/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	embedModel string
	httpClient *http.Client
	// Streams run as long as the model generates; no client timeout.
	streamClient *http.Client
	executor     *resilience.Executor
}

func New(baseURL, embedModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		embedModel:   embedModel,
		httpClient:   &http.Client{Timeout: 120 * time.Second},
		streamClient: &http.Client{},
		executor:     executor,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := e.client.executor.Execute(ctx, "ollama.embed", func(callCtx context.Context) error {
		return e.client.postJSON(callCtx, "/api/embed", request, &response, "embed")
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, domain.WrapError(domain.ErrUpstreamUnavailable, "ollama embed", resilience.WrapTemporary("ollama embed", err, nil))
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: expected %d vectors, got %d", len(texts), len(response.Embeddings))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// Completer streams /api/chat responses.
type Completer struct {
	client *Client
}

func NewCompleter(client *Client) *Completer {
	return &Completer{client: client}
}

func (c *Completer) StreamCompletion(ctx context.Context, messages []domain.ChatMessage, model string) (ports.TokenStream, error) {
	type chatMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	payload := struct {
		Model    string        `json:"model"`
		Messages []chatMessage `json:"messages"`
		Stream   bool          `json:"stream"`
	}{
		Model:  model,
		Stream: true,
	}
	for _, msg := range messages {
		payload.Messages = append(payload.Messages, chatMessage{Role: string(msg.Role), Content: msg.Content})
	}

	resp, err := c.client.openStream(ctx, "/api/chat", payload, "chat")
	if err != nil {
		return nil, domain.WrapError(domain.ErrUpstreamUnavailable, "ollama chat", err)
	}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &chatStream{body: resp.Body, scanner: scanner}, nil
}

// chatStream decodes newline delimited chat chunks.
type chatStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	current string
	err     error
	done    bool
}

func (s *chatStream) Next() bool {
	for !s.done && s.err == nil && s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		var chunk struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			Done  bool   `json:"done"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			s.err = fmt.Errorf("decode chat chunk: %w", err)
			return false
		}
		if chunk.Error != "" {
			s.err = domain.WrapError(domain.ErrUpstreamUnavailable, "ollama chat stream", fmt.Errorf("%s", chunk.Error))
			return false
		}
		if chunk.Done {
			s.done = true
		}
		if chunk.Message.Content != "" {
			s.current = chunk.Message.Content
			return true
		}
	}
	if s.err == nil && !s.done {
		if err := s.scanner.Err(); err != nil {
			s.err = domain.WrapError(domain.ErrUpstreamUnavailable, "ollama chat stream", err)
		} else {
			s.err = domain.WrapError(domain.ErrUpstreamUnavailable, "ollama chat stream", io.ErrUnexpectedEOF)
		}
	}
	return false
}

func (s *chatStream) Token() string {
	return s.current
}

func (s *chatStream) Err() error {
	return s.err
}

func (s *chatStream) Close() error {
	return s.body.Close()
}
