package azureopenai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
	"github.com/kirillkom/document-chat-assistant/internal/core/ports"
)

type Config struct {
	APIKey string
	// Endpoint selects Azure OpenAI; model names are deployment names then.
	Endpoint   string
	APIVersion string
	// BaseURL targets any OpenAI compatible API when Endpoint is empty.
	BaseURL        string
	EmbeddingModel string
	HTTPClient     *http.Client
}

type Client struct {
	api            openai.Client
	embeddingModel string
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, domain.WrapError(domain.ErrConfiguration, "openai client", errors.New("api key is not set"))
	}

	// Retries stay with the caller.
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.Endpoint != "" {
		apiVersion := cfg.APIVersion
		if apiVersion == "" {
			apiVersion = "2024-06-01"
		}
		opts = append(opts,
			azure.WithEndpoint(strings.TrimRight(cfg.Endpoint, "/"), apiVersion),
			azure.WithAPIKey(cfg.APIKey),
		)
	} else {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
		if cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		}
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &Client{
		api:            openai.NewClient(opts...),
		embeddingModel: cfg.EmbeddingModel,
	}, nil
}

// StreamCompletion opens a streaming chat completion. Request failures are
// returned here, before any token is produced.
func (c *Client) StreamCompletion(ctx context.Context, messages []domain.ChatMessage, model string) (ports.TokenStream, error) {
	if strings.TrimSpace(model) == "" {
		return nil, domain.WrapError(domain.ErrConfiguration, "chat completion", errors.New("model is not set"))
	}

	stream := c.api.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Messages: toMessageParams(messages),
		Model:    openai.ChatModel(model),
	})
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, mapAPIError("chat completion", err)
	}
	return &tokenStream{stream: stream}, nil
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if c.embeddingModel == "" {
		return nil, domain.WrapError(domain.ErrConfiguration, "embed", errors.New("embedding model is not set"))
	}

	resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, mapAPIError("embed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embed: expected %d vectors, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float32, len(texts))
	for _, item := range resp.Data {
		idx := int(item.Index)
		if idx < 0 || idx >= len(out) {
			return nil, fmt.Errorf("embed: vector index %d out of range", idx)
		}
		vector := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			vector[i] = float32(v)
		}
		out[idx] = vector
	}
	return out, nil
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

func toMessageParams(messages []domain.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case domain.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case domain.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func mapAPIError(operation string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return domain.WrapError(domain.ErrConfiguration, operation, err)
		case http.StatusTooManyRequests:
			return domain.WrapError(domain.ErrRateLimited, operation, err)
		}
	}
	return domain.WrapError(domain.ErrUpstreamUnavailable, operation, err)
}

type chunkStream interface {
	Next() bool
	Current() openai.ChatCompletionChunk
	Err() error
	Close() error
}

type tokenStream struct {
	stream  chunkStream
	current string
}

func (s *tokenStream) Next() bool {
	for s.stream.Next() {
		chunk := s.stream.Current()
		// Azure emits content filter chunks without choices.
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			s.current = delta
			return true
		}
	}
	return false
}

func (s *tokenStream) Token() string {
	return s.current
}

func (s *tokenStream) Err() error {
	if err := s.stream.Err(); err != nil {
		return mapAPIError("chat completion stream", err)
	}
	return nil
}

func (s *tokenStream) Close() error {
	return s.stream.Close()
}
