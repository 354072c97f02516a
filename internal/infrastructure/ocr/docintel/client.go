package docintel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
	"github.com/kirillkom/document-chat-assistant/internal/infrastructure/resilience"
)

const (
	DefaultAPIVersion   = "2023-07-31"
	DefaultModel        = "prebuilt-document"
	DefaultPollInterval = time.Second
)

// User-facing failure messages by upstream status.
const (
	MessageUnauthorized = "authentication failed: check the Document Intelligence credentials"
	MessageTooLarge     = "the file is too large"
	MessageUnsupported  = "unsupported file format"
	MessageRateLimited  = "rate limit reached, wait a moment and retry"
	MessageServerError  = "the analysis service failed, wait a moment and retry"
	MessageGeneric      = "an error occurred while processing the file"
)

type Config struct {
	Endpoint     string
	APIKey       string
	APIVersion   string
	Model        string
	PollInterval time.Duration
}

// Client runs Azure Document Intelligence layout analysis over REST.
type Client struct {
	endpoint     string
	apiKey       string
	apiVersion   string
	model        string
	pollInterval time.Duration
	httpClient   *http.Client
	executor     *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, domain.WrapError(domain.ErrConfiguration, "document intelligence", fmt.Errorf("endpoint and key are required"))
	}
	c := &Client{
		endpoint:     strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:       cfg.APIKey,
		apiVersion:   cfg.APIVersion,
		model:        cfg.Model,
		pollInterval: cfg.PollInterval,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		executor:     executor,
	}
	if c.apiVersion == "" {
		c.apiVersion = DefaultAPIVersion
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	return c, nil
}

type analyzeResult struct {
	Status string `json:"status"`
	Error  *struct {
		Code       string `json:"code"`
		Message    string `json:"message"`
		InnerError *struct {
			Message string `json:"message"`
		} `json:"innererror"`
	} `json:"error"`
	AnalyzeResult struct {
		Paragraphs []struct {
			Content string `json:"content"`
		} `json:"paragraphs"`
	} `json:"analyzeResult"`
}

// Analyze submits content and polls the operation until it finishes.
// Paragraph contents are returned in document order.
func (c *Client) Analyze(ctx context.Context, doc *domain.Document, content []byte) ([]string, error) {
	if len(content) >= domain.MaxDocumentSize {
		return nil, &domain.DetailedError{Kind: domain.ErrDocumentTooLarge, Message: MessageTooLarge}
	}

	operationURL, err := c.submit(ctx, doc, content)
	if err != nil {
		return nil, mapError(err)
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		result, err := c.poll(ctx, operationURL)
		if err != nil {
			return nil, mapError(err)
		}
		switch strings.ToLower(result.Status) {
		case "succeeded":
			paragraphs := make([]string, 0, len(result.AnalyzeResult.Paragraphs))
			for _, p := range result.AnalyzeResult.Paragraphs {
				paragraphs = append(paragraphs, p.Content)
			}
			return paragraphs, nil
		case "failed":
			message := MessageGeneric
			if result.Error != nil {
				message = "document intelligence error: " + result.Error.Message
				if result.Error.InnerError != nil && result.Error.InnerError.Message != "" {
					message = result.Error.InnerError.Message
				}
			}
			return nil, &domain.DetailedError{Kind: domain.ErrUpstreamUnavailable, Message: message}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) submit(ctx context.Context, doc *domain.Document, content []byte) (string, error) {
	target := fmt.Sprintf("%s/formrecognizer/documentModels/%s:analyze?api-version=%s", c.endpoint, c.model, c.apiVersion)
	contentType := "application/octet-stream"
	if doc != nil && doc.MimeType != "" {
		contentType = doc.MimeType
	}

	return resilience.Do(ctx, c.executor, "docintel.analyze", func(callCtx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, target, bytes.NewReader(content))
		if err != nil {
			return "", fmt.Errorf("create analyze request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("document intelligence analyze request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return "", resilience.NewHTTPStatusError("document intelligence", "analyze", resp)
		}
		location := resp.Header.Get("Operation-Location")
		if location == "" {
			return "", fmt.Errorf("document intelligence analyze: missing Operation-Location header")
		}
		return location, nil
	}, resilience.ClassifyHTTPError)
}

func (c *Client) poll(ctx context.Context, operationURL string) (*analyzeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, operationURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create poll request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("document intelligence poll request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, resilience.NewHTTPStatusError("document intelligence", "poll", resp)
	}
	var result analyzeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode poll response: %w", err)
	}
	return &result, nil
}

func mapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var statusErr *resilience.HTTPStatusError
	if !errors.As(err, &statusErr) {
		return &domain.DetailedError{Kind: domain.ErrUpstreamUnavailable, Message: MessageGeneric, Err: err}
	}
	switch {
	case statusErr.StatusCode == http.StatusUnauthorized:
		return &domain.DetailedError{Kind: domain.ErrConfiguration, Message: MessageUnauthorized, Err: err}
	case statusErr.StatusCode == http.StatusRequestEntityTooLarge:
		return &domain.DetailedError{Kind: domain.ErrDocumentTooLarge, Message: MessageTooLarge, Err: err}
	case statusErr.StatusCode == http.StatusUnsupportedMediaType:
		return &domain.DetailedError{Kind: domain.ErrUnsupportedFormat, Message: MessageUnsupported, Err: err}
	case statusErr.StatusCode == http.StatusTooManyRequests:
		return &domain.DetailedError{Kind: domain.ErrRateLimited, Message: MessageRateLimited, Err: err}
	case statusErr.StatusCode >= 500:
		return &domain.DetailedError{Kind: domain.ErrUpstreamUnavailable, Message: MessageServerError, Err: err}
	default:
		return &domain.DetailedError{Kind: domain.ErrUpstreamUnavailable, Message: "document intelligence error: " + statusErr.Status, Err: err}
	}
}
