package bing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
	"github.com/kirillkom/document-chat-assistant/internal/infrastructure/resilience"
)

const (
	DefaultEndpoint = "https://api.bing.microsoft.com"
	DefaultCount    = 10
)

type Config struct {
	Endpoint string
	APIKey   string
	Market   string
	Count    int
}

// Client calls the Bing Web Search v7 API.
type Client struct {
	endpoint   string
	apiKey     string
	market     string
	count      int
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, domain.WrapError(domain.ErrConfiguration, "bing search", fmt.Errorf("api key is required"))
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	count := cfg.Count
	if count <= 0 {
		count = DefaultCount
	}
	return &Client{
		endpoint:   endpoint,
		apiKey:     cfg.APIKey,
		market:     strings.TrimSpace(cfg.Market),
		count:      count,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		executor:   executor,
	}, nil
}

func (c *Client) SearchWeb(ctx context.Context, query string) (domain.WebSearchResponse, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(c.count))
	if c.market != "" {
		params.Set("mkt", c.market)
	}
	target := c.endpoint + "/v7.0/search?" + params.Encode()

	var out domain.WebSearchResponse
	err := c.executor.Execute(ctx, "bing.search", func(callCtx context.Context) error {
		req, err := http.NewRequestWithContext(callCtx, http.MethodGet, target, nil)
		if err != nil {
			return fmt.Errorf("create search request: %w", err)
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("bing search request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return resilience.NewHTTPStatusError("bing", "search", resp)
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode search response: %w", err)
		}
		return nil
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return domain.WebSearchResponse{}, domain.WrapError(domain.ErrUpstreamUnavailable, "bing search", err)
	}
	return out, nil
}
