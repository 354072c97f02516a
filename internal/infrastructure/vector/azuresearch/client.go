package azuresearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
	"github.com/kirillkom/document-chat-assistant/internal/infrastructure/resilience"
)

const DefaultAPIVersion = "2023-11-01"

const (
	vectorField     = "embedding"
	vectorProfile   = "vector-profile"
	vectorAlgorithm = "hnsw-config"
)

type Config struct {
	Endpoint   string
	APIKey     string
	IndexName  string
	APIVersion string
}

// Client talks to the Azure AI Search REST API.
type Client struct {
	endpoint   string
	apiKey     string
	index      string
	apiVersion string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu   sync.Mutex
	ensuredDim int
}

func New(cfg Config, executor *resilience.Executor) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" || strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.IndexName) == "" {
		return nil, domain.WrapError(domain.ErrConfiguration, "azure search", fmt.Errorf("endpoint, api key and index name are required"))
	}
	apiVersion := strings.TrimSpace(cfg.APIVersion)
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	return &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		index:      cfg.IndexName,
		apiVersion: apiVersion,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		executor:   executor,
	}, nil
}

// indexDocument is the stored shape of a passage.
type indexDocument struct {
	Action       string    `json:"@search.action,omitempty"`
	ID           string    `json:"id"`
	PageContent  string    `json:"pageContent"`
	ChatThreadID string    `json:"chatThreadId"`
	Metadata     string    `json:"metadata"`
	ChatType     string    `json:"chatType"`
	DeptName     string    `json:"deptName"`
	Embedding    []float32 `json:"embedding,omitempty"`
}

func (c *Client) EnsureIndex(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return domain.WrapError(domain.ErrInvalidInput, "azure search ensure index", fmt.Errorf("dimensions must be positive"))
	}
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	if c.ensuredDim == dimensions {
		return nil
	}

	indexURL := c.url("/indexes/" + url.PathEscape(c.index))
	err := c.executor.Execute(ctx, "azure_search.ensure_index", func(callCtx context.Context) error {
		status, err := c.do(callCtx, http.MethodGet, indexURL, nil, nil, "get index", http.StatusNotFound)
		if err != nil {
			return err
		}
		if status != http.StatusNotFound {
			return nil
		}
		_, err = c.do(callCtx, http.MethodPut, indexURL, indexDefinition(c.index, dimensions), nil, "create index")
		return err
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return resilience.WrapTemporary("azure search ensure index", err, nil)
	}
	c.ensuredDim = dimensions
	return nil
}

func indexDefinition(name string, dimensions int) map[string]any {
	field := func(name, typ string, key, filterable bool) map[string]any {
		return map[string]any{
			"name":       name,
			"type":       typ,
			"key":        key,
			"filterable": filterable,
			"searchable": typ == "Edm.String" && !key && !filterable,
		}
	}
	return map[string]any{
		"name": name,
		"fields": []map[string]any{
			field("id", "Edm.String", true, true),
			field("pageContent", "Edm.String", false, false),
			field("chatThreadId", "Edm.String", false, true),
			field("metadata", "Edm.String", false, false),
			field(domain.FieldChatType, "Edm.String", false, true),
			field(domain.FieldDepartment, "Edm.String", false, true),
			{
				"name":                vectorField,
				"type":                "Collection(Edm.Single)",
				"searchable":          true,
				"dimensions":          dimensions,
				"vectorSearchProfile": vectorProfile,
			},
		},
		"vectorSearch": map[string]any{
			"algorithms": []map[string]any{{"name": vectorAlgorithm, "kind": "hnsw"}},
			"profiles":   []map[string]any{{"name": vectorProfile, "algorithm": vectorAlgorithm}},
		},
	}
}

func (c *Client) Write(ctx context.Context, passages []domain.IndexedPassage) error {
	if len(passages) == 0 {
		return nil
	}
	docs := make([]indexDocument, 0, len(passages))
	for _, p := range passages {
		docs = append(docs, indexDocument{
			Action:       "upload",
			ID:           p.ID,
			PageContent:  p.Content,
			ChatThreadID: p.OwnerID,
			Metadata:     p.SourceFileLabel,
			ChatType:     p.ChatType,
			DeptName:     p.DepartmentLabel,
			Embedding:    p.Embedding,
		})
	}

	var response struct {
		Value []struct {
			Key          string `json:"key"`
			Status       bool   `json:"status"`
			ErrorMessage string `json:"errorMessage"`
		} `json:"value"`
	}
	docsURL := c.url("/indexes/" + url.PathEscape(c.index) + "/docs/index")
	err := c.executor.Execute(ctx, "azure_search.index", func(callCtx context.Context) error {
		_, err := c.do(callCtx, http.MethodPost, docsURL, map[string]any{"value": docs}, &response, "index documents")
		return err
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return resilience.WrapTemporary("azure search index documents", err, nil)
	}
	for _, item := range response.Value {
		if !item.Status {
			return fmt.Errorf("azure search index documents: key %s: %s", item.Key, item.ErrorMessage)
		}
	}
	return nil
}

func (c *Client) Query(ctx context.Context, vector []float32, k int, filter domain.FilterExpression) ([]domain.RetrievedResult, error) {
	request := map[string]any{
		"top":    k,
		"select": "id,pageContent,chatThreadId,metadata,chatType,deptName",
		"vectorQueries": []map[string]any{{
			"kind":   "vector",
			"vector": vector,
			"fields": vectorField,
			"k":      k,
		}},
	}
	if expr := filter.OData(); expr != "" {
		request["filter"] = expr
	}

	var response struct {
		Value []struct {
			indexDocument
			Score float64 `json:"@search.score"`
		} `json:"value"`
	}
	searchURL := c.url("/indexes/" + url.PathEscape(c.index) + "/docs/search")
	err := c.executor.Execute(ctx, "azure_search.search", func(callCtx context.Context) error {
		_, err := c.do(callCtx, http.MethodPost, searchURL, request, &response, "search")
		return err
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporary("azure search query", err, nil)
	}

	out := make([]domain.RetrievedResult, 0, len(response.Value))
	for _, item := range response.Value {
		out = append(out, domain.RetrievedResult{
			ID:              item.ID,
			OwnerID:         item.ChatThreadID,
			Content:         item.PageContent,
			SourceFileLabel: item.Metadata,
			ChatType:        item.ChatType,
			DepartmentLabel: item.DeptName,
			Score:           item.Score,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func (c *Client) url(path string) string {
	return c.endpoint + path + "?api-version=" + url.QueryEscape(c.apiVersion)
}

func (c *Client) do(ctx context.Context, method, target string, payload any, out any, operation string, accept ...int) (int, error) {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("marshal %s body: %w", operation, err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return 0, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("azure search %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	for _, code := range accept {
		if resp.StatusCode == code {
			return resp.StatusCode, nil
		}
	}
	if resp.StatusCode >= 300 {
		return resp.StatusCode, resilience.NewHTTPStatusError("azure search", operation, resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s response: %w", operation, err)
		}
	}
	return resp.StatusCode, nil
}
