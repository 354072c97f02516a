package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
	"github.com/kirillkom/document-chat-assistant/internal/infrastructure/resilience"
)

// Payload keys. Filterable fields reuse the index field names.
const (
	payloadPassageID = "passage_id"
	payloadOwnerID   = "owner_id"
	payloadContent   = "content"
	payloadSource    = "sourcefile"
	payloadSequence  = "sequence_index"
)

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

func (c *Client) EnsureIndex(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return domain.WrapError(domain.ErrInvalidInput, "qdrant ensure collection", fmt.Errorf("dimensions must be positive"))
	}
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == dimensions {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     dimensions,
			"distance": "Cosine",
		},
	}
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	err := c.executor.Execute(ctx, "qdrant.ensure_collection", func(callCtx context.Context) error {
		// 409 when the collection already exists.
		_, err := c.do(callCtx, http.MethodPut, url, reqBody, nil, "ensure collection", http.StatusConflict)
		return err
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return resilience.WrapTemporary("qdrant ensure collection", err, nil)
	}
	c.markCollectionEnsured(dimensions)
	return nil
}

func (c *Client) Write(ctx context.Context, passages []domain.IndexedPassage) error {
	if len(passages) == 0 {
		return nil
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(passages))
	for _, p := range passages {
		if len(p.Embedding) == 0 {
			return domain.WrapError(domain.ErrInvalidInput, "qdrant upsert", fmt.Errorf("passage %s has no embedding", p.ID))
		}
		payload := map[string]any{
			payloadPassageID:       p.ID,
			payloadOwnerID:         p.OwnerID,
			payloadContent:         p.Content,
			payloadSource:          p.SourceFileLabel,
			payloadSequence:        p.SequenceIndex,
			domain.FieldChatType:   p.ChatType,
			domain.FieldDepartment: p.DepartmentLabel,
		}
		points = append(points, point{
			ID:      pointID(p.ID),
			Vector:  p.Embedding,
			Payload: payload,
		})
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	err := c.executor.Execute(ctx, "qdrant.upsert", func(callCtx context.Context) error {
		_, err := c.do(callCtx, http.MethodPut, url, map[string]any{"points": points}, nil, "upsert")
		return err
	}, resilience.ClassifyHTTPError)
	return resilience.WrapTemporary("qdrant upsert", err, nil)
}

func (c *Client) Query(ctx context.Context, vector []float32, k int, filter domain.FilterExpression) ([]domain.RetrievedResult, error) {
	reqBody := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if must := mustClauses(filter); len(must) > 0 {
		reqBody["filter"] = map[string]any{"must": must}
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	err := c.executor.Execute(ctx, "qdrant.search", func(callCtx context.Context) error {
		_, err := c.do(callCtx, http.MethodPost, url, reqBody, &searchResp, "search")
		return err
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporary("qdrant search", err, nil)
	}

	out := make([]domain.RetrievedResult, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.RetrievedResult{
			ID:              getStringPayload(r.Payload, payloadPassageID),
			OwnerID:         getStringPayload(r.Payload, payloadOwnerID),
			Content:         getStringPayload(r.Payload, payloadContent),
			SourceFileLabel: getStringPayload(r.Payload, payloadSource),
			ChatType:        getStringPayload(r.Payload, domain.FieldChatType),
			DepartmentLabel: getStringPayload(r.Payload, domain.FieldDepartment),
			Score:           r.Score,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func mustClauses(filter domain.FilterExpression) []map[string]any {
	must := make([]map[string]any, 0, len(filter.Clauses))
	for _, clause := range filter.Clauses {
		must = append(must, map[string]any{
			"key":   clause.Field,
			"match": map[string]any{"value": clause.Value},
		})
	}
	return must
}

// do sends a JSON request. Status codes in accept are treated as success.
func (c *Client) do(ctx context.Context, method, url string, payload any, out any, operation string, accept ...int) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal %s body: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	for _, code := range accept {
		if resp.StatusCode == code {
			return resp.StatusCode, nil
		}
	}
	if resp.StatusCode >= 300 {
		return resp.StatusCode, resilience.NewHTTPStatusError("qdrant", operation, resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s response: %w", operation, err)
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

// pointID maps a passage id onto the UUID space qdrant accepts.
func pointID(passageID string) string {
	if _, err := uuid.Parse(passageID); err == nil {
		return passageID
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(passageID)).String()
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
