package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
)

func TestEnsureIndexRunsOncePerVectorSize(t *testing.T) {
	var ensureCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/docs" {
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusCreated)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "docs", nil)
	for i := 0; i < 2; i++ {
		if err := client.EnsureIndex(context.Background(), 2); err != nil {
			t.Fatalf("EnsureIndex() error = %v", err)
		}
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected ensure collection called once, got %d", got)
	}
}

func TestEnsureIndexAcceptsExistingCollection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "already exists", http.StatusConflict)
	}))
	defer server.Close()

	if err := New(server.URL, "docs", nil).EnsureIndex(context.Background(), 3); err != nil {
		t.Fatalf("EnsureIndex() error = %v", err)
	}
}

func TestEnsureIndexIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	err := New(server.URL, "docs", nil).EnsureIndex(context.Background(), 2)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected error to include body, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error for 500, got %v", err)
	}
}

func TestWriteStoresFilterablePayload(t *testing.T) {
	var body struct {
		Points []struct {
			ID      string         `json:"id"`
			Payload map[string]any `json:"payload"`
		} `json:"points"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/collections/docs/points" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode upsert: %v", err)
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	err := New(server.URL, "docs", nil).Write(context.Background(), []domain.IndexedPassage{{
		ID:              "doc-1-0",
		OwnerID:         "doc-1",
		Content:         "vacation policy",
		SourceFileLabel: "hr.pdf",
		ChatType:        domain.ChatTypeDocument,
		DepartmentLabel: "HR",
		Embedding:       []float32{0.1, 0.2},
	}})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if len(body.Points) != 1 {
		t.Fatalf("expected one point, got %d", len(body.Points))
	}
	point := body.Points[0]
	if point.ID != pointID("doc-1-0") {
		t.Fatalf("unexpected point id %q", point.ID)
	}
	if point.Payload["chatType"] != "doc" || point.Payload["deptName"] != "HR" || point.Payload["sourcefile"] != "hr.pdf" {
		t.Fatalf("unexpected payload %v", point.Payload)
	}
}

func TestQueryTranslatesFilterAndSortsByScore(t *testing.T) {
	var request map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Errorf("decode search: %v", err)
		}
		_, _ = w.Write([]byte(`{"result":[
			{"score":0.4,"payload":{"passage_id":"p2","owner_id":"d","content":"low","sourcefile":"b.txt","chatType":"doc"}},
			{"score":0.9,"payload":{"passage_id":"p1","owner_id":"d","content":"high","sourcefile":"a.txt","chatType":"doc","deptName":"HR"}}
		]}`))
	}))
	defer server.Close()

	filter := domain.NewDocumentFilter().And(domain.FieldDepartment, "HR")
	results, err := New(server.URL, "docs", nil).Query(context.Background(), []float32{1, 0}, 10, filter)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(results) != 2 || results[0].ID != "p1" || results[1].ID != "p2" {
		t.Fatalf("expected results sorted by score, got %+v", results)
	}
	if results[0].SourceFileLabel != "a.txt" || results[0].DepartmentLabel != "HR" {
		t.Fatalf("unexpected mapping %+v", results[0])
	}

	must := request["filter"].(map[string]any)["must"].([]any)
	if len(must) != 2 {
		t.Fatalf("expected two must clauses, got %v", must)
	}
	second := must[1].(map[string]any)
	if second["key"] != "deptName" || second["match"].(map[string]any)["value"] != "HR" {
		t.Fatalf("unexpected department clause %v", second)
	}
	if request["limit"].(float64) != 10 {
		t.Fatalf("expected limit 10, got %v", request["limit"])
	}
}
