package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
)

func TestVectorStoreUpsertRequestShape(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPut {
			t.Fatalf("method: want=%s got=%s", http.MethodPut, r.Method)
		}
		if r.URL.Path != "/collections/task_manager/points" {
			t.Fatalf("path: want=%q got=%q", "/collections/task_manager/points", r.URL.Path)
		}
		if r.URL.RawQuery != "wait=true" {
			t.Fatalf("query: want=%q got=%q", "wait=true", r.URL.RawQuery)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, map[string]any{"status": "acknowledged"}), nil
	})

	err := s.Upsert(context.Background(), []Point{
		{ID: 42, Vector: []float32{1, 2, 3}, Payload: map[string]any{"entity_type": "task", "point_id": "task-abc"}},
		{ID: 7, Vector: []float32{4, 5, 6}, Payload: map[string]any{"entity_type": "user"}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	pointsRaw, ok := captured["points"].([]any)
	if !ok {
		t.Fatalf("points type: got=%T", captured["points"])
	}
	if len(pointsRaw) != 2 {
		t.Fatalf("points length: want=2 got=%d", len(pointsRaw))
	}

	first, ok := pointsRaw[0].(map[string]any)
	if !ok {
		t.Fatalf("point[0] type: got=%T", pointsRaw[0])
	}
	if first["id"] != float64(42) {
		t.Fatalf("point id: want=42 got=%v", first["id"])
	}
	payload, ok := first["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload type: got=%T", first["payload"])
	}
	if payload["entity_type"] != "task" {
		t.Fatalf("payload entity_type: want=%q got=%v", "task", payload["entity_type"])
	}
	if payload["point_id"] != "task-abc" {
		t.Fatalf("payload point_id: want=%q got=%v", "task-abc", payload["point_id"])
	}
}

func TestVectorStoreUpsertRejectsWrongVectorSize(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		return nil, nil
	})

	err := s.Upsert(context.Background(), []Point{
		{ID: 1, Vector: []float32{1, 2}},
	})
	if err == nil {
		t.Fatalf("Upsert: expected error, got nil")
	}
	var oe *OperationError
	if !errors.As(err, &oe) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if oe.Code != OperationErrorValidationFailed {
		t.Fatalf("error code: want=%q got=%q", OperationErrorValidationFailed, oe.Code)
	}
}

func TestVectorStoreSearchFilterShapeAndOrdering(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPost {
			t.Fatalf("method: want=%s got=%s", http.MethodPost, r.Method)
		}
		if r.URL.Path != "/collections/task_manager/points/search" {
			t.Fatalf("path: want=%q got=%q", "/collections/task_manager/points/search", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, []map[string]any{
			{"id": 11, "score": 0.91, "payload": map[string]any{"entity_type": "task"}},
			{"id": 12, "score": 0.40, "payload": map[string]any{"entity_type": "task"}},
		}), nil
	})

	hits, err := s.Search(context.Background(), []float32{1, 2, 3}, 2, &Filter{
		Must:   []Match{{Field: "entity_type", Value: "task"}},
		Should: []Match{{Field: "relationships.team_id", Value: "team-1"}, {Field: "relationships.project_id", Value: "proj-1"}},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits length: want=2 got=%d", len(hits))
	}
	if hits[0].ID != 11 || hits[1].ID != 12 {
		t.Fatalf("hit ordering mismatch: got=%v,%v", hits[0].ID, hits[1].ID)
	}
	if !(hits[0].Score > hits[1].Score) {
		t.Fatalf("expected descending scores, got=%v,%v", hits[0].Score, hits[1].Score)
	}

	if captured["with_payload"] != true {
		t.Fatalf("with_payload: want=true got=%v", captured["with_payload"])
	}
	filter, ok := captured["filter"].(map[string]any)
	if !ok {
		t.Fatalf("filter type: got=%T", captured["filter"])
	}
	must, ok := filter["must"].([]any)
	if !ok || len(must) != 1 {
		t.Fatalf("must clause: got=%v", filter["must"])
	}
	cond := findConditionByKey(must, "entity_type")
	if cond == nil {
		t.Fatalf("missing entity_type condition in must")
	}
	match, ok := cond["match"].(map[string]any)
	if !ok || match["value"] != "task" {
		t.Fatalf("entity_type match: got=%v", cond["match"])
	}
	should, ok := filter["should"].([]any)
	if !ok || len(should) != 2 {
		t.Fatalf("should clause: got=%v", filter["should"])
	}
	if findConditionByKey(should, "relationships.team_id") == nil {
		t.Fatalf("missing relationships.team_id condition in should")
	}
}

func TestVectorStoreSearchRejectsWrongVectorSize(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		return nil, nil
	})

	_, err := s.Search(context.Background(), []float32{1}, 5, nil)
	if err == nil {
		t.Fatalf("Search: expected error, got nil")
	}
	var oe *OperationError
	if !errors.As(err, &oe) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if oe.Code != OperationErrorValidationFailed {
		t.Fatalf("error code: want=%q got=%q", OperationErrorValidationFailed, oe.Code)
	}
}

func TestVectorStoreScrollRequestShape(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/collections/task_manager/points/scroll" {
			t.Fatalf("path: want=%q got=%q", "/collections/task_manager/points/scroll", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, map[string]any{
			"points": []map[string]any{
				{"id": 3, "payload": map[string]any{"entity_type": "project"}},
			},
			"next_page_offset": nil,
		}), nil
	})

	points, err := s.Scroll(context.Background(), 0, &Filter{
		Must: []Match{{Field: "entity_type", Value: "project"}},
	})
	if err != nil {
		t.Fatalf("Scroll: %v", err)
	}
	if len(points) != 1 || points[0].ID != 3 {
		t.Fatalf("points: got=%v", points)
	}
	if captured["with_vector"] != false {
		t.Fatalf("with_vector: want=false got=%v", captured["with_vector"])
	}
	if captured["limit"] != float64(defaultScrollLimit) {
		t.Fatalf("limit default: want=%d got=%v", defaultScrollLimit, captured["limit"])
	}
}

func TestVectorStoreDeleteShapeAndEmptyNoop(t *testing.T) {
	calls := 0
	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		calls++
		if r.URL.Path != "/collections/task_manager/points/delete" {
			t.Fatalf("path: want=%q got=%q", "/collections/task_manager/points/delete", r.URL.Path)
		}
		if r.URL.RawQuery != "wait=true" {
			t.Fatalf("query: want=%q got=%q", "wait=true", r.URL.RawQuery)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, map[string]any{"status": "acknowledged"}), nil
	})

	if err := s.Delete(context.Background(), nil); err != nil {
		t.Fatalf("Delete empty: %v", err)
	}
	if calls != 0 {
		t.Fatalf("Delete empty should not call qdrant, calls=%d", calls)
	}

	if err := s.Delete(context.Background(), []uint32{9, 10}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	points, ok := captured["points"].([]any)
	if !ok || len(points) != 2 {
		t.Fatalf("points: got=%v", captured["points"])
	}
	if points[0] != float64(9) || points[1] != float64(10) {
		t.Fatalf("point ids: got=%v", points)
	}
}

func TestVectorStoreCreateCollectionBody(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPut {
			t.Fatalf("method: want=%s got=%s", http.MethodPut, r.Method)
		}
		if r.URL.Path != "/collections/task_manager" {
			t.Fatalf("path: want=%q got=%q", "/collections/task_manager", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, true), nil
	})

	if err := s.CreateCollection(context.Background()); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}

	vectors, ok := captured["vectors"].(map[string]any)
	if !ok {
		t.Fatalf("vectors type: got=%T", captured["vectors"])
	}
	if vectors["size"] != float64(3) {
		t.Fatalf("vector size: want=3 got=%v", vectors["size"])
	}
	if vectors["distance"] != "Cosine" {
		t.Fatalf("distance: want=%q got=%v", "Cosine", vectors["distance"])
	}
	hnsw, ok := captured["hnsw_config"].(map[string]any)
	if !ok {
		t.Fatalf("hnsw_config type: got=%T", captured["hnsw_config"])
	}
	if hnsw["m"] != float64(16) || hnsw["ef_construct"] != float64(100) {
		t.Fatalf("hnsw config: got=%v", hnsw)
	}
	optimizers, ok := captured["optimizers_config"].(map[string]any)
	if !ok {
		t.Fatalf("optimizers_config type: got=%T", captured["optimizers_config"])
	}
	if optimizers["indexing_threshold"] != float64(10000) {
		t.Fatalf("indexing_threshold: want=10000 got=%v", optimizers["indexing_threshold"])
	}
}

func TestVectorStoreCreateCollectionToleratesExisting(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		return errorResponse(t, http.StatusConflict, `{"status":{"error":"collection task_manager already exists"}}`), nil
	})

	if err := s.CreateCollection(context.Background()); err != nil {
		t.Fatalf("CreateCollection should tolerate existing collection: %v", err)
	}
}

func TestVectorStoreEnsurePayloadIndices(t *testing.T) {
	var fields []string
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPut {
			t.Fatalf("method: want=%s got=%s", http.MethodPut, r.Method)
		}
		if r.URL.Path != "/collections/task_manager/index" {
			t.Fatalf("path: want=%q got=%q", "/collections/task_manager/index", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		field, _ := body["field_name"].(string)
		fields = append(fields, field)
		if field == "created_at" || field == "updated_at" {
			if body["field_schema"] != "datetime" {
				t.Fatalf("schema for %s: want=datetime got=%v", field, body["field_schema"])
			}
		} else if body["field_schema"] != "keyword" {
			t.Fatalf("schema for %s: want=keyword got=%v", field, body["field_schema"])
		}
		if field == "entity_type" {
			return errorResponse(t, http.StatusBadRequest, `{"status":{"error":"index for field entity_type already exists"}}`), nil
		}
		return okResponse(t, true), nil
	})

	if err := s.EnsurePayloadIndices(context.Background()); err != nil {
		t.Fatalf("EnsurePayloadIndices: %v", err)
	}
	if len(fields) != len(payloadIndices) {
		t.Fatalf("index calls: want=%d got=%d (%v)", len(payloadIndices), len(fields), fields)
	}
	want := map[string]bool{
		"entity_type":               true,
		"created_at":                true,
		"updated_at":                true,
		"relationships.team_id":     true,
		"relationships.project_id":  true,
		"relationships.assigned_to": true,
	}
	for _, f := range fields {
		if !want[f] {
			t.Fatalf("unexpected index field %q", f)
		}
	}
}

func TestVectorStoreGetCollectionInfo(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodGet {
			t.Fatalf("method: want=%s got=%s", http.MethodGet, r.Method)
		}
		return okResponse(t, map[string]any{
			"status":       "green",
			"points_count": 1234,
			"config": map[string]any{
				"params": map[string]any{
					"vectors": map[string]any{"size": 3, "distance": "Cosine"},
				},
			},
		}), nil
	})

	info, err := s.GetCollectionInfo(context.Background())
	if err != nil {
		t.Fatalf("GetCollectionInfo: %v", err)
	}
	if info.Status != "green" {
		t.Fatalf("status: want=%q got=%q", "green", info.Status)
	}
	if info.PointsCount != 1234 {
		t.Fatalf("points count: want=1234 got=%d", info.PointsCount)
	}
	if info.VectorSize != 3 || info.Distance != "Cosine" {
		t.Fatalf("vector params: got=%+v", info)
	}
}

func TestVectorStoreRetriesServerErrors(t *testing.T) {
	calls := 0
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return errorResponse(t, http.StatusInternalServerError, `{"status":{"error":"service unavailable"}}`), nil
		}
		return okResponse(t, map[string]any{"points": []any{}}), nil
	})

	if _, err := s.Scroll(context.Background(), 10, nil); err != nil {
		t.Fatalf("Scroll: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls: want=2 got=%d", calls)
	}
}

func TestVectorStoreDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		calls++
		return errorResponse(t, http.StatusUnprocessableEntity, `{"status":{"error":"bad vector"}}`), nil
	})

	_, err := s.Search(context.Background(), []float32{1, 2, 3}, 5, nil)
	if err == nil {
		t.Fatalf("Search: expected error, got nil")
	}
	if calls != 1 {
		t.Fatalf("calls: want=1 got=%d", calls)
	}
	var oe *OperationError
	if !errors.As(err, &oe) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if oe.Code != OperationErrorQueryFailed {
		t.Fatalf("error code: want=%q got=%q", OperationErrorQueryFailed, oe.Code)
	}
	if oe.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status: want=%d got=%d", http.StatusUnprocessableEntity, oe.StatusCode)
	}
}

func TestVectorStoreEnvelopeErrorStatus(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		raw, err := json.Marshal(map[string]any{
			"result": nil,
			"status": map[string]any{"error": "wrong input: shard not found"},
			"time":   0.001,
		})
		if err != nil {
			t.Fatalf("marshal response: %v", err)
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     make(http.Header),
			Body:       io.NopCloser(bytes.NewReader(raw)),
		}, nil
	})

	_, err := s.Scroll(context.Background(), 10, nil)
	if err == nil {
		t.Fatalf("Scroll: expected error, got nil")
	}
	var oe *OperationError
	if !errors.As(err, &oe) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if oe.Code != OperationErrorQueryFailed {
		t.Fatalf("error code: want=%q got=%q", OperationErrorQueryFailed, oe.Code)
	}
	if !strings.Contains(oe.Message, "shard not found") {
		t.Fatalf("message: got=%q", oe.Message)
	}
}

func TestClassifyHTTPCallErrorTimeout(t *testing.T) {
	if code := classifyHTTPCallError(context.DeadlineExceeded); code != OperationErrorTimeout {
		t.Fatalf("code: want=%q got=%q", OperationErrorTimeout, code)
	}
}

func TestClassifyHTTPCallErrorTransport(t *testing.T) {
	if code := classifyHTTPCallError(fmt.Errorf("boom")); code != OperationErrorTransportFailed {
		t.Fatalf("code: want=%q got=%q", OperationErrorTransportFailed, code)
	}
}

func TestIsNotFound(t *testing.T) {
	err := &OperationError{Code: OperationErrorQueryFailed, Operation: "get_collection", StatusCode: http.StatusNotFound}
	if !IsNotFound(err) {
		t.Fatalf("IsNotFound: want=true")
	}
	if IsNotFound(fmt.Errorf("boom")) {
		t.Fatalf("IsNotFound on plain error: want=false")
	}
}

func newTestVectorStore(t *testing.T, roundTrip func(*http.Request) (*http.Response, error)) *vectorStore {
	t.Helper()
	return &vectorStore{
		log: newTestLogger(t),
		cfg: Config{
			Host:       "qdrant.local",
			Port:       6333,
			Collection: "task_manager",
			VectorSize: 3,
			MaxRetries: 2,
		},
		baseURL: "http://qdrant.local:6333",
		httpClient: &http.Client{
			Transport: roundTripFunc(roundTrip),
		},
	}
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() {
		log.Sync()
	})
	return log
}

func okResponse(t *testing.T, result any) *http.Response {
	t.Helper()
	payload := map[string]any{
		"result": result,
		"status": "ok",
		"time":   0.001,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

func errorResponse(t *testing.T, status int, body string) *http.Response {
	t.Helper()
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
