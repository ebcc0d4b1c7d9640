package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/taskbridge-backend/internal/pkg/httpx"
	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
)

const (
	maxErrorBodyBytes = 1024

	defaultSearchLimit = 10
	defaultScrollLimit = 100

	hnswM                  = 16
	hnswEfConstruct        = 100
	optimizerIndexingFloor = 10000
)

// payloadIndices lists the payload fields every collection gets a keyword or
// datetime index for, so filtered search does not fall back to full scans.
var payloadIndices = []struct {
	Field  string
	Schema string
}{
	{Field: "entity_type", Schema: "keyword"},
	{Field: "created_at", Schema: "datetime"},
	{Field: "updated_at", Schema: "datetime"},
	{Field: "relationships.team_id", Schema: "keyword"},
	{Field: "relationships.project_id", Schema: "keyword"},
	{Field: "relationships.assigned_to", Schema: "keyword"},
}

// Point is a vector plus its payload, addressed by an unsigned 32-bit id.
type Point struct {
	ID      uint32
	Vector  []float32
	Payload map[string]any
}

// ScoredPoint is a search hit with its cosine similarity score.
type ScoredPoint struct {
	ID      uint32
	Score   float64
	Payload map[string]any
}

// ScrolledPoint is a point returned by Scroll, payload only.
type ScrolledPoint struct {
	ID      uint32
	Payload map[string]any
}

// CollectionInfo summarizes collection state for health and admin surfaces.
type CollectionInfo struct {
	Status      string
	PointsCount int64
	VectorSize  int
	Distance    string
}

// Store is the Qdrant surface the indexing and retrieval layers build on.
type Store interface {
	CreateCollection(ctx context.Context) error
	EnsurePayloadIndices(ctx context.Context) error
	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, vector []float32, limit int, filter *Filter) ([]ScoredPoint, error)
	Scroll(ctx context.Context, limit int, filter *Filter) ([]ScrolledPoint, error)
	Delete(ctx context.Context, ids []uint32) error
	DeleteCollection(ctx context.Context) error
	GetCollectionInfo(ctx context.Context) (*CollectionInfo, error)
}

type vectorStore struct {
	log        *logger.Logger
	cfg        Config
	baseURL    string
	httpClient *http.Client
}

// New builds a Store from cfg. It performs no I/O; collection bootstrap is
// an explicit CreateCollection/EnsurePayloadIndices call at startup.
func New(log *logger.Logger, cfg Config) (Store, error) {
	if log == nil {
		return nil, errors.New("qdrant: logger is required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &vectorStore{
		log:        log.With("component", "qdrant", "collection", cfg.Collection),
		cfg:        cfg,
		baseURL:    cfg.BaseURL(),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// ===== Collection lifecycle =====

func (vs *vectorStore) CreateCollection(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     vs.cfg.VectorSize,
			"distance": "Cosine",
		},
		"hnsw_config": map[string]any{
			"m":            hnswM,
			"ef_construct": hnswEfConstruct,
		},
		"optimizers_config": map[string]any{
			"indexing_threshold": optimizerIndexingFloor,
		},
	}
	if err := vs.do(ctx, "create_collection", http.MethodPut, vs.collectionPath(""), body, nil); err != nil {
		if isAlreadyExists(err) {
			vs.log.Debug("collection already exists")
			return nil
		}
		return err
	}
	vs.log.Info("collection created", "vector_size", vs.cfg.VectorSize)
	return nil
}

func (vs *vectorStore) EnsurePayloadIndices(ctx context.Context) error {
	for _, idx := range payloadIndices {
		body := map[string]any{
			"field_name":   idx.Field,
			"field_schema": idx.Schema,
		}
		err := vs.do(ctx, "create_payload_index", http.MethodPut, vs.collectionPath("/index?wait=true"), body, nil)
		if err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("payload index %s: %w", idx.Field, err)
		}
	}
	return nil
}

func (vs *vectorStore) DeleteCollection(ctx context.Context) error {
	return vs.do(ctx, "delete_collection", http.MethodDelete, vs.collectionPath(""), nil, nil)
}

func (vs *vectorStore) GetCollectionInfo(ctx context.Context) (*CollectionInfo, error) {
	var result struct {
		Status      string `json:"status"`
		PointsCount int64  `json:"points_count"`
		Config      struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	if err := vs.do(ctx, "get_collection", http.MethodGet, vs.collectionPath(""), nil, &result); err != nil {
		return nil, err
	}
	return &CollectionInfo{
		Status:      result.Status,
		PointsCount: result.PointsCount,
		VectorSize:  result.Config.Params.Vectors.Size,
		Distance:    result.Config.Params.Vectors.Distance,
	}, nil
}

// ===== Points =====

func (vs *vectorStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	wire := make([]map[string]any, 0, len(points))
	for i, p := range points {
		if len(p.Vector) != vs.cfg.VectorSize {
			msg := fmt.Sprintf("point %d: vector size %d, want %d", i, len(p.Vector), vs.cfg.VectorSize)
			return opErr(OperationErrorValidationFailed, "upsert_points", msg, nil)
		}
		entry := map[string]any{
			"id":     p.ID,
			"vector": p.Vector,
		}
		if p.Payload != nil {
			entry["payload"] = p.Payload
		}
		wire = append(wire, entry)
	}
	body := map[string]any{"points": wire}
	return vs.do(ctx, "upsert_points", http.MethodPut, vs.collectionPath("/points?wait=true"), body, nil)
}

func (vs *vectorStore) Search(ctx context.Context, vector []float32, limit int, filter *Filter) ([]ScoredPoint, error) {
	if len(vector) != vs.cfg.VectorSize {
		msg := fmt.Sprintf("query vector size %d, want %d", len(vector), vs.cfg.VectorSize)
		return nil, opErr(OperationErrorValidationFailed, "search_points", msg, nil)
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	body := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if wire := filter.wire(); wire != nil {
		body["filter"] = wire
	}
	var hits []struct {
		ID      uint32         `json:"id"`
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	}
	if err := vs.do(ctx, "search_points", http.MethodPost, vs.collectionPath("/points/search"), body, &hits); err != nil {
		return nil, err
	}
	out := make([]ScoredPoint, 0, len(hits))
	for _, h := range hits {
		out = append(out, ScoredPoint{ID: h.ID, Score: h.Score, Payload: h.Payload})
	}
	return out, nil
}

func (vs *vectorStore) Scroll(ctx context.Context, limit int, filter *Filter) ([]ScrolledPoint, error) {
	if limit <= 0 {
		limit = defaultScrollLimit
	}
	body := map[string]any{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if wire := filter.wire(); wire != nil {
		body["filter"] = wire
	}
	var result struct {
		Points []struct {
			ID      uint32         `json:"id"`
			Payload map[string]any `json:"payload"`
		} `json:"points"`
	}
	if err := vs.do(ctx, "scroll_points", http.MethodPost, vs.collectionPath("/points/scroll"), body, &result); err != nil {
		return nil, err
	}
	out := make([]ScrolledPoint, 0, len(result.Points))
	for _, p := range result.Points {
		out = append(out, ScrolledPoint{ID: p.ID, Payload: p.Payload})
	}
	return out, nil
}

func (vs *vectorStore) Delete(ctx context.Context, ids []uint32) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string]any{"points": ids}
	return vs.do(ctx, "delete_points", http.MethodPost, vs.collectionPath("/points/delete?wait=true"), body, nil)
}

// ===== Transport =====

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

// envelopeStatus reads Qdrant's status field, which is either the string
// "ok" or an object carrying an error message.
func envelopeStatus(raw json.RawMessage) (bool, string) {
	if len(raw) == 0 {
		return true, ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return strings.EqualFold(asString, "ok"), asString
	}
	var asObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &asObject); err == nil && asObject.Error != "" {
		return false, asObject.Error
	}
	return false, string(raw)
}

func (vs *vectorStore) collectionPath(suffix string) string {
	return "/collections/" + url.PathEscape(vs.cfg.Collection) + suffix
}

func (vs *vectorStore) do(ctx context.Context, operation, method, path string, in, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	backoff := 500 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt <= vs.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return opErr(classifyHTTPCallError(err), operation, "context finished", err)
		}

		err := vs.doOnce(ctx, operation, method, path, in, out)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == vs.cfg.MaxRetries || !isRetryable(err) {
			return err
		}

		sleepFor := httpx.JitterSleep(backoff)
		vs.log.Warn("qdrant request retrying",
			"operation", operation,
			"attempt", attempt+1,
			"max_retries", vs.cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		time.Sleep(sleepFor)
		backoff *= 2
	}
	return lastErr
}

func (vs *vectorStore) doOnce(ctx context.Context, operation, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return opErr(OperationErrorEncodeFailed, operation, "encode request body", err)
		}
		reader = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, vs.baseURL+path, reader)
	if err != nil {
		return opErr(OperationErrorEncodeFailed, operation, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if vs.cfg.APIKey != "" {
		req.Header.Set("api-key", vs.cfg.APIKey)
	}

	resp, err := vs.httpClient.Do(req)
	if err != nil {
		return opErr(classifyHTTPCallError(err), operation, "call qdrant", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return opErr(OperationErrorTransportFailed, operation, "read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Message:    truncateBody(raw),
		}
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return opErr(OperationErrorDecodeFailed, operation, "decode response envelope", err)
	}
	if ok, message := envelopeStatus(envelope.Status); !ok {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Message:    message,
		}
	}
	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return opErr(OperationErrorDecodeFailed, operation, "decode result", err)
		}
	}
	return nil
}

// isRetryable allows retries for network failures, timeouts and 5xx
// responses only. Any 4xx means the request itself is wrong and a retry
// would send the same wrong request again.
func isRetryable(err error) bool {
	var oe *OperationError
	if !errors.As(err, &oe) {
		return httpx.IsRetryableError(err)
	}
	switch oe.Code {
	case OperationErrorTimeout, OperationErrorTransportFailed:
		return true
	case OperationErrorQueryFailed:
		return oe.StatusCode >= 500
	default:
		return false
	}
}

func classifyHTTPCallError(err error) OperationErrorCode {
	if errors.Is(err, context.DeadlineExceeded) {
		return OperationErrorTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OperationErrorTimeout
	}
	return OperationErrorTransportFailed
}

func isAlreadyExists(err error) bool {
	var oe *OperationError
	if !errors.As(err, &oe) {
		return false
	}
	if oe.StatusCode == http.StatusConflict {
		return true
	}
	return oe.StatusCode >= 400 && oe.StatusCode < 500 &&
		strings.Contains(strings.ToLower(oe.Message), "exist")
}

// IsNotFound reports whether err is Qdrant answering 404, which callers use
// to distinguish a missing collection from a failing one.
func IsNotFound(err error) bool {
	var oe *OperationError
	return errors.As(err, &oe) && oe.StatusCode == http.StatusNotFound
}

func truncateBody(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > maxErrorBodyBytes {
		return s[:maxErrorBodyBytes] + "..."
	}
	return s
}
