package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Protocol-Lattice/story-memory/src/memory/model"
)

type Distance string

const (
	DistanceCosine Distance = "Cosine"
	DistanceDot    Distance = "Dot"
	DistanceEuclid Distance = "Euclid"
)

// qdrantStatus supports both `status: "ok"` and `status: {"error":"..."}`.
type qdrantStatus struct {
	State string
	Error string
}

func (s *qdrantStatus) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		s.State = strings.ToLower(v)
		return nil
	}
	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	if obj.Error != "" {
		s.State = "error"
		s.Error = obj.Error
	}
	return nil
}

type qdrantEnvelope[T any] struct {
	Status qdrantStatus `json:"status"`
	Time   float64      `json:"time"`
	Result T            `json:"result"`
}

// qdrantPayload is what every point carries. Point ids are UUIDs derived from
// (namespace, id) because Qdrant only accepts integers and UUIDs.
type qdrantPayload struct {
	RecordID  string         `json:"record_id"`
	Namespace string         `json:"namespace"`
	Metadata  model.Metadata `json:"metadata"`
}

type qdrantPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload qdrantPayload   `json:"payload"`
	Vector  []float32       `json:"vector"`
}

type qdrantScrollResult struct {
	Points []qdrantPoint   `json:"points"`
	Offset json.RawMessage `json:"next_page_offset"`
}

// QdrantConfig configures a QdrantStore.
type QdrantConfig struct {
	BaseURL    string
	APIKey     string
	Collection string
	Namespace  string
	Dimension  int
	Distance   Distance
	Timeout    time.Duration
}

// QdrantStore implements VectorStore over Qdrant's REST API.
type QdrantStore struct {
	baseURL    string
	apiKey     string
	collection string
	namespace  string
	dimension  int
	distance   Distance
	client     *http.Client
	logger     *log.Logger
}

var (
	_ VectorStore       = (*QdrantStore)(nil)
	_ SchemaInitializer = (*QdrantStore)(nil)
)

// NewQdrantStore creates a Qdrant-backed VectorStore. APIKey falls back to QDRANT_API_KEY.
func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.Collection == "" {
		return nil, errors.New("qdrant collection is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:6333"
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("QDRANT_API_KEY")
	}
	if cfg.Distance == "" {
		cfg.Distance = DistanceCosine
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &QdrantStore{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		namespace:  cfg.Namespace,
		dimension:  cfg.Dimension,
		distance:   cfg.Distance,
		client:     &http.Client{Timeout: cfg.Timeout},
		logger:     log.New(os.Stderr, "qdrant: ", log.LstdFlags),
	}, nil
}

// WithLogger overrides the default logger.
func (qs *QdrantStore) WithLogger(l *log.Logger) *QdrantStore {
	if l != nil {
		qs.logger = l
	}
	return qs
}

// EnsureSchema creates the collection and the payload indexes used by filters.
// Both steps are idempotent.
func (qs *QdrantStore) EnsureSchema(ctx context.Context) error {
	if qs.dimension <= 0 {
		return errors.New("qdrant: dimension is required to create a collection")
	}
	req := map[string]any{
		"vectors": map[string]any{"size": qs.dimension, "distance": qs.distance},
	}
	if err := qs.do(ctx, http.MethodPut, qs.collectionPath(""), req, nil); err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("create collection: %w", err)
	}
	indexes := []struct{ field, schema string }{
		{"namespace", "keyword"},
		{"record_id", "keyword"},
		{"metadata." + model.FieldType, "keyword"},
		{"metadata." + model.FieldUserID, "keyword"},
		{"metadata." + model.FieldUser, "keyword"},
		{"metadata." + model.FieldPlatform, "keyword"},
		{"metadata." + model.FieldCharacters, "keyword"},
		{"metadata." + model.FieldInteractionCount, "integer"},
		{"metadata." + model.FieldTimestamp, "datetime"},
	}
	for _, idx := range indexes {
		body := map[string]any{"field_name": idx.field, "field_schema": idx.schema}
		if err := qs.do(ctx, http.MethodPut, qs.collectionPath("/index?wait=true"), body, nil); err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("create index %s: %w", idx.field, err)
		}
	}
	qs.logf("collection %s ready (dim=%d, distance=%s)", qs.collection, qs.dimension, qs.distance)
	return nil
}

func (qs *QdrantStore) logf(format string, args ...any) {
	if qs.logger != nil {
		qs.logger.Printf(format, args...)
	}
}

func (qs *QdrantStore) Upsert(ctx context.Context, records ...model.Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]map[string]any, 0, len(records))
	for _, r := range records {
		points = append(points, map[string]any{
			"id":      qs.pointID(r.ID),
			"vector":  r.Vector,
			"payload": qdrantPayload{RecordID: r.ID, Namespace: qs.namespace, Metadata: r.Metadata},
		})
	}
	return qs.do(ctx, http.MethodPut, qs.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil)
}

func (qs *QdrantStore) Fetch(ctx context.Context, id string) (*model.Record, error) {
	p, err := qs.getPoint(ctx, id)
	if err != nil || p == nil {
		return nil, err
	}
	return &model.Record{ID: p.Payload.RecordID, Vector: p.Vector, Metadata: p.Payload.Metadata}, nil
}

// Update overwrites the whole payload of an existing point.
func (qs *QdrantStore) Update(ctx context.Context, id string, metadata model.Metadata) error {
	p, err := qs.getPoint(ctx, id)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrNotFound
	}
	body := map[string]any{
		"points":  []string{qs.pointID(id)},
		"payload": qdrantPayload{RecordID: id, Namespace: qs.namespace, Metadata: metadata},
	}
	return qs.do(ctx, http.MethodPut, qs.collectionPath("/points/payload?wait=true"), body, nil)
}

func (qs *QdrantStore) Query(ctx context.Context, q Query) ([]model.Match, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	filter := qs.buildFilter(q.Filter)
	var points []qdrantPoint
	if model.IsZeroVector(q.Vector) {
		body := map[string]any{
			"filter":       filter,
			"limit":        q.TopK,
			"with_payload": true,
			"order_by":     map[string]any{"key": "metadata." + model.FieldTimestamp, "direction": "desc"},
		}
		var resp qdrantEnvelope[qdrantScrollResult]
		if err := qs.do(ctx, http.MethodPost, qs.collectionPath("/points/scroll"), body, &resp); err != nil {
			return nil, err
		}
		points = resp.Result.Points
	} else {
		body := map[string]any{
			"vector":       q.Vector,
			"limit":        q.TopK,
			"filter":       filter,
			"with_payload": true,
		}
		var resp qdrantEnvelope[[]qdrantPoint]
		if err := qs.do(ctx, http.MethodPost, qs.collectionPath("/points/search"), body, &resp); err != nil {
			return nil, err
		}
		points = resp.Result
	}
	out := make([]model.Match, 0, len(points))
	for _, p := range points {
		out = append(out, model.Match{ID: p.Payload.RecordID, Score: p.Score, Metadata: p.Payload.Metadata})
	}
	return out, nil
}

func (qs *QdrantStore) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	points := make([]string, len(ids))
	for i, id := range ids {
		points[i] = qs.pointID(id)
	}
	return qs.do(ctx, http.MethodPost, qs.collectionPath("/points/delete?wait=true"), map[string]any{"points": points}, nil)
}

func (qs *QdrantStore) DeleteWhere(ctx context.Context, filter model.Filter) error {
	if err := filter.Validate(); err != nil {
		return err
	}
	body := map[string]any{"filter": qs.buildFilter(filter)}
	return qs.do(ctx, http.MethodPost, qs.collectionPath("/points/delete?wait=true"), body, nil)
}

// buildFilter translates the filter grammar into Qdrant's must-clauses, scoped to
// the store namespace.
func (qs *QdrantStore) buildFilter(f model.Filter) map[string]any {
	must := []map[string]any{
		{"key": "namespace", "match": map[string]any{"value": qs.namespace}},
	}
	for _, c := range f {
		key := "metadata." + c.Field
		switch c.Op {
		case model.OpEq:
			must = append(must, map[string]any{"key": key, "match": map[string]any{"value": c.Values[0].Any()}})
		case model.OpIn:
			vals := make([]any, len(c.Values))
			for i, v := range c.Values {
				vals[i] = v.Any()
			}
			must = append(must, map[string]any{"key": key, "match": map[string]any{"any": vals}})
		case model.OpNotExists:
			must = append(must, map[string]any{"is_empty": map[string]any{"key": key}})
		case model.OpGte:
			must = append(must, map[string]any{"key": key, "range": map[string]any{"gte": c.Values[0].Num}})
		}
	}
	return map[string]any{"must": must}
}

func (qs *QdrantStore) pointID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(qs.namespace+"/"+id)).String()
}

func (qs *QdrantStore) collectionPath(suffix string) string {
	return "/collections/" + url.PathEscape(qs.collection) + suffix
}

func (qs *QdrantStore) getPoint(ctx context.Context, id string) (*qdrantPoint, error) {
	body := map[string]any{
		"ids":          []string{qs.pointID(id)},
		"with_payload": true,
		"with_vector":  true,
	}
	var resp qdrantEnvelope[[]qdrantPoint]
	if err := qs.do(ctx, http.MethodPost, qs.collectionPath("/points"), body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Result) == 0 {
		return nil, nil
	}
	p := resp.Result[0]
	if p.Payload.RecordID == "" {
		p.Payload.RecordID = id
	}
	return &p, nil
}

type qdrantHTTPError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *qdrantHTTPError) Error() string {
	return fmt.Sprintf("qdrant %s %s -> http %d: %s", e.Method, e.Path, e.Status, e.Body)
}

func isAlreadyExists(err error) bool {
	var he *qdrantHTTPError
	return errors.As(err, &he) && strings.Contains(strings.ToLower(he.Body), "already exists")
}

func (qs *QdrantStore) do(ctx context.Context, method, path string, body any, out any) error {
	var buf io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, qs.baseURL+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if qs.apiKey != "" {
		req.Header.Set("api-key", qs.apiKey)
	}
	resp, err := qs.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if resp.StatusCode >= 400 {
		return &qdrantHTTPError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode qdrant response: %w", err)
	}
	if env, ok := out.(interface{ status() qdrantStatus }); ok {
		if st := env.status(); st.Error != "" {
			return errors.New(st.Error)
		}
	}
	return nil
}

func (e *qdrantEnvelope[T]) status() qdrantStatus { return e.Status }
