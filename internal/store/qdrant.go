package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"manifold/internal/ragerr"
	"manifold/internal/ragmeta"
)

// payloadMetaField holds the JSON-encoded map[string]any metadata; Qdrant
// payload values don't natively nest arbitrary Go metadata the way
// ragmeta.Document needs, so it's carried as a single JSON string field
// instead of being split across native payload keys.
const payloadMetaField = "_metadata_json"
const payloadOriginalIDField = "_original_id"
const payloadPayloadField = "_payload"

// Qdrant is a Backend mapping each space key to its own Qdrant
// collection. Grounded on
// internal/persistence/databases/qdrant_vector.go: same DSN parsing and
// UUID point-id remapping (Qdrant only accepts UUIDs/uint64 as point
// ids; ragmeta ids are already UUIDv5 strings, but the remap is kept as
// defense against a future id scheme change, exactly as the teacher
// does).
type Qdrant struct {
	client     *qdrant.Client
	collections map[string]int // spaceKey -> dimension, once ensured
	metric     string
}

// NewQdrant parses dsn (host, port, optional api_key query param) and
// opens a client. Collections are created lazily in EnsureSpace.
func NewQdrant(dsn string) (*Qdrant, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, ragerr.NewStoreError("parse qdrant dsn", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, ragerr.NewStoreError("parse qdrant port", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, ragerr.NewStoreError("create qdrant client", err)
	}
	return &Qdrant{client: client, collections: make(map[string]int), metric: "cosine"}, nil
}

func (q *Qdrant) Name() string { return "qdrant" }

func (q *Qdrant) collectionName(spaceKey string) string { return spaceKey }

func (q *Qdrant) EnsureSpace(ctx context.Context, spaceKey string, dimensions int) error {
	if _, ok := q.collections[spaceKey]; ok {
		return nil
	}
	name := q.collectionName(spaceKey)
	exists, err := q.client.CollectionExists(ctx, name)
	if err != nil {
		return ragerr.NewStoreError("check collection exists", err)
	}
	if !exists {
		if dimensions <= 0 {
			return ragerr.NewStoreError("ensure collection", fmt.Errorf("qdrant requires dimensions > 0"))
		}
		err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return ragerr.NewStoreError("create collection", err)
		}
	}
	q.collections[spaceKey] = dimensions
	return nil
}

func pointIDFor(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func (q *Qdrant) AddDocuments(ctx context.Context, spaceKey string, docs []ragmeta.Document, vectors [][]float32, ids []string) error {
	points := make([]*qdrant.PointStruct, len(docs))
	for i, d := range docs {
		metaJSON, err := json.Marshal(d.Metadata)
		if err != nil {
			return ragerr.NewStoreError("marshal metadata", err)
		}
		uuidStr := pointIDFor(ids[i])
		payload := map[string]any{
			payloadMetaField:    string(metaJSON),
			payloadPayloadField: d.Payload,
		}
		if uuidStr != ids[i] {
			payload[payloadOriginalIDField] = ids[i]
		}
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(uuidStr),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		}
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName(spaceKey),
		Points:         points,
	})
	if err != nil {
		return ragerr.NewStoreError("upsert points", err)
	}
	return nil
}

func (q *Qdrant) DeleteDocuments(ctx context.Context, spaceKey string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(pointIDFor(id))
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collectionName(spaceKey),
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return ragerr.NewStoreError("delete points", err)
	}
	return nil
}

func (q *Qdrant) SimilaritySearchByVector(ctx context.Context, spaceKey string, vector []float32, topK int, filter map[string]any) ([]ragmeta.Document, error) {
	if topK <= 0 {
		topK = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)

	var qFilter *qdrant.Filter
	if len(filter) > 0 {
		must := make([]*qdrant.Condition, 0, len(filter))
		for k, v := range filter {
			must = append(must, qdrant.NewMatch(k, fmt.Sprintf("%v", v)))
		}
		qFilter = &qdrant.Filter{Must: must}
	}

	limit := uint64(topK)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collectionName(spaceKey),
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         qFilter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, ragerr.NewStoreError("similarity search", err)
	}

	out := make([]ragmeta.Document, 0, len(hits))
	for _, hit := range hits {
		var meta map[string]any
		var payload string
		if hit.Payload != nil {
			if v, ok := hit.Payload[payloadMetaField]; ok {
				_ = json.Unmarshal([]byte(v.GetStringValue()), &meta)
			}
			if v, ok := hit.Payload[payloadPayloadField]; ok {
				payload = v.GetStringValue()
			}
		}
		if meta == nil {
			meta = map[string]any{}
		}
		out = append(out, ragmeta.Document{Payload: payload, Metadata: meta})
	}
	return out, nil
}

func (q *Qdrant) ListMetadata(ctx context.Context, spaceKey string, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = 10000
	}
	name := q.collectionName(spaceKey)
	exists, err := q.client.CollectionExists(ctx, name)
	if err != nil || !exists {
		return nil, nil
	}
	u := uint32(limit)
	points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: name,
		Limit:          &u,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, ragerr.NewStoreError("scroll collection", err)
	}
	out := make([]map[string]any, 0, len(points))
	for _, p := range points {
		var meta map[string]any
		if p.Payload != nil {
			if v, ok := p.Payload[payloadMetaField]; ok {
				_ = json.Unmarshal([]byte(v.GetStringValue()), &meta)
			}
		}
		if meta == nil {
			continue
		}
		out = append(out, meta)
	}
	return out, nil
}

func (q *Qdrant) Close() error {
	return q.client.Close()
}
