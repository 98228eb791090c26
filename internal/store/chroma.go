package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"manifold/internal/config"
	"manifold/internal/ragerr"
	"manifold/internal/ragmeta"
)

// Chroma is a Backend talking to a Chroma server over its HTTP API
// (v1/collections). There's no maintained Go client for Chroma in the
// dependency pack, so this is a thin net/http REST client in the same
// style as internal/embedding's openai/cohere HTTP calls. CHROMA_PERSIST_DIR
// has no effect here: an embedded, file-backed Chroma engine only exists
// in the Python implementation; this backend always talks to a running
// Chroma server addressed by CHROMA_HOST/CHROMA_PORT.
type Chroma struct {
	baseURL string
	apiKey  string
	tenant  string
	db      string
	client  *http.Client

	collectionIDs map[string]string // spaceKey -> chroma collection id
}

// NewChroma constructs a Chroma backend from cfg's Chroma* fields.
func NewChroma(cfg config.StoreConfig) *Chroma {
	host := cfg.ChromaHost
	if host == "" {
		host = "localhost"
	}
	port := cfg.ChromaPort
	if port == "" {
		port = "8000"
	}
	tenant := cfg.ChromaTenant
	if tenant == "" {
		tenant = "default_tenant"
	}
	db := cfg.ChromaDatabase
	if db == "" {
		db = "default_database"
	}
	return &Chroma{
		baseURL:       fmt.Sprintf("http://%s:%s", host, port),
		apiKey:        cfg.ChromaAPIKey,
		tenant:        tenant,
		db:            db,
		client:        &http.Client{Timeout: 30 * time.Second},
		collectionIDs: make(map[string]string),
	}
}

func (c *Chroma) Name() string { return "chroma" }

func (c *Chroma) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return ragerr.NewStoreError("marshal chroma request", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return ragerr.NewStoreError("build chroma request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return ragerr.NewNetworkError("chroma request", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return ragerr.NewStoreError("chroma request", fmt.Errorf("%s: %s", resp.Status, string(b)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Chroma) collectionsPath() string {
	return fmt.Sprintf("/api/v1/collections?tenant=%s&database=%s", c.tenant, c.db)
}

func (c *Chroma) EnsureSpace(ctx context.Context, spaceKey string, dimensions int) error {
	if _, ok := c.collectionIDs[spaceKey]; ok {
		return nil
	}
	var created struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, c.collectionsPath(), map[string]any{
		"name":          spaceKey,
		"get_or_create": true,
		"metadata":      map[string]any{"dimensions": dimensions},
	}, &created)
	if err != nil {
		return err
	}
	if created.ID == "" {
		return ragerr.NewStoreError("ensure collection", fmt.Errorf("chroma returned no collection id for %s", spaceKey))
	}
	c.collectionIDs[spaceKey] = created.ID
	return nil
}

func (c *Chroma) collectionID(spaceKey string) string { return c.collectionIDs[spaceKey] }

func (c *Chroma) AddDocuments(ctx context.Context, spaceKey string, docs []ragmeta.Document, vectors [][]float32, ids []string) error {
	if len(docs) == 0 {
		return nil
	}
	metadatas := make([]map[string]any, len(docs))
	payloads := make([]string, len(docs))
	for i, d := range docs {
		metadatas[i] = d.Metadata
		payloads[i] = d.Payload
	}
	path := fmt.Sprintf("/api/v1/collections/%s/upsert", c.collectionID(spaceKey))
	return c.do(ctx, http.MethodPost, path, map[string]any{
		"ids":        ids,
		"embeddings": vectors,
		"documents":  payloads,
		"metadatas":  metadatas,
	}, nil)
}

func (c *Chroma) DeleteDocuments(ctx context.Context, spaceKey string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	path := fmt.Sprintf("/api/v1/collections/%s/delete", c.collectionID(spaceKey))
	return c.do(ctx, http.MethodPost, path, map[string]any{"ids": ids}, nil)
}

func (c *Chroma) SimilaritySearchByVector(ctx context.Context, spaceKey string, vector []float32, topK int, filter map[string]any) ([]ragmeta.Document, error) {
	if topK <= 0 {
		topK = 10
	}
	reqBody := map[string]any{
		"query_embeddings": [][]float32{vector},
		"n_results":        topK,
	}
	if len(filter) > 0 {
		reqBody["where"] = filter
	}
	var resp struct {
		Documents [][]string         `json:"documents"`
		Metadatas [][]map[string]any `json:"metadatas"`
	}
	path := fmt.Sprintf("/api/v1/collections/%s/query", c.collectionID(spaceKey))
	if err := c.do(ctx, http.MethodPost, path, reqBody, &resp); err != nil {
		return nil, err
	}
	if len(resp.Documents) == 0 {
		return nil, nil
	}
	docs := resp.Documents[0]
	metas := resp.Metadatas[0]
	out := make([]ragmeta.Document, 0, len(docs))
	for i, payload := range docs {
		var meta map[string]any
		if i < len(metas) {
			meta = metas[i]
		}
		out = append(out, ragmeta.Document{Payload: payload, Metadata: meta})
	}
	return out, nil
}

func (c *Chroma) ListMetadata(ctx context.Context, spaceKey string, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = 10000
	}
	id, ok := c.collectionIDs[spaceKey]
	if !ok {
		return nil, nil
	}
	var resp struct {
		Metadatas []map[string]any `json:"metadatas"`
	}
	path := fmt.Sprintf("/api/v1/collections/%s/get?limit=%d", id, limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Metadatas, nil
}
