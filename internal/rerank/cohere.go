package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"manifold/internal/config"
	"manifold/internal/ragerr"
	"manifold/internal/ragmeta"
)

const cohereRerankURL = "https://api.cohere.com/v2/rerank"

// cohereReranker calls the Cohere v2 rerank endpoint, honoring the same
// drop-empty/remap/pad/truncate contract as localHF.
type cohereReranker struct {
	cfg    config.RerankConfig
	client *http.Client
	log    Logger
}

// NewCohere constructs the cohere rerank provider variant.
func NewCohere(cfg config.RerankConfig, log Logger) Reranker {
	return &cohereReranker{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
		log:    orNoopLogger(log),
	}
}

func (c *cohereReranker) Name() string { return "cohere" }

type cohereRerankReq struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type cohereRerankResp struct {
	Results []rerankResultItem `json:"results"`
}

func (c *cohereReranker) Rerank(ctx context.Context, docs []ragmeta.Document, query string, topK int) ([]ragmeta.Document, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = len(docs)
	}

	filteredDocs := make([]string, 0, len(docs))
	indexMap := make([]int, 0, len(docs))
	for i, d := range docs {
		content := strings.TrimSpace(d.Payload)
		if content == "" {
			continue
		}
		filteredDocs = append(filteredDocs, content)
		indexMap = append(indexMap, i)
	}

	if len(filteredDocs) == 0 {
		c.log.Warnf("cohere rerank: all documents empty")
		return headN(docs, topK), nil
	}

	limit := topK
	if limit > len(filteredDocs) {
		limit = len(filteredDocs)
	}

	body := cohereRerankReq{Model: c.cfg.CohereModel, Query: query, Documents: filteredDocs, TopN: limit}
	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, ragerr.NewRerankError("marshal cohere rerank request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cohereRerankURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, ragerr.NewRerankError("build cohere rerank request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.CohereAPIKey)

	resp, err := c.client.Do(req)
	coolDown(2.0)
	if err != nil {
		c.log.Warnf("cohere rerank request failed: %v", err)
		return headN(docs, topK), nil
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		c.log.Warnf("cohere rerank: %s: %s", resp.Status, string(b))
		return headN(docs, topK), nil
	}

	var rr cohereRerankResp
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		c.log.Warnf("cohere rerank: decode response: %v", err)
		return headN(docs, topK), nil
	}

	selected := remapIndices(rr.Results, indexMap, len(docs), topK)
	if len(selected) == 0 {
		c.log.Warnf("cohere rerank: empty selected indices")
		return headN(docs, topK), nil
	}
	if len(selected) > topK {
		selected = selected[:topK]
	}
	out := make([]ragmeta.Document, 0, len(selected))
	for _, idx := range selected {
		out = append(out, docs[idx])
	}
	return out, nil
}

// coolDown sleeps 1/rateLimit seconds after every Cohere call, matching
// the per-provider pacing in internal/embedding.
func coolDown(rateLimit float64) {
	if rateLimit <= 0 {
		return
	}
	time.Sleep(time.Duration(float64(time.Second) / rateLimit))
}
