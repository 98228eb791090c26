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

// localHF implements Reranker against an HTTP cross-encoder server
// accepting {model, query, documents, topk} and returning
// {results:[{index, score, document}]}, per spec.md 4.C.
type localHF struct {
	cfg    config.RerankConfig
	client *http.Client
	log    Logger
}

// NewLocalHF constructs the local-hf rerank provider variant.
func NewLocalHF(cfg config.RerankConfig, log Logger) Reranker {
	return &localHF{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
		log:    orNoopLogger(log),
	}
}

func (l *localHF) Name() string { return "local-hf" }

type rerankReq struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopK      int      `json:"topk"`
}

type rerankResultItem struct {
	Index int `json:"index"`
}

type rerankResp struct {
	Results []rerankResultItem `json:"results"`
}

// Rerank implements the algorithm from spec.md 4.C:
//  1. drop empty documents, remembering filtered->input index mapping
//  2. submit at most topk = min(requested, non-empty count)
//  3. remap results[i].index through the mapping, de-duplicating
//  4. pad from the head of the original list in input order if short
//  5. truncate to topK
func (l *localHF) Rerank(ctx context.Context, docs []ragmeta.Document, query string, topK int) ([]ragmeta.Document, error) {
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
		l.log.Warnf("local-hf rerank: all documents empty")
		return headN(docs, topK), nil
	}

	limit := topK
	if limit > len(filteredDocs) {
		limit = len(filteredDocs)
	}

	body := rerankReq{Model: l.cfg.LocalModel, Query: query, Documents: filteredDocs, TopK: limit}
	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, ragerr.NewRerankError("marshal rerank request", err)
	}
	url := strings.TrimRight(l.cfg.LocalBaseURL, "/") + "/rerank"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, ragerr.NewRerankError("build rerank request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		l.log.Warnf("local-hf rerank request failed: %v", err)
		return headN(docs, topK), nil
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		l.log.Warnf("local-hf rerank: %s: %s", resp.Status, string(b))
		return headN(docs, topK), nil
	}

	var rr rerankResp
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		l.log.Warnf("local-hf rerank: decode response: %v", err)
		return headN(docs, topK), nil
	}

	selected := remapIndices(rr.Results, indexMap, len(docs), topK)
	if len(selected) == 0 {
		l.log.Warnf("local-hf rerank: empty selected indices")
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

// remapIndices translates result indices (into the filtered document list)
// back to input indices, de-duplicating, then pads from the head of the
// original list (in input order) up to limit.
func remapIndices(results []rerankResultItem, indexMap []int, total, limit int) []int {
	seen := make(map[int]bool, len(results))
	selected := make([]int, 0, limit)
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(indexMap) {
			continue
		}
		mapped := indexMap[r.Index]
		if seen[mapped] {
			continue
		}
		seen[mapped] = true
		selected = append(selected, mapped)
	}

	if len(selected) == 0 {
		return selected
	}

	if len(selected) < limit {
		for i := 0; i < total && len(selected) < limit; i++ {
			if !seen[i] {
				seen[i] = true
				selected = append(selected, i)
			}
		}
	}

	return selected
}

func headN(docs []ragmeta.Document, n int) []ragmeta.Document {
	if n <= 0 || n > len(docs) {
		return docs
	}
	return docs[:n]
}
