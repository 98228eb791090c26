package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"manifold/internal/config"
	"manifold/internal/ragmeta"
)

// openAIEmbedder implements TextEmbedder against the OpenAI-compatible
// /v1/embeddings endpoint. It is text-only per spec.md 4.B.
type openAIEmbedder struct {
	cfg    config.EmbedConfig
	client *http.Client
	log    Logger
}

// NewOpenAI constructs the openai embedding provider variant.
func NewOpenAI(cfg config.EmbedConfig, log Logger) TextEmbedder {
	return &openAIEmbedder{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
		log:    orNoopLogger(log),
	}
}

func (o *openAIEmbedder) Name() string { return "openai" }

func (o *openAIEmbedder) SpaceKeyText() string {
	return ragmeta.SpaceKey("openai", o.cfg.OpenAIModelText, ragmeta.EmbedTypeText)
}

type openAIEmbedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (o *openAIEmbedder) call(ctx context.Context, inputs []string) ([][]float32, error) {
	reqBody, err := json.Marshal(openAIEmbedReq{Model: o.cfg.OpenAIModelText, Input: inputs})
	if err != nil {
		return nil, err
	}
	url := o.cfg.OpenAIBaseURL + "/v1/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if o.cfg.OpenAIAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.cfg.OpenAIAPIKey)
	}

	resp, err := o.client.Do(req)
	defer coolDown(o.cfg.RateLimit)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai embeddings: %s: %s", resp.Status, string(b))
	}

	var er openAIEmbedResp
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("decode openai embeddings response: %w", err)
	}
	if len(er.Data) != len(inputs) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors, want %d", len(er.Data), len(inputs))
	}
	out := make([][]float32, len(er.Data))
	for i := range er.Data {
		out[i] = er.Data[i].Embedding
	}
	return out, nil
}

func (o *openAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := o.call(ctx, texts)
	if err != nil {
		o.log.Warnf("openai embed_documents failed: %v", err)
		return nil, nil
	}
	return normalizeAll(vecs, o.cfg.NeedNorm), nil
}

func (o *openAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}
	vecs, err := o.call(ctx, []string{text})
	if err != nil || len(vecs) == 0 {
		o.log.Warnf("openai embed_query failed: %v", err)
		return nil, nil
	}
	return normalize(vecs[0], o.cfg.NeedNorm), nil
}
