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

// localClipEmbedder implements MultimodalEmbedder against a CLIP-style
// server. Image embedding is routed through the *text* embedding path as a
// data:<mime>;base64,<…> payload: the server recognises the data:image
// prefix and dispatches accordingly, per spec.md 4.B.
type localClipEmbedder struct {
	cfg    config.EmbedConfig
	client *http.Client
	log    Logger
}

// NewLocalCLIP constructs the local-clip embedding provider variant.
func NewLocalCLIP(cfg config.EmbedConfig, log Logger) MultimodalEmbedder {
	return &localClipEmbedder{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
		log:    orNoopLogger(log),
	}
}

func (l *localClipEmbedder) Name() string { return "local-clip" }

func (l *localClipEmbedder) SpaceKeyText() string {
	return ragmeta.SpaceKey("local", l.cfg.LocalModelText, ragmeta.EmbedTypeText)
}

func (l *localClipEmbedder) SpaceKeyMulti() string {
	return ragmeta.SpaceKey("local", l.cfg.LocalModelImage, ragmeta.EmbedTypeImage)
}

type localEmbedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type localEmbedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (l *localClipEmbedder) call(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	reqBody, err := json.Marshal(localEmbedReq{Model: model, Input: inputs})
	if err != nil {
		return nil, err
	}
	url := l.cfg.LocalBaseURL + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	defer coolDown(l.cfg.RateLimit)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("local embed: %s: %s", resp.Status, string(b))
	}

	var er localEmbedResp
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("decode local embed response: %w", err)
	}
	if len(er.Data) != len(inputs) {
		return nil, fmt.Errorf("local embed: got %d vectors, want %d", len(er.Data), len(inputs))
	}
	out := make([][]float32, len(er.Data))
	for i := range er.Data {
		out[i] = er.Data[i].Embedding
	}
	return out, nil
}

func (l *localClipEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := l.call(ctx, l.cfg.LocalModelText, texts)
	if err != nil {
		l.log.Warnf("local-clip embed_documents failed: %v", err)
		return nil, nil
	}
	return normalizeAll(vecs, l.cfg.NeedNorm), nil
}

func (l *localClipEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}
	vecs, err := l.call(ctx, l.cfg.LocalModelText, []string{text})
	if err != nil || len(vecs) == 0 {
		l.log.Warnf("local-clip embed_query failed: %v", err)
		return nil, nil
	}
	return normalize(vecs[0], l.cfg.NeedNorm), nil
}

func (l *localClipEmbedder) EmbedTextForImageQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}
	vecs, err := l.call(ctx, l.cfg.LocalModelImage, []string{text})
	if err != nil || len(vecs) == 0 {
		l.log.Warnf("local-clip embed_text_for_image_query failed: %v", err)
		return nil, nil
	}
	return normalize(vecs[0], l.cfg.NeedNorm), nil
}

// EmbedImage submits each image as a data-URI payload through the text
// embedding path, per the routing contract in spec.md 4.B.
func (l *localClipEmbedder) EmbedImage(ctx context.Context, paths []string) ([][]float32, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	uris := make([]string, 0, len(paths))
	for _, p := range paths {
		uri, err := imageDataURI(p)
		if err != nil {
			l.log.Warnf("local-clip embed_image: read %s: %v", p, err)
			return nil, nil
		}
		uris = append(uris, uri)
	}
	vecs, err := l.call(ctx, l.cfg.LocalModelImage, uris)
	if err != nil {
		l.log.Warnf("local-clip embed_image failed: %v", err)
		return nil, nil
	}
	return normalizeAll(vecs, l.cfg.NeedNorm), nil
}
