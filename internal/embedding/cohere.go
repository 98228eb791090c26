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

// cohereEmbedder implements MultimodalEmbedder against the Cohere V2 embed
// API: text inputs use input_type=search_document/search_query, image
// inputs use input_type=image with inline data-URI image_url objects.
type cohereEmbedder struct {
	cfg    config.EmbedConfig
	client *http.Client
	log    Logger
}

// NewCohere constructs the cohere embedding provider variant.
func NewCohere(cfg config.EmbedConfig, log Logger) MultimodalEmbedder {
	return &cohereEmbedder{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
		log:    orNoopLogger(log),
	}
}

func (c *cohereEmbedder) Name() string { return "cohere" }

func (c *cohereEmbedder) SpaceKeyText() string {
	return ragmeta.SpaceKey("cohere", c.cfg.CohereModelText, ragmeta.EmbedTypeText)
}

func (c *cohereEmbedder) SpaceKeyMulti() string {
	return ragmeta.SpaceKey("cohere", c.cfg.CohereModelImage, ragmeta.EmbedTypeImage)
}

type cohereImageInput struct {
	ImageURL string `json:"image_url"`
}

type cohereEmbedReq struct {
	Model     string             `json:"model"`
	Texts     []string           `json:"texts,omitempty"`
	Images    []cohereImageInput `json:"images,omitempty"`
	InputType string             `json:"input_type"`
}

type cohereEmbedResp struct {
	Embeddings struct {
		Float [][]float32 `json:"float"`
	} `json:"embeddings"`
}

func (c *cohereEmbedder) post(ctx context.Context, body cohereEmbedReq) ([][]float32, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.cohere.com/v2/embed", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.CohereAPIKey)

	resp, err := c.client.Do(req)
	defer coolDown(c.cfg.RateLimit)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("cohere embed: %s: %s", resp.Status, string(b))
	}

	var er cohereEmbedResp
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("decode cohere embed response: %w", err)
	}
	return er.Embeddings.Float, nil
}

func (c *cohereEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := c.post(ctx, cohereEmbedReq{Model: c.cfg.CohereModelText, Texts: texts, InputType: "search_document"})
	if err != nil {
		c.log.Warnf("cohere embed_documents failed: %v", err)
		return nil, nil
	}
	return normalizeAll(vecs, c.cfg.NeedNorm), nil
}

func (c *cohereEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}
	vecs, err := c.post(ctx, cohereEmbedReq{Model: c.cfg.CohereModelText, Texts: []string{text}, InputType: "search_query"})
	if err != nil || len(vecs) == 0 {
		c.log.Warnf("cohere embed_query failed: %v", err)
		return nil, nil
	}
	return normalize(vecs[0], c.cfg.NeedNorm), nil
}

func (c *cohereEmbedder) EmbedTextForImageQuery(ctx context.Context, text string) ([]float32, error) {
	return c.EmbedQuery(ctx, text)
}

func (c *cohereEmbedder) EmbedImage(ctx context.Context, paths []string) ([][]float32, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	images := make([]cohereImageInput, 0, len(paths))
	for _, p := range paths {
		uri, err := imageDataURI(p)
		if err != nil {
			c.log.Warnf("cohere embed_image: read %s: %v", p, err)
			return nil, nil
		}
		images = append(images, cohereImageInput{ImageURL: uri})
	}
	vecs, err := c.post(ctx, cohereEmbedReq{Model: c.cfg.CohereModelImage, Images: images, InputType: "image"})
	if err != nil {
		c.log.Warnf("cohere embed_image failed: %v", err)
		return nil, nil
	}
	return normalizeAll(vecs, c.cfg.NeedNorm), nil
}
