package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manifold/internal/config"
	"manifold/internal/ragmeta"
)

func docsOf(payloads ...string) []ragmeta.Document {
	out := make([]ragmeta.Document, len(payloads))
	for i, p := range payloads {
		out[i] = ragmeta.Document{Payload: p, Metadata: map[string]any{}}
	}
	return out
}

func TestNoneReranker_TruncatesToTopK(t *testing.T) {
	docs := docsOf("a", "b", "c")
	out, err := NoneReranker{}.Rerank(context.Background(), docs, "q", 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Payload)
}

func TestNoneReranker_ZeroTopKReturnsAll(t *testing.T) {
	docs := docsOf("a", "b")
	out, err := NoneReranker{}.Rerank(context.Background(), docs, "q", 0)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestLocalHF_ReordersByResultIndex(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := rerankResp{Results: []rerankResultItem{{Index: 2}, {Index: 0}}}
		b, _ := json.Marshal(resp)
		w.Write(b)
	}))
	defer ts.Close()

	cfg := config.RerankConfig{Provider: "local", LocalBaseURL: ts.URL, LocalModel: "m"}
	r := NewLocalHF(cfg, nil)

	docs := docsOf("a", "b", "c")
	out, err := r.Rerank(context.Background(), docs, "q", 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "c", out[0].Payload)
	assert.Equal(t, "a", out[1].Payload)
}

func TestLocalHF_PadsFromHeadWhenFewerResultsThanTopK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := rerankResp{Results: []rerankResultItem{{Index: 1}}}
		b, _ := json.Marshal(resp)
		w.Write(b)
	}))
	defer ts.Close()

	cfg := config.RerankConfig{Provider: "local", LocalBaseURL: ts.URL, LocalModel: "m"}
	r := NewLocalHF(cfg, nil)

	docs := docsOf("a", "b", "c")
	out, err := r.Rerank(context.Background(), docs, "q", 3)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "b", out[0].Payload)
	assert.Equal(t, "a", out[1].Payload)
	assert.Equal(t, "c", out[2].Payload)
}

func TestLocalHF_DropsEmptyDocumentsBeforeSubmitting(t *testing.T) {
	var gotDocs []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankReq
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotDocs = req.Documents
		resp := rerankResp{Results: []rerankResultItem{{Index: 0}}}
		b, _ := json.Marshal(resp)
		w.Write(b)
	}))
	defer ts.Close()

	cfg := config.RerankConfig{Provider: "local", LocalBaseURL: ts.URL, LocalModel: "m"}
	r := NewLocalHF(cfg, nil)

	docs := docsOf("a", "", "  ")
	_, err := r.Rerank(context.Background(), docs, "q", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, gotDocs)
}

func TestLocalHF_BackendFailureFallsBackToHeadOrder(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	cfg := config.RerankConfig{Provider: "local", LocalBaseURL: ts.URL, LocalModel: "m"}
	r := NewLocalHF(cfg, nil)

	docs := docsOf("a", "b", "c")
	out, err := r.Rerank(context.Background(), docs, "q", 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Payload)
	assert.Equal(t, "b", out[1].Payload)
}

func TestFactory_SelectsProviderByName(t *testing.T) {
	r, err := New(config.RerankConfig{Provider: "none"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "none", r.Name())

	r, err = New(config.RerankConfig{Provider: "cohere"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "cohere", r.Name())

	_, err = New(config.RerankConfig{Provider: "bogus"}, nil)
	assert.Error(t, err)
}
