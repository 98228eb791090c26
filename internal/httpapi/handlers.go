package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"manifold/internal/embedding"
	"manifold/internal/ingest"
	"manifold/internal/ragerr"
	"manifold/internal/ragmeta"
	"manifold/internal/retrieve"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	storeName, embedName, rerankName := s.state.Health()
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"store":  storeName,
		"embed":  embedName,
		"rerank": rerankName,
	})
}

type reloadRequest struct {
	Target string `json:"target"`
	Name   string `json:"name"`
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	var req reloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.state.Reload(r.Context(), req.Target, req.Name); err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type uploadedFile struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SavePath    string `json:"save_path"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, errors.New("no files were uploaded"))
		return
	}

	uploadDir := s.state.UploadDir()
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	results := make([]uploadedFile, 0, len(files))
	for _, fh := range files {
		src, err := fh.Open()
		if err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
		savePath := filepath.Join(uploadDir, uuid.NewString()+"_"+filepath.Base(fh.Filename))
		dst, err := os.Create(savePath)
		if err != nil {
			src.Close()
			respondError(w, http.StatusInternalServerError, err)
			return
		}
		_, copyErr := dst.ReadFrom(src)
		src.Close()
		dst.Close()
		if copyErr != nil {
			respondError(w, http.StatusInternalServerError, copyErr)
			return
		}
		results = append(results, uploadedFile{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			SavePath:    savePath,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"files": results})
}

type pathRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleIngestPath(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	var ingestErr error
	s.state.WithRead(func(o *ingest.Orchestrator, _ *retrieve.Retriever, _ embedding.TextEmbedder) {
		ingestErr = o.FromPath(r.Context(), req.Path)
	})
	if ingestErr != nil {
		respondError(w, statusFromError(ingestErr), ingestErr)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleIngestPathList(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	var ingestErr error
	s.state.WithRead(func(o *ingest.Orchestrator, _ *retrieve.Retriever, _ embedding.TextEmbedder) {
		ingestErr = o.FromPathList(r.Context(), req.Path)
	})
	if ingestErr != nil {
		respondError(w, statusFromError(ingestErr), ingestErr)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type urlRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleIngestURL(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	var ingestErr error
	s.state.WithRead(func(o *ingest.Orchestrator, _ *retrieve.Retriever, _ embedding.TextEmbedder) {
		ingestErr = o.FromURL(r.Context(), req.URL)
	})
	if ingestErr != nil {
		respondError(w, statusFromError(ingestErr), ingestErr)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleIngestURLList(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	var ingestErr error
	s.state.WithRead(func(o *ingest.Orchestrator, _ *retrieve.Retriever, _ embedding.TextEmbedder) {
		ingestErr = o.FromURLList(r.Context(), req.Path)
	})
	if ingestErr != nil {
		respondError(w, statusFromError(ingestErr), ingestErr)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type queryRequest struct {
	Query string `json:"query"`
	Path  string `json:"path"`
	TopK  int    `json:"topk"`
}

type documentView struct {
	PageContent string         `json:"page_content"`
	Metadata    map[string]any `json:"metadata"`
}

func toDocumentViews(docs []ragmeta.Document) []documentView {
	out := make([]documentView, len(docs))
	for i, d := range docs {
		out[i] = documentView{PageContent: d.Payload, Metadata: d.Metadata}
	}
	return out
}

func (s *Server) handleQueryText(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	var docs []ragmeta.Document
	var queryErr error
	s.state.WithRead(func(_ *ingest.Orchestrator, ret *retrieve.Retriever, embedder embedding.TextEmbedder) {
		docs, queryErr = ret.QueryText(r.Context(), embedder, req.Query, req.TopK)
	})
	if queryErr != nil {
		respondError(w, statusFromError(queryErr), queryErr)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"documents": toDocumentViews(docs)})
}

func (s *Server) handleQueryTextMulti(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	var docs []ragmeta.Document
	var queryErr error
	s.state.WithRead(func(_ *ingest.Orchestrator, ret *retrieve.Retriever, embedder embedding.TextEmbedder) {
		multi, ok := embedder.(embedding.MultimodalEmbedder)
		if !ok {
			queryErr = fmt.Errorf("embed provider %s is text-only, text_multi query requires a multimodal embedder", embedder.Name())
			return
		}
		docs, queryErr = ret.QueryTextMulti(r.Context(), multi, req.Query, req.TopK)
	})
	if queryErr != nil {
		respondError(w, statusFromError(queryErr), queryErr)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"documents": toDocumentViews(docs)})
}

func (s *Server) handleQueryImage(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	var docs []ragmeta.Document
	var queryErr error
	s.state.WithRead(func(_ *ingest.Orchestrator, ret *retrieve.Retriever, embedder embedding.TextEmbedder) {
		multi, ok := embedder.(embedding.MultimodalEmbedder)
		if !ok {
			queryErr = fmt.Errorf("embed provider %s is text-only, image query requires a multimodal embedder", embedder.Name())
			return
		}
		docs, queryErr = ret.QueryImage(r.Context(), multi, req.Path, req.TopK)
	})
	if queryErr != nil {
		respondError(w, statusFromError(queryErr), queryErr)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"documents": toDocumentViews(docs)})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]any{"detail": err.Error()})
}

// statusFromError maps the error taxonomy (§7) to an HTTP status: config
// errors (bad reload target/provider) are the caller's fault, everything
// else is a 500 per the propagation policy's "surface to the HTTP
// boundary as 500" rule.
func statusFromError(err error) int {
	if ragerr.Is(err, ragerr.KindConfig) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
