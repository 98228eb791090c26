// Package httpapi implements the thin HTTP server shell (§6.1): a
// net/http.ServeMux wired to a server.State, translating each JSON
// request into a call on the orchestrator, retriever, or State itself.
package httpapi

import (
	"net/http"

	"manifold/internal/server"
)

// Server exposes ragserver's HTTP endpoints.
type Server struct {
	state *server.State
	mux   *http.ServeMux
}

// NewServer creates the HTTP API server wired to state.
func NewServer(state *server.State) *Server {
	s := &Server{state: state, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /v1/health", s.handleHealth)
	s.mux.HandleFunc("POST /v1/reload", s.handleReload)
	s.mux.HandleFunc("POST /v1/upload", s.handleUpload)
	s.mux.HandleFunc("POST /v1/ingest/path", s.handleIngestPath)
	s.mux.HandleFunc("POST /v1/ingest/path_list", s.handleIngestPathList)
	s.mux.HandleFunc("POST /v1/ingest/url", s.handleIngestURL)
	s.mux.HandleFunc("POST /v1/ingest/url_list", s.handleIngestURLList)
	s.mux.HandleFunc("POST /v1/query/text", s.handleQueryText)
	s.mux.HandleFunc("POST /v1/query/text_multi", s.handleQueryTextMulti)
	s.mux.HandleFunc("POST /v1/query/image", s.handleQueryImage)
}
