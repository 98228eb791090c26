// Package server holds the process-wide ServerState container: the
// store/embed/rerank triple plus the ingest orchestrator and retriever
// built on top of them, replacing the module-global store/embed/rerank
// variables a simpler design would reach for with one struct behind a
// single reader/writer lock (Design Note "Global mutable state").
package server

import (
	"context"
	"fmt"
	"sync"

	"manifold/internal/config"
	"manifold/internal/embedding"
	"manifold/internal/ingest"
	"manifold/internal/ragerr"
	"manifold/internal/rerank"
	"manifold/internal/retrieve"
	"manifold/internal/store"
)

// Logger is the narrow logging capability the server and its dependencies
// need.
type Logger interface {
	Warnf(format string, args ...any)
	Infof(format string, args ...any)
}

// State is the single container injected into HTTP handlers. Reload
// replaces exactly one of backend/embedder/reranker under a writer lock;
// every other operation takes a reader lock, matching the concurrency
// redesign in Design Note "Concurrency redesign": queries across
// unrelated spaces never block each other, and a reload can never
// observe a half-built orchestrator or retriever.
type State struct {
	mu  sync.RWMutex
	cfg config.Config
	log Logger

	backend  store.Backend
	storeMgr *store.Manager
	embedder embedding.TextEmbedder
	reranker rerank.Reranker

	orchestrator *ingest.Orchestrator
	retriever    *retrieve.Retriever
}

// New builds a State from cfg, constructing the store backend, embedder,
// and reranker named by cfg and wiring the orchestrator/retriever on top.
func New(ctx context.Context, cfg config.Config, log Logger) (*State, error) {
	s := &State{cfg: cfg, log: log}
	if err := s.buildStore(ctx); err != nil {
		return nil, err
	}
	if err := s.buildEmbedder(); err != nil {
		return nil, err
	}
	if err := s.buildReranker(); err != nil {
		return nil, err
	}
	s.rebuild()
	return s, nil
}

func (s *State) buildStore(ctx context.Context) error {
	backend, err := store.NewBackend(ctx, s.cfg.Store)
	if err != nil {
		return ragerr.NewStoreError("build store backend", err)
	}
	s.backend = backend
	s.storeMgr = store.NewManager(backend, s.cfg.Store, s.log)
	return nil
}

func (s *State) buildEmbedder() error {
	embedder, err := embedding.New(s.cfg.Embed, s.log)
	if err != nil {
		return ragerr.NewEmbedError("build embedder", err)
	}
	s.embedder = embedder
	return nil
}

func (s *State) buildReranker() error {
	reranker, err := rerank.New(s.cfg.Rerank, s.log)
	if err != nil {
		return ragerr.NewRerankError("build reranker", err)
	}
	s.reranker = reranker
	return nil
}

// rebuild reconstructs the orchestrator and retriever from the current
// backend/embedder/reranker. Called after construction and after every
// reload, since both hold one of the three directly (the orchestrator
// holds the embedder and manager; the retriever holds the manager and
// reranker).
func (s *State) rebuild() {
	s.orchestrator = ingest.New(s.embedder, s.storeMgr, s.cfg.Loader, ingest.WithLogger(s.log))
	s.retriever = retrieve.New(s.storeMgr, s.reranker, s.cfg.Retrieve, retrieve.WithLogger(s.log))
}

// Reload swaps the named component (store, embed, or rerank) for the
// variant named by name, validating the resulting configuration before
// committing it. Held as an exclusive writer lock for its entire
// duration, so no query or ingest call can observe a half-swapped state
// and any in-flight call finishes on the old dependency set first.
func (s *State) Reload(ctx context.Context, target, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg
	switch target {
	case "store":
		next.Store.Provider = name
	case "embed":
		next.Embed.Provider = name
	case "rerank":
		next.Rerank.Provider = name
	default:
		return ragerr.NewConfigError("reload", fmt.Errorf("unknown reload target %q", target))
	}
	if err := config.Validate(next); err != nil {
		return ragerr.NewConfigError("reload", err)
	}

	prevCfg := s.cfg
	s.cfg = next
	var err error
	switch target {
	case "store":
		err = s.buildStore(ctx)
	case "embed":
		err = s.buildEmbedder()
	case "rerank":
		err = s.buildReranker()
	}
	if err != nil {
		s.cfg = prevCfg
		return err
	}
	s.rebuild()
	return nil
}

// Health reports the active provider name for each of the three
// components.
func (s *State) Health() (storeName, embedName, rerankName string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend.Name(), s.embedder.Name(), s.reranker.Name()
}

// WithRead runs fn with a reader lock held, handing it the current
// orchestrator and retriever. Used by every handler but Reload.
func (s *State) WithRead(fn func(o *ingest.Orchestrator, r *retrieve.Retriever, embedder embedding.TextEmbedder)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.orchestrator, s.retriever, s.embedder)
}

// UploadDir returns the configured upload directory.
func (s *State) UploadDir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.UploadDir
}
