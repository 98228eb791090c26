// Package ingest implements the Ingest Orchestrator (F. Ingest
// Orchestrator): the four-entry-point driver that turns a path, path
// list, URL, or URL list into upserted Documents.
package ingest

import (
	"bufio"
	"context"
	"os"
	"strings"

	"manifold/internal/config"
	"manifold/internal/embedding"
	"manifold/internal/loader"
	"manifold/internal/ragerr"
	"manifold/internal/ragmeta"
	"manifold/internal/store"
)

// Logger is the narrow logging capability the orchestrator needs.
type Logger interface {
	Warnf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warnf(string, ...any) {}

func orNoopLogger(l Logger) Logger {
	if l == nil {
		return noopLogger{}
	}
	return l
}

// Orchestrator drives FromPath/FromPathList/FromURL/FromURLList, grounded
// on internal/rag/service/service.go's Service.Ingest scaffolding: a
// functional-options constructed type that wires an embedder, a store
// manager, and the two loaders, then runs the five-step sequence of
// spec.md 4.F for each input.
type Orchestrator struct {
	embedder   embedding.TextEmbedder
	store      *store.Manager
	fileLoader *loader.FileLoader
	htmlLoader *loader.HTMLLoader
	log        Logger

	dim    int
	dimSet bool
}

// Option configures an Orchestrator during construction.
type Option func(*Orchestrator)

// WithLogger sets a custom logger.
func WithLogger(l Logger) Option { return func(o *Orchestrator) { o.log = l } }

// New wires an Orchestrator from its dependencies.
func New(embedder embedding.TextEmbedder, mgr *store.Manager, cfg config.LoaderConfig, opts ...Option) *Orchestrator {
	fl := loader.NewFileLoader(cfg.ChunkSize, cfg.ChunkOverlap, nil)
	hl := loader.NewHTMLLoader(cfg, fl, nil)
	o := &Orchestrator{
		embedder:   embedder,
		store:      mgr,
		fileLoader: fl,
		htmlLoader: hl,
		log:        noopLogger{},
	}
	fl.SetSkipChecker(skipAdapter{o})
	hl.SetSkipChecker(skipAdapter{o})
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// skipAdapter bridges store.Manager.SkipUpdate (which wants an embed
// dimension) to loader.SkipChecker (which only knows about sources),
// probing the dimension the same way upsertAll does so the loaders can
// consult the fast-path oracle before fetching or parsing anything.
type skipAdapter struct{ o *Orchestrator }

func (a skipAdapter) SkipUpdate(ctx context.Context, spaceKey, source string) (bool, error) {
	dim, err := a.o.dimension(ctx)
	if err != nil {
		return false, err
	}
	return a.o.store.SkipUpdate(ctx, spaceKey, dim, source)
}

// FromPath ingests a single filesystem root (file or directory).
func (o *Orchestrator) FromPath(ctx context.Context, root string) error {
	textDocs, imageDocs, err := o.fileLoader.Load(ctx, root, o.spaceKeyText(), o.spaceKeyImage())
	if err != nil {
		return ragerr.NewIngestError("load path "+root, err)
	}
	return o.upsertAll(ctx, textDocs, imageDocs)
}

// FromPathList ingests every non-blank, non-comment line of listPath as a
// separate FromPath call.
func (o *Orchestrator) FromPathList(ctx context.Context, listPath string) error {
	lines, err := readListFile(listPath)
	if err != nil {
		return ragerr.NewIngestError("read path list "+listPath, err)
	}
	for _, p := range lines {
		if err := o.FromPath(ctx, p); err != nil {
			o.log.Warnf("ingest: path %s: %v", p, err)
		}
	}
	return nil
}

// FromURL ingests a single URL (sitemap, direct-linked file, or HTML
// page).
func (o *Orchestrator) FromURL(ctx context.Context, url string) error {
	textDocs, imageDocs, err := o.htmlLoader.Load(ctx, url, o.spaceKeyText(), o.spaceKeyImage())
	if err != nil {
		return ragerr.NewIngestError("load url "+url, err)
	}
	return o.upsertAll(ctx, textDocs, imageDocs)
}

// FromURLList ingests every non-blank, non-comment line of listPath as a
// separate FromURL call.
func (o *Orchestrator) FromURLList(ctx context.Context, listPath string) error {
	lines, err := readListFile(listPath)
	if err != nil {
		return ragerr.NewIngestError("read url list "+listPath, err)
	}
	for _, u := range lines {
		if err := o.FromURL(ctx, u); err != nil {
			o.log.Warnf("ingest: url %s: %v", u, err)
		}
	}
	return nil
}

func (o *Orchestrator) spaceKeyText() string { return o.embedder.SpaceKeyText() }

func (o *Orchestrator) spaceKeyImage() string {
	multi, ok := o.embedder.(embedding.MultimodalEmbedder)
	if !ok {
		return ""
	}
	return multi.SpaceKeyMulti()
}

// upsertAll performs steps 4-5 of spec.md 4.F: image documents first (via
// UpsertMulti, which computes their vectors), then text documents (after
// this orchestrator computes their vectors).
func (o *Orchestrator) upsertAll(ctx context.Context, textDocs, imageDocs []ragmeta.Document) error {
	dim, err := o.dimension(ctx)
	if err != nil {
		return ragerr.NewIngestError("probe embed dimension", err)
	}

	if len(imageDocs) > 0 {
		multi, ok := o.embedder.(embedding.MultimodalEmbedder)
		if !ok {
			o.log.Warnf("ingest: %d image documents produced but embedder %s is text-only, dropping", len(imageDocs), o.embedder.Name())
		} else if _, err := o.store.UpsertMulti(ctx, multi.SpaceKeyMulti(), dim, imageDocs, multi); err != nil {
			return ragerr.NewIngestError("upsert images", err)
		}
	}

	if len(textDocs) > 0 {
		texts := make([]string, len(textDocs))
		for i, d := range textDocs {
			texts[i] = d.Payload
		}
		vectors, err := o.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return ragerr.NewIngestError("embed documents", err)
		}
		if len(vectors) != len(textDocs) {
			o.log.Warnf("ingest: embedder %s returned %d vectors for %d documents, nothing upserted", o.embedder.Name(), len(vectors), len(textDocs))
			return nil
		}
		if _, err := o.store.Upsert(ctx, o.embedder.SpaceKeyText(), dim, textDocs, vectors); err != nil {
			return ragerr.NewIngestError("upsert documents", err)
		}
	}
	return nil
}

// dimension probes and caches the embedder's vector width via a single
// EmbedQuery call. A multimodal embedder's text and image spaces share
// this dimension, since a multimodal model projects both modalities into
// one common vector space by construction.
func (o *Orchestrator) dimension(ctx context.Context) (int, error) {
	if o.dimSet {
		return o.dim, nil
	}
	vec, err := o.embedder.EmbedQuery(ctx, " ")
	if err != nil {
		return 0, err
	}
	if len(vec) == 0 {
		return 0, ragerr.NewEmbedError("probe dimension", errEmptyProbeVector)
	}
	o.dim = len(vec)
	o.dimSet = true
	return o.dim, nil
}

var errEmptyProbeVector = errEmptyProbe{}

type errEmptyProbe struct{}

func (errEmptyProbe) Error() string { return "embedder returned an empty probe vector" }

func readListFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ragerr.NewIOError("open list file", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, ragerr.NewIOError("scan list file", err)
	}
	return lines, nil
}
