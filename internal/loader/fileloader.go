package loader

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"manifold/internal/ragerr"
	"manifold/internal/ragmeta"
)

// Logger is the narrow logging capability loaders need.
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

// SkipChecker is the store manager's fast-path oracle (§4.D skip_update):
// when check_update is disabled and a source is already known, a loader
// should skip downloading/parsing it at all rather than redoing that work
// only to have the store drop the result after embedding.
type SkipChecker interface {
	SkipUpdate(ctx context.Context, spaceKey, source string) (bool, error)
}

// headFingerprintBytes bounds how much of a file is hashed for its
// fingerprint, matching ragserver/core/metadata.py's file_fingerprint
// default of 65536.
const headFingerprintBytes = 65536

var supportedFileExt = map[string]bool{
	".txt": true, ".md": true,
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".pdf": true,
}

// FileLoader walks a filesystem root, dispatching each recognized file
// extension to a handler that produces chunked text Documents and, for
// images and PDF page images, image-path Documents. Grounded on
// internal/documents/reader.go's directory-walk idiom, generalized from
// a flat text-only stream to the extension-dispatch table spec.md
// 4.E.1 describes.
type FileLoader struct {
	ChunkSize    int
	ChunkOverlap int
	log          Logger
	skip         SkipChecker
}

// NewFileLoader constructs a FileLoader with the given chunking params.
func NewFileLoader(chunkSize, chunkOverlap int, log Logger) *FileLoader {
	return &FileLoader{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap, log: orNoopLogger(log)}
}

// SetSkipChecker wires the fast-path skip oracle in after construction,
// since the orchestrator only has a store manager (and an embed dimension
// to probe) once it has built the loaders that need it.
func (l *FileLoader) SetSkipChecker(sc SkipChecker) { l.skip = sc }

// skipSource reports whether source can be skipped entirely for spaceKey,
// consulting the wired SkipChecker. No checker wired means never skip.
func (l *FileLoader) skipSource(ctx context.Context, spaceKey, source string) bool {
	if l.skip == nil || spaceKey == "" {
		return false
	}
	skip, err := l.skip.SkipUpdate(ctx, spaceKey, source)
	if err != nil {
		l.log.Warnf("fileloader: skip_update check for %s: %v", source, err)
		return false
	}
	return skip
}

// Load walks root (a file or directory) and returns text and image
// Documents. spaceKeyImage empty means the active embedder is text-only:
// image files and PDF page images are skipped (and any temp files
// created for them are removed immediately) rather than produced with no
// space to write to.
func (l *FileLoader) Load(ctx context.Context, root, spaceKeyText, spaceKeyImage string) ([]ragmeta.Document, []ragmeta.Document, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, ragerr.NewIOError("resolve absolute path", err)
	}

	sourceCache := make(map[string]bool)
	var textDocs, imageDocs []ragmeta.Document

	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !supportedFileExt[ext] {
			l.log.Warnf("fileloader: skipping unsupported extension %s", path)
			return nil
		}
		if sourceCache[path] {
			return nil
		}
		sourceCache[path] = true

		switch ext {
		case ".txt":
			if l.skipSource(ctx, spaceKeyText, path) {
				return nil
			}
			docs, err := l.loadText(path, path, "", spaceKeyText)
			if err != nil {
				l.log.Warnf("fileloader: %s: %v", path, err)
				return nil
			}
			textDocs = append(textDocs, docs...)
		case ".md":
			if l.skipSource(ctx, spaceKeyText, path) {
				return nil
			}
			docs, err := l.loadMarkdown(path, path, "", spaceKeyText)
			if err != nil {
				l.log.Warnf("fileloader: %s: %v", path, err)
				return nil
			}
			textDocs = append(textDocs, docs...)
		case ".jpg", ".jpeg", ".png", ".gif":
			if spaceKeyImage == "" {
				return nil
			}
			if l.skipSource(ctx, spaceKeyImage, path) {
				return nil
			}
			doc, err := l.loadImage(path, path, "", spaceKeyImage)
			if err != nil {
				l.log.Warnf("fileloader: %s: %v", path, err)
				return nil
			}
			imageDocs = append(imageDocs, doc)
		case ".pdf":
			// PDFs carry text (always) and optionally page images; the
			// skip check uses the text space since that's the content
			// every PDF produces.
			if l.skipSource(ctx, spaceKeyText, path) {
				return nil
			}
			td, id, err := l.loadPDF(path, path, "", spaceKeyText, spaceKeyImage)
			if err != nil {
				l.log.Warnf("fileloader: %s: %v", path, err)
				return nil
			}
			textDocs = append(textDocs, td...)
			imageDocs = append(imageDocs, id...)
		}
		return nil
	})
	if walkErr != nil {
		return nil, nil, ragerr.NewIOError("walk file tree", walkErr)
	}
	return textDocs, imageDocs, nil
}

// loadText reads readPath from disk and chunks it into Documents tagged
// with the given logical source/baseSource (which for a plain filesystem
// walk are readPath and "" respectively; HTMLLoader overrides both when
// delegating a downloaded direct-linked file).
func (l *FileLoader) loadText(readPath, source, baseSource, spaceKey string) ([]ragmeta.Document, error) {
	data, err := os.ReadFile(readPath)
	if err != nil {
		return nil, ragerr.NewIOError("read file", err)
	}
	text := strings.ToValidUTF8(string(data), "")
	fp, err := ragmeta.FileFingerprint(readPath, headFingerprintBytes)
	if err != nil {
		return nil, err
	}
	return chunksToDocuments(Split(text, l.ChunkSize, l.ChunkOverlap), source, baseSource, spaceKey, fp, nil, ragmeta.KindTextFile)
}

func (l *FileLoader) loadMarkdown(readPath, source, baseSource, spaceKey string) ([]ragmeta.Document, error) {
	data, err := os.ReadFile(readPath)
	if err != nil {
		return nil, ragerr.NewIOError("read file", err)
	}
	raw := strings.ToValidUTF8(string(data), "")
	fp, err := ragmeta.FileFingerprint(readPath, headFingerprintBytes)
	if err != nil {
		return nil, err
	}

	cleaned, err := extractMarkdownText(raw)
	if err != nil {
		l.log.Warnf("fileloader: markdown extraction failed for %s, falling back to plain text: %v", source, err)
		return chunksToDocuments(Split(raw, l.ChunkSize, l.ChunkOverlap), source, baseSource, spaceKey, fp, nil, ragmeta.KindTextFile)
	}

	var chunks []string
	for _, section := range splitMarkdownSections(cleaned) {
		chunks = append(chunks, Split(section, l.ChunkSize, l.ChunkOverlap)...)
	}
	return chunksToDocuments(chunks, source, baseSource, spaceKey, fp, nil, ragmeta.KindTextFile)
}

func (l *FileLoader) loadImage(readPath, source, baseSource, spaceKey string) (ragmeta.Document, error) {
	fp, err := ragmeta.FileFingerprint(readPath, headFingerprintBytes)
	if err != nil {
		return ragmeta.Document{}, err
	}
	meta := map[string]any{
		ragmeta.KeyID:        ragmeta.StableID(ragmeta.BuildKey(ragmeta.EmbedTypeImage, source, fp.Key(), nil, nil)).String(),
		ragmeta.KeySource:    source,
		ragmeta.KeyBaseSource: baseSource,
		ragmeta.KeySpaceKey:  spaceKey,
		ragmeta.KeyEmbedType: ragmeta.EmbedTypeImage,
		ragmeta.KeyFPSize:    fp.Size,
		ragmeta.KeyFPMtime:   fp.Mtime,
		ragmeta.KeyFPSHA256:  fp.SHA256Head,
	}
	if err := ragmeta.AssertRequiredKeys(meta, ragmeta.KindImageFile); err != nil {
		return ragmeta.Document{}, err
	}
	return ragmeta.Document{Payload: readPath, Metadata: meta}, nil
}

func (l *FileLoader) loadPDF(readPath, source, baseSource, spaceKeyText, spaceKeyImage string) ([]ragmeta.Document, []ragmeta.Document, error) {
	fp, err := ragmeta.FileFingerprint(readPath, headFingerprintBytes)
	if err != nil {
		return nil, nil, err
	}
	pages, err := readPDF(readPath)
	if err != nil {
		return nil, nil, err
	}

	var textDocs, imageDocs []ragmeta.Document
	for _, page := range pages {
		chunks := Split(page.Text, l.ChunkSize, l.ChunkOverlap)
		for i, chunk := range chunks {
			meta := map[string]any{
				ragmeta.KeyID:        ragmeta.StableID(ragmeta.BuildKey(ragmeta.EmbedTypeText, source, fp.Key(), &page.Number, &i)).String(),
				ragmeta.KeySource:    source,
				ragmeta.KeyBaseSource: baseSource,
				ragmeta.KeySpaceKey:  spaceKeyText,
				ragmeta.KeyEmbedType: ragmeta.EmbedTypeText,
				ragmeta.KeyFPSize:    fp.Size,
				ragmeta.KeyFPMtime:   fp.Mtime,
				ragmeta.KeyFPSHA256:  fp.SHA256Head,
				ragmeta.KeyPage:      page.Number,
				ragmeta.KeyChunkNo:   i,
			}
			if err := ragmeta.AssertRequiredKeys(meta, ragmeta.KindPDFText); err != nil {
				return nil, nil, err
			}
			textDocs = append(textDocs, ragmeta.Document{Payload: chunk, Metadata: meta})
		}

		if spaceKeyImage == "" {
			for _, imgPath := range page.Images {
				ragmeta.CleanupTempFile(imgPath, l.log.Warnf)
			}
			continue
		}
		for i, imgPath := range page.Images {
			meta := map[string]any{
				ragmeta.KeyID:        ragmeta.StableID(ragmeta.BuildKey(ragmeta.EmbedTypeImage, source, fp.Key(), &page.Number, &i)).String(),
				ragmeta.KeySource:    source,
				ragmeta.KeyBaseSource: baseSource,
				ragmeta.KeySpaceKey:  spaceKeyImage,
				ragmeta.KeyEmbedType: ragmeta.EmbedTypeImage,
				ragmeta.KeyFPSize:    fp.Size,
				ragmeta.KeyFPMtime:   fp.Mtime,
				ragmeta.KeyFPSHA256:  fp.SHA256Head,
				ragmeta.KeyPage:      page.Number,
				ragmeta.KeyImageNo:   i,
			}
			if err := ragmeta.AssertRequiredKeys(meta, ragmeta.KindPDFImage); err != nil {
				return nil, nil, err
			}
			imageDocs = append(imageDocs, ragmeta.Document{Payload: imgPath, Metadata: meta})
		}
	}
	return textDocs, imageDocs, nil
}

func chunksToDocuments(chunks []string, source, baseSource, spaceKey string, fp ragmeta.Fingerprint, page *int, kind ragmeta.EntityKind) ([]ragmeta.Document, error) {
	docs := make([]ragmeta.Document, 0, len(chunks))
	for i, chunk := range chunks {
		meta := map[string]any{
			ragmeta.KeyID:        ragmeta.StableID(ragmeta.BuildKey(ragmeta.EmbedTypeText, source, fp.Key(), page, &i)).String(),
			ragmeta.KeySource:    source,
			ragmeta.KeyBaseSource: baseSource,
			ragmeta.KeySpaceKey:  spaceKey,
			ragmeta.KeyEmbedType: ragmeta.EmbedTypeText,
			ragmeta.KeyFPSize:    fp.Size,
			ragmeta.KeyFPMtime:   fp.Mtime,
			ragmeta.KeyFPSHA256:  fp.SHA256Head,
			ragmeta.KeyChunkNo:   i,
		}
		if err := ragmeta.AssertRequiredKeys(meta, kind); err != nil {
			return nil, err
		}
		docs = append(docs, ragmeta.Document{Payload: chunk, Metadata: meta})
	}
	return docs, nil
}
