package loader

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"manifold/internal/config"
	"manifold/internal/ragerr"
	"manifold/internal/ragmeta"
)

// HTMLLoader fetches a URL (sitemap, direct-linked file, or HTML page) and
// produces chunked text/image Documents, the web-content counterpart to
// FileLoader. Grounded on internal/tools/web/fetch.go's readability +
// html-to-markdown fetch pipeline, generalized from a single-page fetch
// into the recursive sitemap/asset-scan walk spec.md 4.E.2 describes.
type HTMLLoader struct {
	cfg        config.LoaderConfig
	fileLoader *FileLoader
	client     *http.Client
	log        Logger
	skip       SkipChecker
}

// SetSkipChecker wires the fast-path skip oracle in after construction,
// mirroring FileLoader.SetSkipChecker.
func (l *HTMLLoader) SetSkipChecker(sc SkipChecker) { l.skip = sc }

// skipSource reports whether source can be skipped entirely for spaceKey.
// No checker wired means never skip.
func (l *HTMLLoader) skipSource(ctx context.Context, spaceKey, source string) bool {
	if l.skip == nil || spaceKey == "" {
		return false
	}
	skip, err := l.skip.SkipUpdate(ctx, spaceKey, source)
	if err != nil {
		l.log.Warnf("htmlloader: skip_update check for %s: %v", source, err)
		return false
	}
	return skip
}

// NewHTMLLoader constructs an HTMLLoader. fileLoader supplies the
// per-extension handlers used for direct-linked-file delegation, so both
// loaders share one chunking/fingerprint implementation.
func NewHTMLLoader(cfg config.LoaderConfig, fileLoader *FileLoader, log Logger) *HTMLLoader {
	timeout := time.Duration(cfg.FetchTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTMLLoader{
		cfg:        cfg,
		fileLoader: fileLoader,
		client:     &http.Client{Timeout: timeout},
		log:        orNoopLogger(log),
	}
}

// Load fetches source (a URL), expanding sitemaps and optionally scanning
// page assets, and returns the accumulated text and image Documents.
func (l *HTMLLoader) Load(ctx context.Context, source, spaceKeyText, spaceKeyImage string) ([]ragmeta.Document, []ragmeta.Document, error) {
	st := &htmlLoadState{
		sourceCache: make(map[string]bool),
	}
	l.visit(ctx, source, source, spaceKeyText, spaceKeyImage, st)
	return st.textDocs, st.imageDocs, nil
}

type htmlLoadState struct {
	sourceCache           map[string]bool
	textDocs, imageDocs    []ragmeta.Document
}

func (l *HTMLLoader) cooldown() {
	rate := l.cfg.RequestsPerSecond
	if rate <= 0 {
		rate = 2
	}
	time.Sleep(time.Duration(float64(time.Second) / rate))
}

// visit dispatches rawURL by kind (sitemap, direct file, HTML page),
// skipping anything already present in st.sourceCache. Every error is
// logged and swallowed so the batch continues, per spec.md 4.E.2's error
// policy.
func (l *HTMLLoader) visit(ctx context.Context, rawURL, baseURL, spaceKeyText, spaceKeyImage string, st *htmlLoadState) {
	if st.sourceCache[rawURL] {
		return
	}
	st.sourceCache[rawURL] = true

	if strings.HasSuffix(strings.ToLower(pathOf(rawURL)), ".xml") {
		l.visitSitemap(ctx, rawURL, spaceKeyText, spaceKeyImage, st)
		return
	}

	if ext := directFileExt(rawURL); ext != "" {
		l.visitDirectFile(ctx, rawURL, baseURL, spaceKeyText, spaceKeyImage, st)
		return
	}

	l.visitPage(ctx, rawURL, spaceKeyText, spaceKeyImage, st)
}

// pathOf returns the URL's path component, falling back to the raw string
// if it doesn't parse (so a malformed URL is still treated as non-sitemap,
// non-direct-file, and gets a real fetch error from visitPage).
func pathOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Path
}

// directFileExt returns the supported extension of rawURL's last path
// segment if it contains a dot and is recognized, else "".
func directFileExt(rawURL string) string {
	p := pathOf(rawURL)
	base := path.Base(p)
	if !strings.Contains(base, ".") {
		return ""
	}
	ext := strings.ToLower(path.Ext(base))
	if supportedFileExt[ext] {
		return ext
	}
	return ""
}

func (l *HTMLLoader) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, ragerr.NewNetworkError("build request", err)
	}
	ua := l.cfg.UserAgent
	if ua == "" {
		ua = "ragserver"
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Sec-Fetch-Site", "same-origin")

	resp, err := l.client.Do(req)
	l.cooldown()
	if err != nil {
		return nil, ragerr.NewNetworkError("fetch "+rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, ragerr.NewNetworkError("fetch "+rawURL, fmt.Errorf("status %d", resp.StatusCode))
	}

	maxBytes := l.cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 100 * 1024 * 1024
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, ragerr.NewNetworkError("read body "+rawURL, err)
	}
	if int64(len(body)) > maxBytes {
		return nil, ragerr.NewNetworkError("fetch "+rawURL, fmt.Errorf("body exceeds %d bytes", maxBytes))
	}
	return body, nil
}

// sitemapXML is the minimal <urlset><url><loc> shape this loader expands;
// sitemap index files (<sitemapindex><sitemap><loc>) share the same <loc>
// element name so one struct covers both.
type sitemapXML struct {
	Locs []string `xml:"url>loc"`
	SubSitemaps []string `xml:"sitemap>loc"`
}

func (l *HTMLLoader) visitSitemap(ctx context.Context, rawURL, spaceKeyText, spaceKeyImage string, st *htmlLoadState) {
	body, err := l.fetch(ctx, rawURL)
	if err != nil {
		l.log.Warnf("htmlloader: sitemap %s: %v", rawURL, err)
		return
	}
	var sm sitemapXML
	if err := xml.Unmarshal(body, &sm); err != nil {
		l.log.Warnf("htmlloader: parse sitemap %s: %v", rawURL, err)
		return
	}
	for _, loc := range append(sm.Locs, sm.SubSitemaps...) {
		loc = strings.TrimSpace(loc)
		if loc == "" {
			continue
		}
		l.visit(ctx, loc, loc, spaceKeyText, spaceKeyImage, st)
	}
}

// visitDirectFile downloads rawURL to a temp file and delegates to the
// matching FileLoader handler, with source/base_source set to the URLs
// rather than the temp path, per spec.md 4.E.2 step 1.
func (l *HTMLLoader) visitDirectFile(ctx context.Context, rawURL, baseURL, spaceKeyText, spaceKeyImage string, st *htmlLoadState) {
	ext := directFileExt(rawURL)
	skipSpace := spaceKeyText
	if ext == ".jpg" || ext == ".jpeg" || ext == ".png" || ext == ".gif" {
		skipSpace = spaceKeyImage
	}
	if l.skipSource(ctx, skipSpace, rawURL) {
		return
	}

	body, err := l.fetch(ctx, rawURL)
	if err != nil {
		l.log.Warnf("htmlloader: direct file %s: %v", rawURL, err)
		return
	}
	tmp, err := os.CreateTemp("", ragmeta.TempFilePrefix+"dl_*"+ext)
	if err != nil {
		l.log.Warnf("htmlloader: temp file for %s: %v", rawURL, err)
		return
	}
	tmpPath := tmp.Name()
	keepTmp := false
	defer func() {
		if !keepTmp {
			ragmeta.CleanupTempFile(tmpPath, l.log.Warnf)
		}
	}()
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		l.log.Warnf("htmlloader: write temp file for %s: %v", rawURL, err)
		return
	}
	tmp.Close()

	fl := l.fileLoader
	var textDocs, imageDocs []ragmeta.Document
	switch ext {
	case ".txt":
		textDocs, err = fl.loadText(tmpPath, rawURL, baseURL, spaceKeyText)
	case ".md":
		textDocs, err = fl.loadMarkdown(tmpPath, rawURL, baseURL, spaceKeyText)
	case ".jpg", ".jpeg", ".png", ".gif":
		if spaceKeyImage == "" {
			return
		}
		var doc ragmeta.Document
		doc, err = fl.loadImage(tmpPath, rawURL, baseURL, spaceKeyImage)
		if err == nil {
			imageDocs = []ragmeta.Document{doc}
			// The image doc's payload is tmpPath; UpsertMulti removes it.
			keepTmp = true
		}
	case ".pdf":
		textDocs, imageDocs, err = fl.loadPDF(tmpPath, rawURL, baseURL, spaceKeyText, spaceKeyImage)
	}
	if err != nil {
		l.log.Warnf("htmlloader: load direct file %s: %v", rawURL, err)
		return
	}
	st.textDocs = append(st.textDocs, textDocs...)
	st.imageDocs = append(st.imageDocs, imageDocs...)
}

// visitPage fetches and parses an HTML page, extracting its main article
// text via readability, converting to markdown, and chunking it into
// WebText Documents. When asset-loading is enabled, it also scans the raw
// HTML for linked images and files to recurse into.
func (l *HTMLLoader) visitPage(ctx context.Context, rawURL, spaceKeyText, spaceKeyImage string, st *htmlLoadState) {
	if l.skipSource(ctx, spaceKeyText, rawURL) {
		return
	}

	body, err := l.fetch(ctx, rawURL)
	if err != nil {
		l.log.Warnf("htmlloader: page %s: %v", rawURL, err)
		return
	}
	pageHTML := string(body)

	base, _ := url.Parse(rawURL)
	articleHTML := pageHTML
	var title string
	if art, rerr := readability.FromReader(strings.NewReader(pageHTML), base); rerr == nil && strings.TrimSpace(art.Content) != "" {
		articleHTML = art.Content
		title = strings.TrimSpace(art.Title)
	}

	text, err := htmltomarkdown.ConvertString(articleHTML, converter.WithDomain(baseOrigin(rawURL)))
	if err != nil {
		l.log.Warnf("htmlloader: html to markdown for %s: %v", rawURL, err)
		return
	}
	if title != "" && !strings.HasPrefix(strings.TrimSpace(text), "# ") {
		text = "# " + title + "\n\n" + text
	}

	chunks := Split(text, l.fileLoader.ChunkSize, l.fileLoader.ChunkOverlap)
	docs, err := chunksToDocuments(chunks, rawURL, "", spaceKeyText, ragmeta.DummyFingerprint, nil, ragmeta.KindWebText)
	if err != nil {
		l.log.Warnf("htmlloader: build web text documents for %s: %v", rawURL, err)
		return
	}
	st.textDocs = append(st.textDocs, docs...)

	if !l.cfg.LoadAssets {
		return
	}
	for _, assetURL := range extractAssetURLs(pageHTML, rawURL) {
		if !sameOrigin(assetURL, rawURL) {
			continue
		}
		l.visit(ctx, assetURL, rawURL, spaceKeyText, spaceKeyImage, st)
	}
}

func baseOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func sameOrigin(a, b string) bool {
	ua, erra := url.Parse(a)
	ub, errb := url.Parse(b)
	if erra != nil || errb != nil {
		return false
	}
	return ua.Host == ub.Host
}

// extractAssetURLs walks pageHTML's DOM for <img src>, <a href>, and
// <source srcset> attributes whose extension is supported, resolving each
// against baseURL.
func extractAssetURLs(pageHTML, baseURL string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	doc, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return nil
	}

	var urls []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "img":
				if v, ok := attr(n, "src"); ok {
					addAssetURL(&urls, base, v)
				}
			case "a":
				if v, ok := attr(n, "href"); ok {
					addAssetURL(&urls, base, v)
				}
			case "source":
				if v, ok := attr(n, "srcset"); ok {
					for _, part := range strings.Split(v, ",") {
						candidate := strings.Fields(strings.TrimSpace(part))
						if len(candidate) > 0 {
							addAssetURL(&urls, base, candidate[0])
						}
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return urls
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func addAssetURL(urls *[]string, base *url.URL, raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return
	}
	resolved := base.ResolveReference(ref).String()
	if directFileExt(resolved) == "" {
		return
	}
	*urls = append(*urls, resolved)
}
