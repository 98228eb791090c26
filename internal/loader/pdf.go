package loader

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"

	"github.com/ledongthuc/pdf"

	"manifold/internal/ragerr"
	"manifold/internal/ragmeta"
)

// pdfPage is one page's extracted content: its text and any embedded
// images written out as temp PNGs.
type pdfPage struct {
	Number int
	Text   string
	Images []string // temp file paths, caller-owned for cleanup after upsert
}

// readPDF extracts per-page text and embedded images from path.
// Grounded on internal/fileextract/pdf.go's ledongthuc/pdf.Open +
// Page.GetPlainText usage for text; image extraction walks each page's
// XObject resources directly via the library's low-level Value API
// (Key/Reader), since GetPlainText only covers text operators. CMYK
// images are converted to RGB before encoding, per spec.md 4.E.1.
func readPDF(path string) ([]pdfPage, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, ragerr.NewIOError("open pdf", err)
	}
	defer f.Close()

	pages := make([]pdfPage, 0, r.NumPage())
	for n := 1; n <= r.NumPage(); n++ {
		page := r.Page(n)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			text = ""
		}
		images, err := extractPageImages(page, n)
		if err != nil {
			images = nil
		}
		pages = append(pages, pdfPage{Number: n, Text: text, Images: images})
	}
	return pages, nil
}

// extractPageImages walks page's XObject resources, writing each Image
// subtype object out as a temp PNG (converting CMYK samples to RGB
// first), and returns the written paths.
func extractPageImages(page pdf.Page, pageNum int) ([]string, error) {
	resources := page.V.Key("Resources")
	xobjects := resources.Key("XObject")
	if xobjects.IsNull() {
		return nil, nil
	}

	var paths []string
	for _, key := range xobjects.Keys() {
		obj := xobjects.Key(key)
		if obj.Key("Subtype").Name() != "Image" {
			continue
		}
		path, err := writeImageObject(obj, pageNum, key)
		if err != nil {
			continue // best-effort: skip images this library can't decode
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeImageObject(obj pdf.Value, pageNum int, key string) (string, error) {
	width := obj.Key("Width").Int()
	height := obj.Key("Height").Int()
	colorSpace := obj.Key("ColorSpace").Name()
	if width <= 0 || height <= 0 {
		return "", fmt.Errorf("invalid image dimensions")
	}

	rc := obj.Reader()
	if rc == nil {
		return "", fmt.Errorf("no stream reader for image object")
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}

	img, err := decodeRawSamples(raw, width, height, colorSpace)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp("", ragmeta.TempFilePrefix+fmt.Sprintf("p%d_%s_*.png", pageNum, key))
	if err != nil {
		return "", err
	}
	defer tmp.Close()
	if err := png.Encode(tmp, img); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// decodeRawSamples interprets raw decoded image stream bytes as either
// DeviceRGB or DeviceCMYK samples (the two color spaces produced by the
// PDF writers this loader targets), converting CMYK to RGB per-pixel.
func decodeRawSamples(raw []byte, width, height int, colorSpace string) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	switch colorSpace {
	case "DeviceCMYK":
		stride := width * 4
		if len(raw) < stride*height {
			return nil, fmt.Errorf("short cmyk sample buffer")
		}
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				i := y*stride + x*4
				c, m, ye, k := raw[i], raw[i+1], raw[i+2], raw[i+3]
				r, g, b := cmykToRGB(c, m, ye, k)
				img.Set(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
			}
		}
	default: // DeviceRGB and anything else treated as RGB triples
		stride := width * 3
		if len(raw) < stride*height {
			return nil, fmt.Errorf("short rgb sample buffer")
		}
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				i := y*stride + x*3
				img.Set(x, y, color.RGBA{R: raw[i], G: raw[i+1], B: raw[i+2], A: 255})
			}
		}
	}
	return img, nil
}

// cmykToRGB converts one CMYK sample (0-255 per channel) to RGB.
func cmykToRGB(c, m, y, k byte) (r, g, b byte) {
	cf, mf, yf, kf := float64(c)/255, float64(m)/255, float64(y)/255, float64(k)/255
	r = byte(255 * (1 - cf) * (1 - kf))
	g = byte(255 * (1 - mf) * (1 - kf))
	b = byte(255 * (1 - yf) * (1 - kf))
	return r, g, b
}
