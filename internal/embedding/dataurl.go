package embedding

import (
	"encoding/base64"
	"mime"
	"os"
	"path/filepath"
)

// imageDataURI reads path and renders it as a data:<mime>;base64,<...> URI,
// the inline image representation every multimodal provider's wire
// contract expects.
func imageDataURI(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(b), nil
}
