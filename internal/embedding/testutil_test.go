package embedding

import "os"

// writeTestPNG writes a minimal placeholder file; only the extension
// matters for imageDataURI's mime lookup in these tests.
func writeTestPNG(path string) error {
	return os.WriteFile(path, []byte{0x89, 'P', 'N', 'G'}, 0o644)
}
