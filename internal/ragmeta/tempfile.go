package ragmeta

import (
	"os"
	"path/filepath"
	"strings"
)

// TempFilePrefix marks temp files produced by loaders (extracted PDF page
// images, fetched HTML assets) so cleanup code can recognize and remove
// them without touching caller-owned paths.
const TempFilePrefix = "ragserver_"

// IsProjectTempFile reports whether path's basename begins with
// TempFilePrefix.
func IsProjectTempFile(path string) bool {
	return strings.HasPrefix(filepath.Base(path), TempFilePrefix)
}

// CleanupTempFile removes path if it's a project temp file, swallowing
// and logging failures rather than propagating them, per the
// guaranteed-release cleanup contract.
func CleanupTempFile(path string, warnf func(format string, args ...any)) {
	if path == "" || !IsProjectTempFile(path) {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) && warnf != nil {
		warnf("cleanup temp file %s: %v", path, err)
	}
}
