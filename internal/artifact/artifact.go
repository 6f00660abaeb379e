// Package artifact persists training outputs so readers never observe a partial file.
package artifact

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// FileMode is applied to every artifact written.
const FileMode os.FileMode = 0o644

// WriteFileAtomic streams write into a temporary file next to path and renames it
// over path only after write succeeded and the data was synced. On any error the
// previous contents of path are left untouched.
func WriteFileAtomic(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
	}

	t, err := renameio.NewPendingFile(path, renameio.WithPermissions(FileMode))
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	defer t.Cleanup()

	if err := write(t); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
