package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/hifzlab/coach-engine/internal/metrics"
)

// LocalArchive moves processed recordings into a dated directory tree under
// the archive root: <dir>/2006/01/02/<name>.
type LocalArchive struct {
	dir string
	log zerolog.Logger
}

func NewLocal(dir string, log zerolog.Logger) *LocalArchive {
	return &LocalArchive{
		dir: dir,
		log: log.With().Str("component", "archive").Str("backend", "local").Logger(),
	}
}

func (a *LocalArchive) Archive(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	destDir := filepath.Join(a.dir, time.Now().UTC().Format("2006/01/02"))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	dest := uniquePath(filepath.Join(destDir, filepath.Base(path)))
	if err := os.Rename(path, dest); err != nil {
		// Rename fails across filesystems; fall back to copy and remove.
		if err := copyFile(path, dest); err != nil {
			return "", fmt.Errorf("archive %s: %w", filepath.Base(path), err)
		}
		if err := os.Remove(path); err != nil {
			a.log.Warn().Err(err).Str("path", path).Msg("archived copy ok but source removal failed")
		}
	}

	metrics.ArchivedFilesTotal.WithLabelValues("local").Inc()
	a.log.Debug().Str("src", path).Str("dest", dest).Msg("recording archived")
	return dest, nil
}

// uniquePath appends a numeric suffix when the destination already exists, so
// recordings with the same base name never overwrite each other.
func uniquePath(dest string) string {
	if _, err := os.Stat(dest); os.IsNotExist(err) {
		return dest
	}
	ext := filepath.Ext(dest)
	stem := dest[:len(dest)-len(ext)]
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// copyFile writes through a temp file in the destination directory and renames
// it into place, so a partially written archive entry is never observed.
func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".archive-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
