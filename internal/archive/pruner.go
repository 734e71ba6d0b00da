package archive

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const pruneInterval = time.Hour

// Pruner removes local archive entries older than the retention window and
// cleans up the dated directories they leave behind.
type Pruner struct {
	dir       string
	retention time.Duration
	interval  time.Duration

	log      zerolog.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

func NewPruner(dir string, retention time.Duration, log zerolog.Logger) *Pruner {
	return &Pruner{
		dir:       dir,
		retention: retention,
		interval:  pruneInterval,
		log:       log.With().Str("component", "pruner").Logger(),
		stop:      make(chan struct{}),
	}
}

func (p *Pruner) Start() {
	go p.loop()
}

func (p *Pruner) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *Pruner) loop() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.prune()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.prune()
		}
	}
}

func (p *Pruner) prune() (int, int64) {
	cutoff := time.Now().Add(-p.retention)
	var pruned int
	var freed int64

	err := filepath.WalkDir(p.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				p.log.Warn().Err(err).Str("path", path).Msg("prune failed")
				return nil
			}
			pruned++
			freed += info.Size()
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		p.log.Warn().Err(err).Str("dir", p.dir).Msg("archive walk failed")
	}

	p.removeEmptyDirs()
	if pruned > 0 {
		p.log.Info().Int("files", pruned).Str("freed", humanizeBytes(freed)).Msg("archive pruned")
	}
	return pruned, freed
}

// removeEmptyDirs drops dated subdirectories emptied by pruning, deepest
// first. Non-empty directories and the archive root are left alone.
func (p *Pruner) removeEmptyDirs() {
	var dirs []string
	filepath.WalkDir(p.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && path != p.dir {
			dirs = append(dirs, path)
		}
		return nil
	})
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, dir := range dirs {
		os.Remove(dir)
	}
}

func humanizeBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
