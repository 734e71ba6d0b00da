package ingest

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/hifzlab/coach-engine/internal/ai"
	"github.com/hifzlab/coach-engine/internal/coach"
)

const debounceDelay = 500 * time.Millisecond

// Enqueuer accepts transcription jobs; the worker pool implements it.
type Enqueuer interface {
	Enqueue(j coach.Job) bool
}

// Status reports the watcher state for the health endpoint.
type Status struct {
	Status       string `json:"status"`
	WatchDir     string `json:"watch_dir"`
	FilesQueued  int64  `json:"files_queued"`
	FilesSkipped int64  `json:"files_skipped"`
}

// WatcherOptions configures the recordings watcher.
type WatcherOptions struct {
	Dir   string
	Queue Enqueuer
	Log   zerolog.Logger
}

// Watcher monitors a recordings directory for new audio files and enqueues
// them for transcription. Rapid Create+Write events on the same file are
// debounced, and a file is only enqueued once its size has stopped changing.
type Watcher struct {
	dir   string
	queue Enqueuer
	log   zerolog.Logger

	watcher *fsnotify.Watcher

	// Debounce: coalesce rapid Create+Write events on the same file, and
	// track the last seen size so unfinished writes get rescheduled.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer
	lastSizes      map[string]int64

	filesQueued  atomic.Int64
	filesSkipped atomic.Int64
	status       atomic.Value // string: "starting", "sweeping", "watching", "stopped"
}

func NewWatcher(opts WatcherOptions) *Watcher {
	w := &Watcher{
		dir:            opts.Dir,
		queue:          opts.Queue,
		log:            opts.Log.With().Str("component", "watcher").Logger(),
		debounceTimers: make(map[string]*time.Timer),
		lastSizes:      make(map[string]int64),
	}
	w.status.Store("starting")
	return w
}

// Start creates the watch directory if missing, registers it (and any
// subdirectories) with fsnotify, sweeps files already present, and begins
// watching for new ones.
func (w *Watcher) Start() error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fsw

	// Walk the directory tree and add all directories to fsnotify.
	dirCount := 0
	err = filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.log.Warn().Err(err).Str("path", path).Msg("error walking directory")
			return nil // continue walking
		}
		if d.IsDir() {
			if addErr := fsw.Add(path); addErr != nil {
				w.log.Warn().Err(addErr).Str("path", path).Msg("failed to watch directory")
			} else {
				dirCount++
			}
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return err
	}

	w.log.Info().
		Int("directories", dirCount).
		Str("watch_dir", w.dir).
		Msg("recordings watcher initialized")

	go w.watchLoop()
	go w.sweep()

	return nil
}

// Stop closes the fsnotify watcher and disarms pending debounce timers.
func (w *Watcher) Stop() {
	w.status.Store("stopped")
	if w.watcher != nil {
		w.watcher.Close()
	}

	w.debounceMu.Lock()
	for path, t := range w.debounceTimers {
		t.Stop()
		delete(w.debounceTimers, path)
	}
	w.debounceMu.Unlock()

	w.log.Info().
		Int64("files_queued", w.filesQueued.Load()).
		Int64("files_skipped", w.filesSkipped.Load()).
		Msg("recordings watcher stopped")
}

// Stats returns the current watcher status for the health endpoint.
func (w *Watcher) Stats() Status {
	s, _ := w.status.Load().(string)
	return Status{
		Status:       s,
		WatchDir:     w.dir,
		FilesQueued:  w.filesQueued.Load(),
		FilesSkipped: w.filesSkipped.Load(),
	}
}

// watchLoop is the main event loop that processes fsnotify events.
func (w *Watcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			// New directory: add it to the watch set so files landing in
			// freshly created subdirectories are caught too.
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := w.watcher.Add(event.Name); err != nil {
					w.log.Warn().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
				} else {
					w.log.Debug().Str("path", event.Name).Msg("watching new directory")
				}
				continue
			}

			if !ai.SupportedAudioFile(event.Name) {
				continue
			}

			w.scheduleEnqueue(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// scheduleEnqueue debounces enqueueing by 500ms. This coalesces rapid
// Create+Write events and gives the writer time to finish the file.
func (w *Watcher) scheduleEnqueue(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if t, ok := w.debounceTimers[path]; ok {
		t.Reset(debounceDelay)
		return
	}

	w.debounceTimers[path] = time.AfterFunc(debounceDelay, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, path)
		w.debounceMu.Unlock()

		w.settleAndEnqueue(path)
	})
}

// settleAndEnqueue enqueues the file once its size is nonzero and unchanged
// since the last look; a still-growing file is rescheduled for another
// debounce round.
func (w *Watcher) settleAndEnqueue(path string) {
	if s, _ := w.status.Load().(string); s == "stopped" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		w.log.Warn().Err(err).Str("path", path).Msg("recording vanished before enqueue")
		w.forgetSize(path)
		return
	}

	size := info.Size()
	w.debounceMu.Lock()
	last, seen := w.lastSizes[path]
	w.lastSizes[path] = size
	w.debounceMu.Unlock()

	if size == 0 || !seen || last != size {
		w.scheduleEnqueue(path)
		return
	}
	w.forgetSize(path)

	w.enqueue(path)
}

func (w *Watcher) forgetSize(path string) {
	w.debounceMu.Lock()
	delete(w.lastSizes, path)
	w.debounceMu.Unlock()
}

func (w *Watcher) enqueue(path string) {
	if w.queue.Enqueue(coach.Job{Path: path}) {
		w.filesQueued.Add(1)
		w.log.Debug().Str("path", path).Msg("recording queued")
	} else {
		w.filesSkipped.Add(1)
		w.log.Warn().Str("path", path).Msg("queue rejected recording")
	}
}

// sweep enqueues audio files already present at startup, oldest first, so
// recordings that arrived while the engine was down still get transcribed.
func (w *Watcher) sweep() {
	w.status.Store("sweeping")
	start := time.Now()

	type fileEntry struct {
		path    string
		modTime time.Time
	}
	var files []fileEntry

	_ = filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !ai.SupportedAudioFile(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() == 0 {
			return nil
		}
		files = append(files, fileEntry{path: path, modTime: info.ModTime()})
		return nil
	})

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	for _, f := range files {
		if s, _ := w.status.Load().(string); s == "stopped" {
			return
		}
		w.enqueue(f.path)
	}

	w.status.CompareAndSwap("sweeping", "watching")
	if len(files) > 0 {
		w.log.Info().
			Int("files", len(files)).
			Dur("elapsed", time.Since(start)).
			Msg("startup sweep complete")
	}
}
