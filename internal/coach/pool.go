package coach

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hifzlab/coach-engine/internal/ai"
	"github.com/hifzlab/coach-engine/internal/metrics"
)

const (
	defaultWorkers    = 2
	defaultQueueSize  = 32
	defaultJobTimeout = 5 * time.Minute
)

// Job is one recording queued for transcription.
type Job struct {
	ID       string // assigned on enqueue when empty
	Path     string // absolute path to the recording
	Language string // empty means the provider default
	Enqueued time.Time
}

// Result is the outcome of one processed job, delivered to OnResult.
type Result struct {
	Job     Job
	Outcome ai.AnalysisResult
	Elapsed time.Duration
}

// Archiver moves a processed recording out of the watched directory.
type Archiver interface {
	Archive(ctx context.Context, path string) (string, error)
}

// QueueStats reports the current state of the transcription queue.
type QueueStats struct {
	Pending   int   `json:"pending"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

// PoolOptions configures the transcription worker pool.
type PoolOptions struct {
	Transcriber Transcriber
	Workers     int
	QueueSize   int
	JobTimeout  time.Duration
	Archiver    Archiver     // optional; runs after successful transcription
	OnResult    func(Result) // optional; called for every processed job
	Log         zerolog.Logger
}

// WorkerPool manages transcription workers over a bounded queue.
type WorkerPool struct {
	jobs        chan Job
	transcriber Transcriber
	opts        PoolOptions
	log         zerolog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	stopping    atomic.Bool

	completed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewWorkerPool creates a transcription worker pool.
func NewWorkerPool(opts PoolOptions) *WorkerPool {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = defaultJobTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		jobs:        make(chan Job, opts.QueueSize),
		transcriber: opts.Transcriber,
		opts:        opts,
		log:         opts.Log.With().Str("component", "pool").Logger(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.opts.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	wp.log.Info().
		Int("workers", wp.opts.Workers).
		Int("queue_size", wp.opts.QueueSize).
		Msg("transcription worker pool started")
}

// Stop signals workers to drain and waits for completion. Enqueue returns
// false once Stop has begun.
func (wp *WorkerPool) Stop() {
	if !wp.stopping.CompareAndSwap(false, true) {
		return
	}
	close(wp.jobs)
	wp.wg.Wait()
	wp.cancel()
	wp.log.Info().
		Int64("completed", wp.completed.Load()).
		Int64("failed", wp.failed.Load()).
		Int64("dropped", wp.dropped.Load()).
		Msg("transcription worker pool stopped")
}

// Enqueue adds a job to the transcription queue. Returns false when the queue
// is full or the pool is stopping; full-queue drops are counted.
func (wp *WorkerPool) Enqueue(j Job) bool {
	if wp.stopping.Load() {
		return false
	}
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Enqueued.IsZero() {
		j.Enqueued = time.Now()
	}

	select {
	case wp.jobs <- j:
		return true
	default:
		wp.dropped.Add(1)
		metrics.TranscribeJobsTotal.WithLabelValues("dropped").Inc()
		wp.log.Warn().Str("job_id", j.ID).Str("path", j.Path).Msg("queue full, job dropped")
		return false
	}
}

// Stats returns current queue statistics.
func (wp *WorkerPool) Stats() QueueStats {
	return QueueStats{
		Pending:   len(wp.jobs),
		Completed: wp.completed.Load(),
		Failed:    wp.failed.Load(),
		Dropped:   wp.dropped.Load(),
	}
}

// PendingCount reports jobs waiting in the queue.
func (wp *WorkerPool) PendingCount() int { return len(wp.jobs) }

// CompletedCount reports successfully processed jobs.
func (wp *WorkerPool) CompletedCount() int64 { return wp.completed.Load() }

// FailedCount reports failed jobs.
func (wp *WorkerPool) FailedCount() int64 { return wp.failed.Load() }

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	log := wp.log.With().Int("worker", id).Logger()

	for job := range wp.jobs {
		if err := wp.processJob(log, job); err != nil {
			wp.failed.Add(1)
			metrics.TranscribeJobsTotal.WithLabelValues("error").Inc()
			log.Warn().Err(err).
				Str("job_id", job.ID).
				Str("path", job.Path).
				Msg("transcription failed")
		} else {
			wp.completed.Add(1)
			metrics.TranscribeJobsTotal.WithLabelValues("ok").Inc()
		}
	}
}

func (wp *WorkerPool) processJob(log zerolog.Logger, job Job) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(wp.ctx, wp.opts.JobTimeout)
	defer cancel()

	audio, err := ai.ReadAudioFile(job.Path)
	if err != nil {
		wp.deliver(Result{Job: job, Outcome: ai.AnalysisResult{
			Data:     map[string]any{},
			Error:    err.Error(),
			Metadata: map[string]any{},
		}, Elapsed: time.Since(start)})
		return err
	}

	res := wp.transcriber.TranscribeAudio(ctx, audio, job.Language, "")
	elapsed := time.Since(start)
	wp.deliver(Result{Job: job, Outcome: res, Elapsed: elapsed})

	if !res.Success {
		return errors.New(res.Error)
	}

	if wp.opts.Archiver != nil {
		dest, err := wp.opts.Archiver.Archive(ctx, job.Path)
		if err != nil {
			log.Warn().Err(err).Str("path", job.Path).Msg("archive failed, recording left in place")
		} else if dest != "" {
			log.Debug().Str("path", job.Path).Str("archived_to", dest).Msg("recording archived")
		}
	}

	log.Debug().
		Str("job_id", job.ID).
		Str("path", job.Path).
		Dur("elapsed", elapsed).
		Msg("transcription complete")

	return nil
}

func (wp *WorkerPool) deliver(r Result) {
	if wp.opts.OnResult != nil {
		wp.opts.OnResult(r)
	}
}
