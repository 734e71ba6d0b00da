package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/hifzlab/coach-engine/internal/ai"
	"github.com/hifzlab/coach-engine/internal/archive"
	"github.com/hifzlab/coach-engine/internal/coach"
	"github.com/hifzlab/coach-engine/internal/config"
	"github.com/hifzlab/coach-engine/internal/ingest"
	"github.com/hifzlab/coach-engine/internal/metrics"
	"github.com/hifzlab/coach-engine/internal/ops"
	"github.com/hifzlab/coach-engine/internal/store"
)

var version = "dev"

func main() {
	startTime := time.Now()

	// Flags
	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file (default ./.env)")
	flag.StringVar(&overrides.OpsAddr, "ops-addr", "", "ops listener address (overrides OPS_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.DatabaseURL, "database-url", "", "postgres DSN (overrides DATABASE_URL)")
	flag.StringVar(&overrides.RecordingsDir, "recordings-dir", "", "watched recordings directory (overrides RECORDINGS_DIR)")
	flag.StringVar(&overrides.ArchiveDir, "archive-dir", "", "local archive directory (overrides ARCHIVE_DIR)")
	flag.Parse()

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("coach-engine starting")

	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := store.Connect(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// AI providers
	gemini, err := ai.NewGemini(ai.GeminiConfig{
		APIKey:      cfg.GeminiAPIKey,
		Model:       cfg.GeminiModel,
		Timeout:     cfg.RequestTimeout,
		MaxAttempts: cfg.RetryAttempts,
		Log:         log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure gemini")
	}
	whisper, err := ai.NewWhisper(ai.WhisperConfig{
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.WhisperModel,
		Language:    cfg.Language,
		Timeout:     cfg.RequestTimeout,
		MaxAttempts: cfg.RetryAttempts,
		Log:         log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure whisper")
	}

	// Archive backend
	archiver, err := archive.New(ctx, archive.Options{
		Mode:      cfg.ArchiveMode,
		Dir:       cfg.ArchiveDir,
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Log:       log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure archive")
	}
	if s3a, ok := archiver.(*archive.S3Archive); ok {
		if err := s3a.Check(ctx); err != nil {
			log.Fatal().Err(err).Msg("archive bucket unreachable")
		}
	}

	// Coaching service and transcription pool
	svc := coach.NewService(coach.ServiceOptions{
		Analyzer: gemini,
		Source:   db,
		Window:   time.Duration(cfg.InsightWindowDays) * 24 * time.Hour,
		Log:      log,
	})

	poolOpts := coach.PoolOptions{
		Transcriber: whisper,
		Workers:     cfg.Workers,
		QueueSize:   cfg.QueueSize,
		JobTimeout:  cfg.JobTimeout,
		OnResult:    logResult(log),
		Log:         log,
	}
	if archiver != nil {
		poolOpts.Archiver = archiver
	}
	pool := coach.NewWorkerPool(poolOpts)
	pool.Start()

	var pruner *archive.Pruner
	if cfg.ArchiveMode == "local" && cfg.ArchiveRetention > 0 {
		pruner = archive.NewPruner(cfg.ArchiveDir, cfg.ArchiveRetention, log)
		pruner.Start()
	}

	// Recordings watcher
	watcher := ingest.NewWatcher(ingest.WatcherOptions{
		Dir:   cfg.RecordingsDir,
		Queue: pool,
		Log:   log,
	})
	if err := watcher.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start recordings watcher")
	}

	// Periodic insight generation
	scheduler := coach.NewScheduler(coach.SchedulerOptions{
		Service:  svc,
		Users:    db,
		Interval: cfg.InsightInterval,
		Log:      log,
	})
	scheduler.Start()

	// Ops listener
	prometheus.MustRegister(metrics.NewCollector(db.Pool, pool))
	health := ops.NewHealthHandler(db, pool, watcher,
		map[string]bool{"gemini": true, "whisper": true}, version, startTime)
	srv := ops.NewServer(ops.ServerOptions{
		Addr:         cfg.OpsAddr,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		Health:       health,
		Log:          log,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("ops server error")
		}
	}

	// Stop intake first, then drain workers, then the listener.
	watcher.Stop()
	scheduler.Stop()
	pool.Stop()
	if pruner != nil {
		pruner.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("ops server shutdown error")
	}

	log.Info().Msg("coach-engine stopped")
}

// logResult reports each processed recording. Transcript persistence belongs
// to the CRUD backend, which reads recordings from the archive.
func logResult(log zerolog.Logger) func(coach.Result) {
	resultLog := log.With().Str("component", "results").Logger()
	return func(r coach.Result) {
		if !r.Outcome.Success {
			resultLog.Warn().
				Str("job_id", r.Job.ID).
				Str("path", r.Job.Path).
				Str("error", r.Outcome.Error).
				Msg("transcription failed")
			return
		}
		text, _ := r.Outcome.Data["text"].(string)
		ev := resultLog.Info().
			Str("job_id", r.Job.ID).
			Str("path", r.Job.Path).
			Dur("elapsed", r.Elapsed).
			Int("chars", len(text))
		if r.Outcome.Confidence != nil {
			ev = ev.Float64("confidence", *r.Outcome.Confidence)
		}
		ev.Msg("recording transcribed")
	}
}
