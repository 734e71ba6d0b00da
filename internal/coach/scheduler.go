package coach

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hifzlab/coach-engine/internal/metrics"
)

// UserSource lists users with recent activity.
type UserSource interface {
	ActiveUsers(ctx context.Context, since time.Time) ([]string, error)
}

// SchedulerOptions configures the periodic insight generator.
type SchedulerOptions struct {
	Service  *Service
	Users    UserSource
	Interval time.Duration // default 24h
	Log      zerolog.Logger
}

// Scheduler periodically generates weekly insights for every active user.
// The first pass runs one interval after Start so a restart does not trigger
// duplicate generations.
type Scheduler struct {
	svc      *Service
	users    UserSource
	interval time.Duration
	log      zerolog.Logger
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewScheduler(opts SchedulerOptions) *Scheduler {
	interval := opts.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Scheduler{
		svc:      opts.Service,
		users:    opts.Users,
		interval: interval,
		log:      opts.Log.With().Str("component", "scheduler").Logger(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	go s.loop()
	s.log.Info().Dur("interval", s.interval).Msg("insight scheduler started")
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Scheduler) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.runOnce(context.Background())
		case <-s.stop:
			return
		}
	}
}

// runOnce generates insights for each active user; per-user failures are
// logged and skipped so one user cannot block the rest.
func (s *Scheduler) runOnce(ctx context.Context) {
	since := time.Now().Add(-s.svc.Window())
	users, err := s.users.ActiveUsers(ctx, since)
	if err != nil {
		metrics.InsightRunsTotal.WithLabelValues("error").Inc()
		s.log.Error().Err(err).Msg("listing active users failed")
		return
	}
	if len(users) == 0 {
		s.log.Debug().Msg("no active users in window")
		return
	}

	var generated, skipped int
	for _, userID := range users {
		select {
		case <-s.stop:
			return
		default:
		}

		res, err := s.svc.WeeklyInsights(ctx, userID)
		switch {
		case errors.Is(err, ErrNoSessions):
			skipped++
		case err != nil:
			skipped++
			metrics.InsightRunsTotal.WithLabelValues("error").Inc()
			s.log.Warn().Err(err).Str("user_id", userID).Msg("insight generation failed")
		case !res.Success:
			skipped++
			metrics.InsightRunsTotal.WithLabelValues("error").Inc()
			s.log.Warn().Str("user_id", userID).Str("error", res.Error).Msg("insight generation failed")
		default:
			generated++
			metrics.InsightRunsTotal.WithLabelValues("ok").Inc()
		}
	}

	s.log.Info().
		Int("users", len(users)).
		Int("generated", generated).
		Int("skipped", skipped).
		Msg("insight pass complete")
}
