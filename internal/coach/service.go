package coach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hifzlab/coach-engine/internal/ai"
)

// DefaultWindow is how far back practice history is considered.
const DefaultWindow = 7 * 24 * time.Hour

// ErrNoSessions means the user has no practice sessions inside the window.
var ErrNoSessions = errors.New("no recent sessions")

// ErrNoMistakes means the user has no recorded mistakes inside the window.
var ErrNoMistakes = errors.New("no recent mistakes")

// TextAnalyzer is the text side of the AI layer.
type TextAnalyzer interface {
	AnalyzeMistakes(ctx context.Context, mistakes []ai.MistakeRecord) ai.AnalysisResult
	GenerateInsights(ctx context.Context, sessions []ai.SessionRecord) ai.AnalysisResult
	CategorizeMistake(ctx context.Context, description string) ai.AnalysisResult
}

// Transcriber is the speech side of the AI layer.
type Transcriber interface {
	TranscribeAudio(ctx context.Context, audio ai.Audio, language, prompt string) ai.AnalysisResult
	TranscribeWithTimestamps(ctx context.Context, audio ai.Audio, language string) ai.AnalysisResult
	DetectLanguage(ctx context.Context, audio ai.Audio) ai.AnalysisResult
}

// RecordSource supplies practice history for a user.
type RecordSource interface {
	RecentSessions(ctx context.Context, userID string, since time.Time) ([]ai.SessionRecord, error)
	RecentMistakes(ctx context.Context, userID string, since time.Time) ([]ai.MistakeRecord, error)
}

// Insight is a generated coaching insight ready for persistence.
type Insight struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Result    ai.AnalysisResult `json:"result"`
	CreatedAt time.Time         `json:"created_at"`
}

// InsightSink receives generated insights. Persistence lives with the main
// application; the engine only hands results over.
type InsightSink interface {
	SaveInsight(ctx context.Context, insight Insight) error
}

// ServiceOptions configures the coaching service.
type ServiceOptions struct {
	Analyzer TextAnalyzer
	Source   RecordSource
	Sink     InsightSink   // optional
	Window   time.Duration // history window; default DefaultWindow
	Log      zerolog.Logger
}

// Service pulls practice history and feeds it to the text analysis provider.
type Service struct {
	analyzer TextAnalyzer
	source   RecordSource
	sink     InsightSink
	window   time.Duration
	log      zerolog.Logger
}

func NewService(opts ServiceOptions) *Service {
	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}
	return &Service{
		analyzer: opts.Analyzer,
		source:   opts.Source,
		sink:     opts.Sink,
		window:   window,
		log:      opts.Log.With().Str("component", "coach").Logger(),
	}
}

// Window reports the configured history window.
func (s *Service) Window() time.Duration { return s.window }

// WeeklyInsights loads the user's sessions inside the window and generates
// coaching insights from them. Successful insights are forwarded to the sink
// when one is configured; a sink failure is logged, not fatal.
func (s *Service) WeeklyInsights(ctx context.Context, userID string) (ai.AnalysisResult, error) {
	since := time.Now().Add(-s.window)
	sessions, err := s.source.RecentSessions(ctx, userID, since)
	if err != nil {
		return ai.AnalysisResult{}, fmt.Errorf("load sessions: %w", err)
	}
	if len(sessions) == 0 {
		return ai.AnalysisResult{}, ErrNoSessions
	}

	res := s.analyzer.GenerateInsights(ctx, sessions)
	if res.Success && s.sink != nil {
		insight := Insight{
			ID:        uuid.NewString(),
			UserID:    userID,
			Result:    res,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.sink.SaveInsight(ctx, insight); err != nil {
			s.log.Warn().Err(err).Str("user_id", userID).Msg("insight sink failed")
		}
	}
	return res, nil
}

// MistakeReport loads the user's mistakes inside the window and runs pattern
// analysis over them.
func (s *Service) MistakeReport(ctx context.Context, userID string) (ai.AnalysisResult, error) {
	since := time.Now().Add(-s.window)
	mistakes, err := s.source.RecentMistakes(ctx, userID, since)
	if err != nil {
		return ai.AnalysisResult{}, fmt.Errorf("load mistakes: %w", err)
	}
	if len(mistakes) == 0 {
		return ai.AnalysisResult{}, ErrNoMistakes
	}
	return s.analyzer.AnalyzeMistakes(ctx, mistakes), nil
}

// Categorize classifies a single described mistake.
func (s *Service) Categorize(ctx context.Context, description string) ai.AnalysisResult {
	return s.analyzer.CategorizeMistake(ctx, description)
}
