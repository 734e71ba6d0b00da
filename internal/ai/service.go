package ai

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hifzlab/coach-engine/internal/metrics"
)

// defaultRequestTimeout bounds a single provider round trip.
const defaultRequestTimeout = 30 * time.Second

// service is the identity every provider shares: a display name, the backing
// model, and the validated credential. Set once at construction, immutable
// afterward, safe to share across concurrent operations.
type service struct {
	name  string
	model string
	key   string
}

// Name returns the provider name ("gemini", "whisper").
func (s service) Name() string { return s.name }

// Model returns the model identifier used in results and logs.
func (s service) Model() string { return s.model }

// meta builds the per-operation result metadata.
func (s service) meta(op string) map[string]any {
	return map[string]any{"model": s.model, "type": op}
}

// validateCredential checks an API key at construction time. An empty or
// blank key fails with a *ConfigError and the provider is never created.
func validateCredential(provider, key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", &ConfigError{
			Provider: provider,
			Reason:   "API key is required but not provided",
		}
	}
	return key, nil
}

// ValidateInput checks that every required field is present and non-empty in
// input, returning a *ValidationError naming the first one missing. Runs
// before any network access.
func ValidateInput(input map[string]any, required ...string) error {
	for _, field := range required {
		v, ok := input[field]
		if !ok || v == nil {
			return missingField(field)
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			return missingField(field)
		}
	}
	return nil
}

func missingField(field string) *ValidationError {
	return &ValidationError{
		Field:  field,
		Reason: fmt.Sprintf("required field %q missing from input data", field),
	}
}

// finishOp records metrics and logs for a completed operation and hands the
// result back unchanged.
func finishOp(log zerolog.Logger, provider, op string, start time.Time, res AnalysisResult) AnalysisResult {
	elapsed := time.Since(start)
	metrics.ObserveAIRequest(provider, op, res.Success, elapsed)

	if !res.Success {
		log.Warn().
			Str("operation", op).
			Dur("elapsed", elapsed).
			Str("error", res.Error).
			Msg("operation failed")
		return res
	}

	evt := log.Debug().Str("operation", op).Dur("elapsed", elapsed)
	if res.Confidence != nil {
		metrics.AIConfidence.WithLabelValues(provider, op).Observe(*res.Confidence)
		evt = evt.Float64("confidence", *res.Confidence)
	}
	evt.Msg("operation complete")
	return res
}
