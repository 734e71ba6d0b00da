package ai

import (
	"math"
	"strings"
	"unicode/utf8"
)

// DefaultConfidence is returned when the transcript carries no usable signal.
const DefaultConfidence = 0.75

// estimateConfidence derives a [0,1] score from whatever signal the backend
// returned. Per-segment log-probabilities are the primary source: each is
// shifted by +1 and clamped, then averaged. Without them a length heuristic
// on the transcript text stands in. Malformed data falls back to
// DefaultConfidence instead of failing the operation.
func estimateConfidence(t *Transcript) float64 {
	if t == nil {
		return DefaultConfidence
	}

	var sum float64
	var n int
	for _, seg := range t.Segments {
		if seg.AvgLogProb == nil {
			continue
		}
		lp := *seg.AvgLogProb
		if math.IsNaN(lp) || math.IsInf(lp, 0) {
			return DefaultConfidence
		}
		sum += clamp01(lp + 1.0)
		n++
	}
	if n > 0 {
		return sum / float64(n)
	}

	switch textLen := utf8.RuneCountInString(strings.TrimSpace(t.Text)); {
	case textLen > 50:
		return 0.85
	case textLen > 10:
		return 0.70
	default:
		return 0.50
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
