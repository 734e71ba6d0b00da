package ai

import "fmt"

// AnalysisResult is the standardized envelope returned by every provider
// operation. Callers inspect nothing else; provider-specific errors and
// response shapes never leak past it.
//
// Invariant: Success=false implies empty Data and a non-empty Error.
type AnalysisResult struct {
	Success    bool           `json:"success"`
	Data       map[string]any `json:"data"`
	Error      string         `json:"error,omitempty"`
	Confidence *float64       `json:"confidence,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// successResult builds a successful envelope. Confidence is clamped into
// [0,1]; nil data becomes an empty map.
func successResult(data map[string]any, confidence float64, meta map[string]any) AnalysisResult {
	c := clamp01(confidence)
	if data == nil {
		data = map[string]any{}
	}
	return AnalysisResult{
		Success:    true,
		Data:       data,
		Confidence: &c,
		Metadata:   meta,
	}
}

// failureResult builds a failed envelope: empty data, a prefixed error
// message, no confidence.
func failureResult(prefix string, err error) AnalysisResult {
	return AnalysisResult{
		Success:  false,
		Data:     map[string]any{},
		Error:    fmt.Sprintf("%s: %v", prefix, err),
		Metadata: map[string]any{},
	}
}
