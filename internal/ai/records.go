package ai

import "time"

// MistakeRecord is a caller-owned recitation mistake. Records are read here
// and formatted into prompts; they are never mutated or persisted.
type MistakeRecord struct {
	Location      string `json:"location"`                    // e.g. "2:5:3" (surah:ayah:word)
	Category      string `json:"error_category"`              // pronunciation, memorization, tajweed, other
	Subcategory   string `json:"error_subcategory,omitempty"`
	Details       string `json:"details,omitempty"`
	SeverityLevel int    `json:"severity_level,omitempty"` // 1-5
}

// Validate checks the fields an analysis cannot do without.
func (m MistakeRecord) Validate() error {
	return ValidateInput(map[string]any{
		"location":       m.Location,
		"error_category": m.Category,
	}, "location", "error_category")
}

// SessionRecord is a caller-owned practice session summary. Optional fields
// are pointers so absent values render as N/A instead of zeroes.
type SessionRecord struct {
	Timestamp        time.Time `json:"timestamp"`
	DurationMinutes  *int      `json:"duration,omitempty"`
	PerformanceScore *float64  `json:"performance_score,omitempty"` // 0-100
	Notes            string    `json:"notes,omitempty"`
}

// Validate checks that the session carries a timestamp.
func (s SessionRecord) Validate() error {
	if s.Timestamp.IsZero() {
		return missingField("timestamp")
	}
	return nil
}
