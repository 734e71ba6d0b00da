package ai

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// recitationSeedPrompt biases Whisper toward Quranic vocabulary when the
// caller supplies no prompt of their own.
const recitationSeedPrompt = "بسم الله الرحمن الرحيم، القرآن الكريم، السورة، الآية، التلاوة، التجويد"

const mistakeAnalysisTemplate = `Analyze the following Quran recitation mistakes and provide insights:

%s

Please provide analysis in the following JSON format:
{
    "mistake_patterns": [
        {
            "pattern": "description of pattern",
            "frequency": "high/medium/low",
            "category": "pronunciation/memorization/tajweed"
        }
    ],
    "recommendations": [
        {
            "action": "specific recommendation",
            "priority": "high/medium/low",
            "method": "practice method"
        }
    ],
    "focus_areas": ["area1", "area2"],
    "confidence_score": 0.85
}

Focus on Islamic recitation principles and provide constructive guidance.
Respond with the JSON object only, no surrounding text.`

const insightsTemplate = `As an AI Quran memorization coach, analyze these practice sessions and provide personalized insights:

%s

Provide insights in JSON format:
{
    "overall_progress": "assessment of progress",
    "strengths": ["strength1", "strength2"],
    "areas_for_improvement": ["area1", "area2"],
    "personalized_recommendations": [
        {
            "recommendation": "specific advice",
            "rationale": "why this helps",
            "implementation": "how to do it"
        }
    ],
    "review_schedule": {
        "next_review_date": "YYYY-MM-DD",
        "priority_portions": ["portion1", "portion2"],
        "suggested_frequency": "daily/weekly"
    },
    "motivational_message": "encouraging message",
    "confidence_score": 0.9
}

Base recommendations on Islamic learning principles and proven memorization techniques.
Respond with the JSON object only, no surrounding text.`

const categorizeTemplate = `Categorize this Quran recitation mistake:
"%s"

Provide categorization in JSON format:
{
    "error_category": "pronunciation/memorization/tajweed/other",
    "error_subcategory": "specific subcategory",
    "severity_level": 1-5,
    "correction_method": "suggested correction approach",
    "confidence": 0.0-1.0
}

Categories:
- pronunciation: makhraj, sifat, clarity issues
- memorization: word order, missing words, substitutions
- tajweed: rules of recitation, timing, stops
- other: other issues

Respond with the JSON object only, no surrounding text.`

// formatMistakes renders records as an enumerated block for the analysis
// prompt. Missing optional fields render as N/A so the model sees a uniform
// shape.
func formatMistakes(mistakes []MistakeRecord) string {
	var b strings.Builder
	for i, m := range mistakes {
		if i > 0 {
			b.WriteByte('\n')
		}
		severity := m.SeverityLevel
		if severity == 0 {
			severity = 1
		}
		fmt.Fprintf(&b, "Mistake %d:\n", i+1)
		fmt.Fprintf(&b, "- Location: %s\n", orNA(m.Location))
		fmt.Fprintf(&b, "- Category: %s\n", orNA(m.Category))
		fmt.Fprintf(&b, "- Subcategory: %s\n", orNA(m.Subcategory))
		fmt.Fprintf(&b, "- Details: %s\n", orNA(m.Details))
		fmt.Fprintf(&b, "- Severity: %d/5\n", severity)
	}
	return b.String()
}

// formatSessions renders session summaries for the insights prompt.
func formatSessions(sessions []SessionRecord) string {
	var b strings.Builder
	for i, s := range sessions {
		if i > 0 {
			b.WriteByte('\n')
		}
		duration := "N/A"
		if s.DurationMinutes != nil {
			duration = fmt.Sprintf("%d", *s.DurationMinutes)
		}
		score := "N/A"
		if s.PerformanceScore != nil {
			score = fmt.Sprintf("%g", *s.PerformanceScore)
		}
		fmt.Fprintf(&b, "Session %d:\n", i+1)
		fmt.Fprintf(&b, "- Date: %s\n", s.Timestamp.Format(time.DateTime))
		fmt.Fprintf(&b, "- Duration: %s minutes\n", duration)
		fmt.Fprintf(&b, "- Performance Score: %s/100\n", score)
		fmt.Fprintf(&b, "- Notes: %s\n", orNA(s.Notes))
	}
	return b.String()
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

// extractJSON strips markdown code fences and surrounding prose from a model
// reply, returning the outermost JSON object. Models frequently wrap JSON in
// fences despite instructions. Returns "" when no object is present.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return s[start : end+1]
}

// parseJSONObject attempts a strict parse of a model reply that should be a
// single JSON object, after fence stripping. ok=false means the reply is not
// usable as structured data and the operation's fallback policy applies.
func parseJSONObject(text string) (map[string]any, bool) {
	cleaned := extractJSON(text)
	if cleaned == "" {
		return nil, false
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, false
	}
	return data, true
}

// confidenceFrom reads a numeric confidence field out of parsed model output,
// falling back when the field is absent or not a number.
func confidenceFrom(data map[string]any, key string, fallback float64) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}
