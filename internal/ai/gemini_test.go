package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// geminiReply builds a generateContent response whose single candidate carries
// the given text.
func geminiReply(t *testing.T, text string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]any{{"text": text}}}},
		},
		"usageMetadata": map[string]any{
			"promptTokenCount":     12,
			"candidatesTokenCount": 34,
			"totalTokenCount":      46,
		},
	})
	if err != nil {
		t.Fatalf("marshal reply: %v", err)
	}
	return body
}

func newTestGemini(t *testing.T, handler http.HandlerFunc) (*Gemini, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g, err := NewGemini(GeminiConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Log:     zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewGemini: %v", err)
	}
	g.retry.BaseDelay = time.Millisecond
	return g, srv
}

func TestNewGemini_MissingKey(t *testing.T) {
	_, err := NewGemini(GeminiConfig{})
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want *ConfigError", err)
	}
	if ce.Provider != "gemini" {
		t.Errorf("Provider = %q, want gemini", ce.Provider)
	}
}

func TestGenerateText_RequestShape(t *testing.T) {
	var (
		gotPath   string
		gotKey    string
		gotBody   generateRequest
		bodyError error
	)
	g, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		bodyError = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write(geminiReply(t, "ok"))
	})

	gen, err := g.GenerateText(context.Background(), "hello model")
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if gen.Text != "ok" {
		t.Errorf("Text = %q, want ok", gen.Text)
	}
	if gen.Usage == nil || gen.Usage.TotalTokenCount != 46 {
		t.Errorf("Usage = %+v, want total 46", gen.Usage)
	}

	if gotPath != "/models/"+DefaultGeminiModel+":generateContent" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("x-goog-api-key = %q", gotKey)
	}
	if bodyError != nil {
		t.Fatalf("decode request body: %v", bodyError)
	}
	if len(gotBody.Contents) != 1 || len(gotBody.Contents[0].Parts) != 1 {
		t.Fatalf("contents shape = %+v", gotBody.Contents)
	}
	if gotBody.Contents[0].Parts[0].Text != "hello model" {
		t.Errorf("prompt = %q", gotBody.Contents[0].Parts[0].Text)
	}
	gc := gotBody.GenerationConfig
	if gc.Temperature != 0.3 || gc.TopP != 0.8 || gc.TopK != 40 || gc.MaxOutputTokens != 2048 {
		t.Errorf("generationConfig = %+v", gc)
	}
	if len(gotBody.SafetySettings) != 4 {
		t.Errorf("safetySettings count = %d, want 4", len(gotBody.SafetySettings))
	}
	for _, s := range gotBody.SafetySettings {
		if s.Threshold != "BLOCK_MEDIUM_AND_ABOVE" {
			t.Errorf("threshold for %s = %q", s.Category, s.Threshold)
		}
	}
}

func TestGenerateText_PromptBlocked(t *testing.T) {
	g, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"candidates":     []any{},
			"promptFeedback": map[string]any{"blockReason": "SAFETY"},
		})
	})

	_, err := g.GenerateText(context.Background(), "blocked content")
	if err == nil {
		t.Fatal("expected error for blocked prompt")
	}
	if !strings.Contains(err.Error(), "prompt blocked: SAFETY") {
		t.Errorf("error = %v", err)
	}
}

func TestGenerateText_APIErrorIncludesStatusAndBody(t *testing.T) {
	g, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	_, err := g.GenerateText(context.Background(), "hi")
	if err == nil {
		t.Fatal("expected error")
	}
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %T, want *ProviderError", err)
	}
	if !strings.Contains(err.Error(), "gemini API error (status 429)") {
		t.Errorf("error = %v", err)
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("error should carry response body: %v", err)
	}
}

func TestAnalyzeMistakes_ParsesStructuredReply(t *testing.T) {
	reply := `{"mistake_patterns": [{"pattern": "madd shortening", "frequency": "high", "category": "tajweed"}], "focus_areas": ["madd"], "confidence_score": 0.9}`
	var requests atomic.Int32
	g, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write(geminiReply(t, "```json\n"+reply+"\n```"))
	})

	res := g.AnalyzeMistakes(context.Background(), []MistakeRecord{
		{Location: "2:5:3", Category: "tajweed", SeverityLevel: 3},
	})

	if !res.Success {
		t.Fatalf("Success = false: %s", res.Error)
	}
	if requests.Load() != 1 {
		t.Errorf("requests = %d, want 1", requests.Load())
	}
	if res.Confidence == nil || *res.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", res.Confidence)
	}
	if _, ok := res.Data["mistake_patterns"]; !ok {
		t.Errorf("Data = %v, missing mistake_patterns", res.Data)
	}
	if res.Metadata["type"] != "mistake_analysis" {
		t.Errorf("metadata type = %v", res.Metadata["type"])
	}
	if res.Metadata["model"] != DefaultGeminiModel {
		t.Errorf("metadata model = %v", res.Metadata["model"])
	}
}

func TestAnalyzeMistakes_NonJSONReplySoftSucceeds(t *testing.T) {
	const prose = "The student repeatedly shortens long vowels."
	g, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(geminiReply(t, prose))
	})

	res := g.AnalyzeMistakes(context.Background(), []MistakeRecord{
		{Location: "2:5:3", Category: "tajweed"},
	})

	if !res.Success {
		t.Fatalf("Success = false: %s", res.Error)
	}
	if res.Data["analysis"] != prose {
		t.Errorf("Data[analysis] = %v", res.Data["analysis"])
	}
	if res.Confidence == nil || *res.Confidence != 0.7 {
		t.Errorf("Confidence = %v, want 0.7", res.Confidence)
	}
	if res.Metadata["type"] != "text_analysis" {
		t.Errorf("metadata type = %v, want text_analysis", res.Metadata["type"])
	}
}

func TestAnalyzeMistakes_InvalidRecordSkipsNetwork(t *testing.T) {
	var requests atomic.Int32
	g, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write(geminiReply(t, "{}"))
	})

	res := g.AnalyzeMistakes(context.Background(), []MistakeRecord{
		{Category: "tajweed"}, // no location
	})

	if res.Success {
		t.Fatal("Success = true, want false")
	}
	if requests.Load() != 0 {
		t.Errorf("requests = %d, want 0", requests.Load())
	}
	if !strings.HasPrefix(res.Error, "mistake analysis failed:") {
		t.Errorf("Error = %q", res.Error)
	}
	if len(res.Data) != 0 || len(res.Metadata) != 0 {
		t.Errorf("failure result should have empty data/metadata: %+v", res)
	}
}

func TestAnalyzeMistakes_ExhaustsRetriesOnServerError(t *testing.T) {
	var requests atomic.Int32
	g, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, "internal", http.StatusInternalServerError)
	})

	res := g.AnalyzeMistakes(context.Background(), []MistakeRecord{
		{Location: "2:5:3", Category: "tajweed"},
	})

	if res.Success {
		t.Fatal("Success = true, want false")
	}
	if got := requests.Load(); got != DefaultMaxAttempts {
		t.Errorf("requests = %d, want %d", got, DefaultMaxAttempts)
	}
	if !strings.Contains(res.Error, "all 3 retry attempts failed") {
		t.Errorf("Error = %q", res.Error)
	}
	if !strings.Contains(res.Error, "gemini API error (status 500)") {
		t.Errorf("Error should carry last attempt's cause: %q", res.Error)
	}
}

func TestAnalyzeMistakes_RecoversAfterTransientErrors(t *testing.T) {
	var requests atomic.Int32
	g, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write(geminiReply(t, `{"confidence_score": 0.8}`))
	})

	res := g.AnalyzeMistakes(context.Background(), []MistakeRecord{
		{Location: "2:5:3", Category: "tajweed"},
	})

	if !res.Success {
		t.Fatalf("Success = false: %s", res.Error)
	}
	if requests.Load() != 3 {
		t.Errorf("requests = %d, want 3", requests.Load())
	}
}

func TestGenerateInsights_FallbackUsesInsightsKey(t *testing.T) {
	const prose = "Keep practicing surah Al-Baqarah daily."
	g, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(geminiReply(t, prose))
	})

	res := g.GenerateInsights(context.Background(), []SessionRecord{
		{Timestamp: time.Now()},
	})

	if !res.Success {
		t.Fatalf("Success = false: %s", res.Error)
	}
	if res.Data["insights"] != prose {
		t.Errorf("Data[insights] = %v", res.Data["insights"])
	}
	if res.Metadata["type"] != "text_insights" {
		t.Errorf("metadata type = %v", res.Metadata["type"])
	}
}

func TestGenerateInsights_StructuredReply(t *testing.T) {
	g, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(geminiReply(t, `{"overall_progress": "steady", "confidence_score": 0.95}`))
	})

	res := g.GenerateInsights(context.Background(), []SessionRecord{
		{Timestamp: time.Now()},
	})

	if !res.Success {
		t.Fatalf("Success = false: %s", res.Error)
	}
	if res.Data["overall_progress"] != "steady" {
		t.Errorf("Data = %v", res.Data)
	}
	if *res.Confidence != 0.95 {
		t.Errorf("Confidence = %v, want 0.95", *res.Confidence)
	}
	if res.Metadata["type"] != "coaching_insights" {
		t.Errorf("metadata type = %v", res.Metadata["type"])
	}
}

func TestCategorizeMistake_StructuredReply(t *testing.T) {
	reply := `{"error_category": "tajweed", "error_subcategory": "madd", "severity_level": 3, "confidence": 0.92}`
	g, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(geminiReply(t, reply))
	})

	res := g.CategorizeMistake(context.Background(), "shortened the madd in verse 5")
	if !res.Success {
		t.Fatalf("Success = false: %s", res.Error)
	}
	if res.Data["error_category"] != "tajweed" {
		t.Errorf("Data = %v", res.Data)
	}
	if *res.Confidence != 0.92 {
		t.Errorf("Confidence = %v, want 0.92", *res.Confidence)
	}
}

func TestCategorizeMistake_NonJSONReplyFails(t *testing.T) {
	g, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(geminiReply(t, "This seems like a tajweed issue."))
	})

	res := g.CategorizeMistake(context.Background(), "shortened the madd")
	if res.Success {
		t.Fatal("Success = true, want false")
	}
	if res.Error != "failed to parse categorization response" {
		t.Errorf("Error = %q", res.Error)
	}
	if len(res.Data) != 0 {
		t.Errorf("Data = %v, want empty", res.Data)
	}
}

func TestCategorizeMistake_EmptyDescriptionSkipsNetwork(t *testing.T) {
	var requests atomic.Int32
	g, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	})

	res := g.CategorizeMistake(context.Background(), "   ")
	if res.Success {
		t.Fatal("Success = true, want false")
	}
	if requests.Load() != 0 {
		t.Errorf("requests = %d, want 0", requests.Load())
	}
	if !strings.HasPrefix(res.Error, "mistake categorization failed:") {
		t.Errorf("Error = %q", res.Error)
	}
}
