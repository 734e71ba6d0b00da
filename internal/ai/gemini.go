package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hifzlab/coach-engine/internal/metrics"
)

const (
	// DefaultGeminiModel is used when no model is configured.
	DefaultGeminiModel = "gemini-2.0-flash"

	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

// GeminiConfig configures the text analysis provider.
type GeminiConfig struct {
	APIKey      string
	Model       string        // default DefaultGeminiModel
	BaseURL     string        // default public Gemini API; override for tests/proxies
	Timeout     time.Duration // per round trip; default 30s
	MaxAttempts int           // retry budget; default DefaultMaxAttempts
	Log         zerolog.Logger
}

// Gemini analyzes recitation mistakes and practice sessions through the
// Gemini generateContent API. Generation settings and safety thresholds are
// fixed at construction and shared read-only across concurrent calls.
type Gemini struct {
	service
	baseURL string
	client  *http.Client
	gen     generationConfig
	safety  []safetySetting
	retry   RetryConfig
	log     zerolog.Logger
}

// NewGemini validates the credential and builds the provider. A missing key
// is a *ConfigError and no provider is returned.
func NewGemini(cfg GeminiConfig) (*Gemini, error) {
	key, err := validateCredential("gemini", cfg.APIKey)
	if err != nil {
		return nil, err
	}

	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &Gemini{
		service: service{name: "gemini", model: model, key: key},
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		gen: generationConfig{
			Temperature:      0.3, // low temperature for consistent guidance
			TopP:             0.8,
			TopK:             40,
			MaxOutputTokens:  2048,
			ResponseMimeType: "text/plain",
		},
		safety: []safetySetting{
			{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
			{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
			{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
			{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
		},
		retry: RetryConfig{MaxAttempts: cfg.MaxAttempts},
		log:   cfg.Log.With().Str("component", "gemini").Logger(),
	}, nil
}

// Wire types for the generateContent endpoint.
type generateRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
	SafetySettings   []safetySetting  `json:"safetySettings,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"topP"`
	TopK             int     `json:"topK"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type generateResponse struct {
	Candidates     []geminiCandidate `json:"candidates"`
	UsageMetadata  *UsageMetadata    `json:"usageMetadata"`
	PromptFeedback *promptFeedback   `json:"promptFeedback"`
}

type geminiCandidate struct {
	Content       geminiContent  `json:"content"`
	FinishReason  string         `json:"finishReason"`
	SafetyRatings []SafetyRating `json:"safetyRatings"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason"`
}

// UsageMetadata reports token accounting from the text backend.
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// SafetyRating is the backend's content assessment for one harm category.
type SafetyRating struct {
	Category    string `json:"category"`
	Probability string `json:"probability"`
}

// Generation is the outcome of a single text generation round trip.
type Generation struct {
	Text          string
	Usage         *UsageMetadata
	SafetyRatings []SafetyRating
}

// GenerateText performs one round trip to the text backend with the fixed
// generation configuration. Every failure is a *ProviderError; retry is the
// caller's concern.
func (g *Gemini) GenerateText(ctx context.Context, prompt string) (*Generation, error) {
	payload, err := json.Marshal(generateRequest{
		Contents:         []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: g.gen,
		SafetySettings:   g.safety,
	})
	if err != nil {
		return nil, translateErr(g.name, "encode request", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, translateErr(g.name, "create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.key)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, translateErr(g.name, "gemini request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, translateErr(g.name, "read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{
			Provider: g.name,
			Op:       fmt.Sprintf("gemini API error (status %d): %s", resp.StatusCode, string(body)),
		}
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, translateErr(g.name, "decode response", err)
	}

	if len(out.Candidates) == 0 {
		reason := "no candidates in response"
		if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
			reason = fmt.Sprintf("prompt blocked: %s", out.PromptFeedback.BlockReason)
		}
		return nil, &ProviderError{Provider: g.name, Op: reason}
	}

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}

	return &Generation{
		Text:          sb.String(),
		Usage:         out.UsageMetadata,
		SafetyRatings: out.Candidates[0].SafetyRatings,
	}, nil
}

// generateWithRetry wraps GenerateText in the provider's retry budget,
// counting attempts per operation.
func (g *Gemini) generateWithRetry(ctx context.Context, op, prompt string) (*Generation, error) {
	cfg := g.retry
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		metrics.AIRetriesTotal.WithLabelValues(g.name, op).Inc()
		g.log.Warn().Err(err).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Str("operation", op).
			Msg("attempt failed, retrying")
	}
	return Retry(ctx, cfg, func(ctx context.Context) (*Generation, error) {
		return g.GenerateText(ctx, prompt)
	})
}

// AnalyzeMistakes formats the records into an analysis prompt and parses the
// model's JSON reply. A reply that is not valid JSON is handed back as a soft
// success with the raw text under "analysis".
func (g *Gemini) AnalyzeMistakes(ctx context.Context, mistakes []MistakeRecord) AnalysisResult {
	const op = "mistake_analysis"
	start := time.Now()

	for _, m := range mistakes {
		if err := m.Validate(); err != nil {
			return finishOp(g.log, g.name, op, start, failureResult("mistake analysis failed", err))
		}
	}

	gen, err := g.generateWithRetry(ctx, op, fmt.Sprintf(mistakeAnalysisTemplate, formatMistakes(mistakes)))
	if err != nil {
		return finishOp(g.log, g.name, op, start, failureResult("mistake analysis failed", err))
	}

	data, ok := parseJSONObject(gen.Text)
	if !ok {
		res := successResult(map[string]any{"analysis": gen.Text}, 0.7, g.meta("text_analysis"))
		return finishOp(g.log, g.name, op, start, res)
	}

	conf := confidenceFrom(data, "confidence_score", 0.8)
	return finishOp(g.log, g.name, op, start, successResult(data, conf, g.meta(op)))
}

// GenerateInsights builds coaching insights from practice session summaries.
// Parse policy matches AnalyzeMistakes: non-JSON replies soft-succeed under
// "insights".
func (g *Gemini) GenerateInsights(ctx context.Context, sessions []SessionRecord) AnalysisResult {
	const op = "coaching_insights"
	start := time.Now()

	for _, s := range sessions {
		if err := s.Validate(); err != nil {
			return finishOp(g.log, g.name, op, start, failureResult("insights generation failed", err))
		}
	}

	gen, err := g.generateWithRetry(ctx, op, fmt.Sprintf(insightsTemplate, formatSessions(sessions)))
	if err != nil {
		return finishOp(g.log, g.name, op, start, failureResult("insights generation failed", err))
	}

	data, ok := parseJSONObject(gen.Text)
	if !ok {
		res := successResult(map[string]any{"insights": gen.Text}, 0.7, g.meta("text_insights"))
		return finishOp(g.log, g.name, op, start, res)
	}

	conf := confidenceFrom(data, "confidence_score", 0.8)
	return finishOp(g.log, g.name, op, start, successResult(data, conf, g.meta(op)))
}

// CategorizeMistake classifies a single described mistake. Unlike the batch
// operations there is no unstructured fallback: a reply that does not parse
// is a failure.
func (g *Gemini) CategorizeMistake(ctx context.Context, description string) AnalysisResult {
	const op = "mistake_categorization"
	start := time.Now()

	if err := ValidateInput(map[string]any{"description": description}, "description"); err != nil {
		return finishOp(g.log, g.name, op, start, failureResult("mistake categorization failed", err))
	}

	gen, err := g.generateWithRetry(ctx, op, fmt.Sprintf(categorizeTemplate, description))
	if err != nil {
		return finishOp(g.log, g.name, op, start, failureResult("mistake categorization failed", err))
	}

	data, ok := parseJSONObject(gen.Text)
	if !ok {
		res := AnalysisResult{
			Success:  false,
			Data:     map[string]any{},
			Error:    "failed to parse categorization response",
			Metadata: map[string]any{},
		}
		return finishOp(g.log, g.name, op, start, res)
	}

	conf := confidenceFrom(data, "confidence", 0.8)
	return finishOp(g.log, g.name, op, start, successResult(data, conf, g.meta(op)))
}
