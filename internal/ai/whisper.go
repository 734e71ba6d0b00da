package ai

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hifzlab/coach-engine/internal/metrics"
)

const (
	// DefaultWhisperModel is used when no model is configured.
	DefaultWhisperModel = "whisper-1"

	// DefaultLanguage is assumed when the caller forces no language.
	DefaultLanguage = "ar"

	// maxAudioBytes is the backend's upload limit.
	maxAudioBytes = 25 * 1024 * 1024
)

// supportedAudioFormats are the container/codec extensions the backend accepts.
var supportedAudioFormats = map[string]struct{}{
	"mp3": {}, "mp4": {}, "mpeg": {}, "mpga": {}, "m4a": {},
	"wav": {}, "webm": {}, "ogg": {}, "flac": {},
}

// SupportedAudioFile reports whether the filename carries a supported audio
// extension. Unlike ValidateAudio, a missing extension is a no here; this is
// the filter for picking recordings out of a watched directory.
func SupportedAudioFile(name string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	_, ok := supportedAudioFormats[ext]
	return ok
}

// Audio is an in-memory recording payload. Name is optional; when present its
// extension is checked against the supported set.
type Audio struct {
	Name string
	Data []byte
}

// ReadAudioFile loads a recording from disk into an Audio payload.
func ReadAudioFile(path string) (Audio, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Audio{}, fmt.Errorf("read audio file: %w", err)
	}
	return Audio{Name: filepath.Base(path), Data: data}, nil
}

// WhisperConfig configures the transcription provider.
type WhisperConfig struct {
	APIKey      string
	Model       string        // default DefaultWhisperModel
	BaseURL     string        // override for OpenAI-compatible endpoints and tests
	Language    string        // default DefaultLanguage
	TempDir     string        // scratch space for uploads; default os.TempDir
	Timeout     time.Duration // per round trip; default 30s
	MaxAttempts int           // retry budget; default DefaultMaxAttempts
	Log         zerolog.Logger
}

// Whisper transcribes recitation audio through an OpenAI-compatible speech
// endpoint. Model, format set, and size limit are fixed at construction.
type Whisper struct {
	service
	client     *openai.Client
	language   string
	tempDir    string
	formatList string
	retry      RetryConfig
	log        zerolog.Logger
}

// NewWhisper validates the credential and builds the provider. A missing key
// is a *ConfigError and no provider is returned.
func NewWhisper(cfg WhisperConfig) (*Whisper, error) {
	key, err := validateCredential("whisper", cfg.APIKey)
	if err != nil {
		return nil, err
	}

	model := cfg.Model
	if model == "" {
		model = DefaultWhisperModel
	}
	language := cfg.Language
	if language == "" {
		language = DefaultLanguage
	}
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	clientCfg := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	formats := make([]string, 0, len(supportedAudioFormats))
	for f := range supportedAudioFormats {
		formats = append(formats, f)
	}
	sort.Strings(formats)

	return &Whisper{
		service:    service{name: "whisper", model: model, key: key},
		client:     openai.NewClientWithConfig(clientCfg),
		language:   language,
		tempDir:    tempDir,
		formatList: strings.Join(formats, ", "),
		retry:      RetryConfig{MaxAttempts: cfg.MaxAttempts},
		log:        cfg.Log.With().Str("component", "whisper").Logger(),
	}, nil
}

// ValidateAudio rejects empty, oversized, and unsupported payloads. It runs
// before any temp storage or network access.
func (w *Whisper) ValidateAudio(audio Audio) error {
	size := int64(len(audio.Data))
	if size > maxAudioBytes {
		return &ValidationError{
			Field:  "audio",
			Reason: fmt.Sprintf("audio file too large: %d bytes (max: %d bytes)", size, int64(maxAudioBytes)),
		}
	}
	if size == 0 {
		return &ValidationError{Field: "audio", Reason: "audio file is empty"}
	}

	if ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(audio.Name), ".")); ext != "" {
		if _, ok := supportedAudioFormats[ext]; !ok {
			return &ValidationError{
				Field:  "audio",
				Reason: fmt.Sprintf("unsupported audio format: %s (supported formats: %s)", ext, w.formatList),
			}
		}
	}
	return nil
}

// TranscribeAudio transcribes a recording with deterministic decoding. When
// the caller supplies no prompt, a recitation seed phrase biases the model
// toward Quranic vocabulary.
func (w *Whisper) TranscribeAudio(ctx context.Context, audio Audio, language, prompt string) AnalysisResult {
	const op = "audio_transcription"
	start := time.Now()

	if err := w.ValidateAudio(audio); err != nil {
		return finishOp(w.log, w.name, op, start, failureResult("audio transcription failed", err))
	}
	if language == "" {
		language = w.language
	}
	if prompt == "" {
		prompt = recitationSeedPrompt
	}

	tr, err := w.transcribe(ctx, op, audio, transcribeParams{language: language, prompt: prompt})
	if err != nil {
		return finishOp(w.log, w.name, op, start, failureResult("audio transcription failed", err))
	}

	meta := w.meta(op)
	meta["language"] = language
	res := successResult(map[string]any{
		"text":     tr.Text,
		"language": tr.Language,
		"duration": tr.Duration,
		"segments": nonNilSegments(tr.Segments),
	}, estimateConfidence(tr), meta)
	return finishOp(w.log, w.name, op, start, res)
}

// TranscribeWithTimestamps is TranscribeAudio with word and segment level
// timestamps in the payload.
func (w *Whisper) TranscribeWithTimestamps(ctx context.Context, audio Audio, language string) AnalysisResult {
	const op = "timestamped_transcription"
	start := time.Now()

	if err := w.ValidateAudio(audio); err != nil {
		return finishOp(w.log, w.name, op, start, failureResult("timestamped transcription failed", err))
	}
	if language == "" {
		language = w.language
	}

	tr, err := w.transcribe(ctx, op, audio, transcribeParams{
		language: language,
		granularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
			openai.TranscriptionTimestampGranularitySegment,
		},
	})
	if err != nil {
		return finishOp(w.log, w.name, op, start, failureResult("timestamped transcription failed", err))
	}

	meta := w.meta(op)
	meta["language"] = language
	res := successResult(map[string]any{
		"text":     tr.Text,
		"language": tr.Language,
		"duration": tr.Duration,
		"words":    nonNilWords(tr.Words),
		"segments": nonNilSegments(tr.Segments),
	}, estimateConfidence(tr), meta)
	return finishOp(w.log, w.name, op, start, res)
}

// DetectLanguage transcribes without a forced language and reports what the
// backend heard. The envelope confidence is pinned at 0.8 for this operation;
// confidence_score inside the data tracks transcript quality instead.
func (w *Whisper) DetectLanguage(ctx context.Context, audio Audio) AnalysisResult {
	const op = "language_detection"
	start := time.Now()

	if err := w.ValidateAudio(audio); err != nil {
		return finishOp(w.log, w.name, op, start, failureResult("language detection failed", err))
	}

	tr, err := w.transcribe(ctx, op, audio, transcribeParams{})
	if err != nil {
		return finishOp(w.log, w.name, op, start, failureResult("language detection failed", err))
	}

	sample := tr.Text
	if r := []rune(sample); len(r) > 100 {
		sample = string(r[:100]) + "..."
	}

	res := successResult(map[string]any{
		"detected_language": tr.Language,
		"text_sample":       sample,
		"confidence_score":  estimateConfidence(tr),
	}, 0.8, w.meta(op))
	return finishOp(w.log, w.name, op, start, res)
}

type transcribeParams struct {
	language      string
	prompt        string
	granularities []openai.TranscriptionTimestampGranularity
}

// transcribe runs the shared upload flow: persist the payload to a scoped
// temp file, call the backend under the retry budget, normalize the response.
// The temp file is deleted on every exit path.
func (w *Whisper) transcribe(ctx context.Context, op string, audio Audio, p transcribeParams) (*Transcript, error) {
	tmpPath, cleanup, err := w.writeTemp(audio)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	cfg := w.retry
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		metrics.AIRetriesTotal.WithLabelValues(w.name, op).Inc()
		w.log.Warn().Err(err).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Str("operation", op).
			Msg("attempt failed, retrying")
	}

	return Retry(ctx, cfg, func(ctx context.Context) (*Transcript, error) {
		req := openai.AudioRequest{
			Model:       w.model,
			FilePath:    tmpPath,
			Language:    p.language,
			Prompt:      p.prompt,
			Format:      openai.AudioResponseFormatVerboseJSON,
			Temperature: 0, // deterministic decoding for recitation audio
		}
		if len(p.granularities) > 0 {
			req.TimestampGranularities = p.granularities
		}

		resp, err := w.client.CreateTranscription(ctx, req)
		if err != nil {
			return nil, translateErr(w.name, "whisper request", err)
		}
		return convertTranscript(&resp), nil
	})
}

// writeTemp persists the payload for the multipart upload. The returned
// cleanup must run on every exit path so no audio is left on the host.
func (w *Whisper) writeTemp(audio Audio) (string, func(), error) {
	f, err := os.CreateTemp(w.tempDir, "coach-audio-*.wav")
	if err != nil {
		return "", nil, fmt.Errorf("create temp audio: %w", err)
	}
	path := f.Name()

	if _, err := f.Write(audio.Data); err != nil {
		f.Close()
		os.Remove(path)
		return "", nil, fmt.Errorf("write temp audio: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", nil, fmt.Errorf("close temp audio: %w", err)
	}

	cleanup := func() {
		os.Remove(path)
	}
	return path, cleanup, nil
}

// convertTranscript maps the backend response onto the normalized types.
func convertTranscript(resp *openai.AudioResponse) *Transcript {
	t := &Transcript{
		Text:     resp.Text,
		Language: resp.Language,
		Duration: resp.Duration,
	}
	for _, s := range resp.Segments {
		lp := s.AvgLogprob
		t.Segments = append(t.Segments, Segment{
			ID:           s.ID,
			Start:        s.Start,
			End:          s.End,
			Text:         s.Text,
			AvgLogProb:   &lp,
			NoSpeechProb: s.NoSpeechProb,
		})
	}
	for _, wd := range resp.Words {
		t.Words = append(t.Words, Word{Word: wd.Word, Start: wd.Start, End: wd.End})
	}
	return t
}

func nonNilSegments(s []Segment) []Segment {
	if s == nil {
		return []Segment{}
	}
	return s
}

func nonNilWords(w []Word) []Word {
	if w == nil {
		return []Word{}
	}
	return w
}
