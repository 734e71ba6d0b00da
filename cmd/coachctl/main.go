package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/hifzlab/coach-engine/internal/ai"
	"github.com/hifzlab/coach-engine/internal/config"
)

const usage = `coachctl exercises the AI orchestration layer one operation at a time.

Usage:
  coachctl transcribe [-lang LANG] [-prompt TEXT] [-timestamps] FILE
  coachctl detect-language FILE
  coachctl categorize TEXT...
  coachctl analyze MISTAKES.json
  coachctl insights SESSIONS.json

Configuration comes from the environment (.env honored): GEMINI_API_KEY,
OPENAI_API_KEY, GEMINI_MODEL, WHISPER_MODEL, LANGUAGE, REQUEST_TIMEOUT,
RETRY_ATTEMPTS, LOG_LEVEL. No database is needed.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load(config.Overrides{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var res ai.AnalysisResult
	switch os.Args[1] {
	case "transcribe":
		res = runTranscribe(ctx, cfg, log, os.Args[2:])
	case "detect-language":
		res = runDetectLanguage(ctx, cfg, log, os.Args[2:])
	case "categorize":
		res = runCategorize(ctx, cfg, log, os.Args[2:])
	case "analyze":
		res = runAnalyze(ctx, cfg, log, os.Args[2:])
	case "insights":
		res = runInsights(ctx, cfg, log, os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode result: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
	if !res.Success {
		os.Exit(1)
	}
}

func newWhisper(cfg *config.Config, log zerolog.Logger) *ai.Whisper {
	w, err := ai.NewWhisper(ai.WhisperConfig{
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.WhisperModel,
		Language:    cfg.Language,
		Timeout:     cfg.RequestTimeout,
		MaxAttempts: cfg.RetryAttempts,
		Log:         log,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	return w
}

func newGemini(cfg *config.Config, log zerolog.Logger) *ai.Gemini {
	g, err := ai.NewGemini(ai.GeminiConfig{
		APIKey:      cfg.GeminiAPIKey,
		Model:       cfg.GeminiModel,
		Timeout:     cfg.RequestTimeout,
		MaxAttempts: cfg.RetryAttempts,
		Log:         log,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	return g
}

func runTranscribe(ctx context.Context, cfg *config.Config, log zerolog.Logger, args []string) ai.AnalysisResult {
	fs := flag.NewFlagSet("transcribe", flag.ExitOnError)
	lang := fs.String("lang", "", "spoken language hint (default: LANGUAGE env)")
	prompt := fs.String("prompt", "", "seed prompt for the transcription model")
	timestamps := fs.Bool("timestamps", false, "request word and segment timestamps")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: coachctl transcribe [-lang LANG] [-prompt TEXT] [-timestamps] FILE")
		os.Exit(2)
	}

	audio := readAudio(fs.Arg(0))
	w := newWhisper(cfg, log)
	if *timestamps {
		return w.TranscribeWithTimestamps(ctx, audio, *lang)
	}
	return w.TranscribeAudio(ctx, audio, *lang, *prompt)
}

func runDetectLanguage(ctx context.Context, cfg *config.Config, log zerolog.Logger, args []string) ai.AnalysisResult {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: coachctl detect-language FILE")
		os.Exit(2)
	}
	return newWhisper(cfg, log).DetectLanguage(ctx, readAudio(args[0]))
}

func runCategorize(ctx context.Context, cfg *config.Config, log zerolog.Logger, args []string) ai.AnalysisResult {
	description := strings.TrimSpace(strings.Join(args, " "))
	if description == "" {
		fmt.Fprintln(os.Stderr, "usage: coachctl categorize TEXT...")
		os.Exit(2)
	}
	return newGemini(cfg, log).CategorizeMistake(ctx, description)
}

func runAnalyze(ctx context.Context, cfg *config.Config, log zerolog.Logger, args []string) ai.AnalysisResult {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: coachctl analyze MISTAKES.json")
		os.Exit(2)
	}
	var mistakes []ai.MistakeRecord
	loadJSON(args[0], &mistakes)
	return newGemini(cfg, log).AnalyzeMistakes(ctx, mistakes)
}

func runInsights(ctx context.Context, cfg *config.Config, log zerolog.Logger, args []string) ai.AnalysisResult {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: coachctl insights SESSIONS.json")
		os.Exit(2)
	}
	var sessions []ai.SessionRecord
	loadJSON(args[0], &sessions)
	return newGemini(cfg, log).GenerateInsights(ctx, sessions)
}

func readAudio(path string) ai.Audio {
	audio, err := ai.ReadAudioFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	return audio
}

func loadJSON(path string, v any) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", path, err)
		os.Exit(1)
	}
	if err := json.Unmarshal(data, v); err != nil {
		fmt.Fprintf(os.Stderr, "parse %s: %v\n", path, err)
		os.Exit(1)
	}
}
