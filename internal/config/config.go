package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	WhisperModel string `env:"WHISPER_MODEL" envDefault:"whisper-1"`
	Language     string `env:"LANGUAGE" envDefault:"ar"`

	// Required by the daemon; coachctl runs without a database.
	DatabaseURL string `env:"DATABASE_URL"`

	RecordingsDir string `env:"RECORDINGS_DIR" envDefault:"./recordings"`

	ArchiveMode      string        `env:"ARCHIVE_MODE" envDefault:"none"`
	ArchiveDir       string        `env:"ARCHIVE_DIR" envDefault:"./archive"`
	ArchiveRetention time.Duration `env:"ARCHIVE_RETENTION" envDefault:"720h"`
	S3Bucket         string        `env:"S3_BUCKET"`
	S3Region         string        `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint       string        `env:"S3_ENDPOINT"`
	S3AccessKey      string        `env:"S3_ACCESS_KEY"`
	S3SecretKey      string        `env:"S3_SECRET_KEY"`

	Workers    int           `env:"WORKERS" envDefault:"2"`
	QueueSize  int           `env:"QUEUE_SIZE" envDefault:"32"`
	JobTimeout time.Duration `env:"JOB_TIMEOUT" envDefault:"5m"`

	OpsAddr      string        `env:"OPS_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	RetryAttempts  int           `env:"RETRY_ATTEMPTS" envDefault:"3"`

	InsightWindowDays int           `env:"INSIGHT_WINDOW_DAYS" envDefault:"7"`
	InsightInterval   time.Duration `env:"INSIGHT_INTERVAL" envDefault:"24h"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile       string
	OpsAddr       string
	LogLevel      string
	DatabaseURL   string
	RecordingsDir string
	ArchiveDir    string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	// Parse environment variables into config struct
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.OpsAddr != "" {
		cfg.OpsAddr = overrides.OpsAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.RecordingsDir != "" {
		cfg.RecordingsDir = overrides.RecordingsDir
	}
	if overrides.ArchiveDir != "" {
		cfg.ArchiveDir = overrides.ArchiveDir
	}

	return cfg, nil
}
