package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the conversation-practice service.
// It is loaded once at startup and held immutable for the process lifetime.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string
	AllowAnyOrigin           bool

	DataDir string

	SpeechProvider      string
	SpeechLanguage      string
	SampleRate          int
	MaxRecordingSeconds int
	OfflineMode         bool

	TTSVoice string
	TTSSpeed float64
	TTSPitch float64
	TextOnly bool

	GoogleAPIKey  string
	SpeechAPIBase string
	TTSAPIBase    string

	WhisperCLI       string
	WhisperModelPath string
	PiperCLI         string
	PiperModelPath   string

	TutorProvider string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	OllamaBaseURL string
	OllamaModel   string

	ProviderTimeout time.Duration
	MaxTurnRetries  int

	ArchiveMode string
	ArchiveDSN  string
	ArchivePath string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "parlo"),
		AllowAnyOrigin:   false,
		DataDir:          envOrDefault("APP_DATA_DIR", "conversations"),

		SpeechProvider:      envOrDefault("SPEECH_PROVIDER", "auto"),
		SpeechLanguage:      envOrDefault("SPEECH_LANGUAGE", "en-US"),
		SampleRate:          16000,
		MaxRecordingSeconds: 30,

		TTSVoice: envOrDefault("TTS_VOICE", "en-US-Wavenet-D"),
		TTSSpeed: 1.0,
		TTSPitch: 0.0,

		GoogleAPIKey:  envTrimmed("GOOGLE_API_KEY"),
		SpeechAPIBase: envOrDefault("SPEECH_API_BASE", "https://speech.googleapis.com/v1"),
		TTSAPIBase:    envOrDefault("TTS_API_BASE", "https://texttospeech.googleapis.com/v1"),

		WhisperCLI:       envOrDefault("WHISPER_CLI", "whisper-cli"),
		WhisperModelPath: envOrDefault("WHISPER_MODEL_PATH", ".models/whisper/ggml-base.bin"),
		PiperCLI:         envOrDefault("PIPER_CLI", "piper"),
		PiperModelPath:   envOrDefault("PIPER_MODEL_PATH", ".models/piper/en_US-amy-medium.onnx"),

		TutorProvider: envOrDefault("AI_PROVIDER", "auto"),
		OpenAIAPIKey:  envTrimmed("OPENAI_API_KEY"),
		OpenAIBaseURL: envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:   envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		OllamaBaseURL: envOrDefault("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:   envOrDefault("OLLAMA_MODEL", "llama3"),

		ProviderTimeout: 30 * time.Second,
		MaxTurnRetries:  2,

		ArchiveMode: envOrDefault("ARCHIVE_MODE", "disabled"),
		ArchiveDSN:  envTrimmed("ARCHIVE_DATABASE_URL"),
		ArchivePath: envOrDefault("ARCHIVE_SQLITE_PATH", "conversations/archive.db"),

		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 30 * time.Minute,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ProviderTimeout, err = durationFromEnv("PROVIDER_TIMEOUT", cfg.ProviderTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.OfflineMode, err = boolFromEnv("OFFLINE_MODE", cfg.OfflineMode)
	if err != nil {
		return Config{}, err
	}
	cfg.TextOnly, err = boolFromEnv("TEXT_ONLY", cfg.TextOnly)
	if err != nil {
		return Config{}, err
	}
	cfg.SampleRate, err = intFromEnv("AUDIO_SAMPLE_RATE", cfg.SampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxRecordingSeconds, err = intFromEnv("MAX_RECORDING_TIME", cfg.MaxRecordingSeconds)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxTurnRetries, err = intFromEnv("MAX_TURN_RETRIES", cfg.MaxTurnRetries)
	if err != nil {
		return Config{}, err
	}
	cfg.TTSSpeed, err = floatFromEnv("TTS_SPEED", cfg.TTSSpeed)
	if err != nil {
		return Config{}, err
	}
	cfg.TTSPitch, err = floatFromEnv("TTS_PITCH", cfg.TTSPitch)
	if err != nil {
		return Config{}, err
	}

	if cfg.SampleRate <= 0 {
		return Config{}, fmt.Errorf("AUDIO_SAMPLE_RATE must be positive")
	}
	if cfg.MaxRecordingSeconds <= 0 {
		return Config{}, fmt.Errorf("MAX_RECORDING_TIME must be positive")
	}
	if cfg.TTSSpeed < 0.25 || cfg.TTSSpeed > 4.0 {
		return Config{}, fmt.Errorf("TTS_SPEED must be within [0.25, 4.0]")
	}
	if cfg.MaxTurnRetries < 0 {
		return Config{}, fmt.Errorf("MAX_TURN_RETRIES must be >= 0")
	}
	if cfg.SessionInactivityTimeout < time.Minute {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 1m")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.ArchiveMode)) {
	case "disabled", "postgres", "sqlite":
	default:
		return Config{}, fmt.Errorf("invalid ARCHIVE_MODE: %q (expected disabled|postgres|sqlite)", cfg.ArchiveMode)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
