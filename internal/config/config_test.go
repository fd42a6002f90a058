package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	clearCoreEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.SpeechProvider != "auto" || cfg.TutorProvider != "auto" {
		t.Fatalf("providers = %q/%q, want auto/auto", cfg.SpeechProvider, cfg.TutorProvider)
	}
	if cfg.SpeechLanguage != "en-US" {
		t.Fatalf("SpeechLanguage = %q, want %q", cfg.SpeechLanguage, "en-US")
	}
	if cfg.SampleRate != 16000 {
		t.Fatalf("SampleRate = %d, want 16000", cfg.SampleRate)
	}
	if cfg.MaxRecordingSeconds != 30 {
		t.Fatalf("MaxRecordingSeconds = %d, want 30", cfg.MaxRecordingSeconds)
	}
	if cfg.TTSSpeed != 1.0 {
		t.Fatalf("TTSSpeed = %v, want 1.0", cfg.TTSSpeed)
	}
	if cfg.ArchiveMode != "disabled" {
		t.Fatalf("ArchiveMode = %q, want %q", cfg.ArchiveMode, "disabled")
	}
	if cfg.SessionInactivityTimeout != 30*time.Minute {
		t.Fatalf("SessionInactivityTimeout = %v, want 30m", cfg.SessionInactivityTimeout)
	}
}

func TestLoadExplicitValues(t *testing.T) {
	clearCoreEnv(t)
	t.Setenv("SPEECH_PROVIDER", "mock")
	t.Setenv("AI_PROVIDER", "ollama")
	t.Setenv("SPEECH_LANGUAGE", "it-IT")
	t.Setenv("TTS_SPEED", "1.5")
	t.Setenv("MAX_RECORDING_TIME", "45")
	t.Setenv("TEXT_ONLY", "true")
	t.Setenv("OFFLINE_MODE", "1")
	t.Setenv("ARCHIVE_MODE", "sqlite")
	t.Setenv("PROVIDER_TIMEOUT", "5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SpeechProvider != "mock" || cfg.TutorProvider != "ollama" {
		t.Fatalf("providers = %q/%q", cfg.SpeechProvider, cfg.TutorProvider)
	}
	if cfg.SpeechLanguage != "it-IT" {
		t.Fatalf("SpeechLanguage = %q, want %q", cfg.SpeechLanguage, "it-IT")
	}
	if cfg.TTSSpeed != 1.5 {
		t.Fatalf("TTSSpeed = %v, want 1.5", cfg.TTSSpeed)
	}
	if cfg.MaxRecordingSeconds != 45 {
		t.Fatalf("MaxRecordingSeconds = %d, want 45", cfg.MaxRecordingSeconds)
	}
	if !cfg.TextOnly || !cfg.OfflineMode {
		t.Fatalf("TextOnly/OfflineMode = %v/%v, want true/true", cfg.TextOnly, cfg.OfflineMode)
	}
	if cfg.ArchiveMode != "sqlite" {
		t.Fatalf("ArchiveMode = %q, want %q", cfg.ArchiveMode, "sqlite")
	}
	if cfg.ProviderTimeout != 5*time.Second {
		t.Fatalf("ProviderTimeout = %v, want 5s", cfg.ProviderTimeout)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"speed out of range", "TTS_SPEED", "9.0"},
		{"bad duration", "PROVIDER_TIMEOUT", "soon"},
		{"bad int", "MAX_RECORDING_TIME", "half a minute"},
		{"zero recording time", "MAX_RECORDING_TIME", "0"},
		{"negative retries", "MAX_TURN_RETRIES", "-1"},
		{"bad bool", "TEXT_ONLY", "definitely"},
		{"unknown archive", "ARCHIVE_MODE", "tape"},
		{"tiny inactivity", "APP_SESSION_INACTIVITY_TIMEOUT", "10s"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearCoreEnv(t)
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%q should fail", tc.key, tc.value)
			}
		})
	}
}

func clearCoreEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_SESSION_INACTIVITY_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"APP_DATA_DIR",
		"SPEECH_PROVIDER",
		"SPEECH_LANGUAGE",
		"AUDIO_SAMPLE_RATE",
		"MAX_RECORDING_TIME",
		"OFFLINE_MODE",
		"TTS_VOICE",
		"TTS_SPEED",
		"TTS_PITCH",
		"TEXT_ONLY",
		"GOOGLE_API_KEY",
		"SPEECH_API_BASE",
		"TTS_API_BASE",
		"WHISPER_CLI",
		"WHISPER_MODEL_PATH",
		"PIPER_CLI",
		"PIPER_MODEL_PATH",
		"AI_PROVIDER",
		"OPENAI_API_KEY",
		"OPENAI_BASE_URL",
		"OPENAI_MODEL",
		"OLLAMA_BASE_URL",
		"OLLAMA_MODEL",
		"PROVIDER_TIMEOUT",
		"MAX_TURN_RETRIES",
		"ARCHIVE_MODE",
		"ARCHIVE_DATABASE_URL",
		"ARCHIVE_SQLITE_PATH",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}
