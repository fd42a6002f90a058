package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ecolucci/parlo/internal/config"
	"github.com/ecolucci/parlo/internal/httpapi"
	"github.com/ecolucci/parlo/internal/observability"
	"github.com/ecolucci/parlo/internal/pipeline"
	"github.com/ecolucci/parlo/internal/session"
	"github.com/ecolucci/parlo/internal/speech"
	"github.com/ecolucci/parlo/internal/transcript"
	"github.com/ecolucci/parlo/internal/tutor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := transcript.NewFileStore(cfg.DataDir)
	if err != nil {
		log.Fatalf("transcript store init failed: %v", err)
	}

	archive := openArchive(cfg)
	if archive != nil {
		defer archive.Close()
	}

	limits := speech.Limits{
		SampleRate:  cfg.SampleRate,
		MaxDuration: time.Duration(cfg.MaxRecordingSeconds) * time.Second,
	}
	speechGW, speechProvider, err := speech.NewGateway(speech.FactoryConfig{
		Provider: cfg.SpeechProvider,
		Offline:  cfg.OfflineMode,
		Google: speech.GoogleConfig{
			APIKey:        cfg.GoogleAPIKey,
			SpeechAPIBase: cfg.SpeechAPIBase,
			TTSAPIBase:    cfg.TTSAPIBase,
			Limits:        limits,
			Pitch:         cfg.TTSPitch,
			Timeout:       cfg.ProviderTimeout,
		},
		Local: speech.LocalConfig{
			WhisperCLI:       cfg.WhisperCLI,
			WhisperModelPath: cfg.WhisperModelPath,
			PiperCLI:         cfg.PiperCLI,
			PiperModelPath:   cfg.PiperModelPath,
			Limits:           limits,
		},
		Timeout: cfg.ProviderTimeout,
	})
	if err != nil {
		log.Fatalf("speech provider init failed: %v", err)
	}
	log.Printf("speech provider: %s", speechProvider)

	tutorGW, tutorProvider, err := tutor.NewGateway(tutor.FactoryConfig{
		Provider: cfg.TutorProvider,
		OpenAI: tutor.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.ProviderTimeout,
		},
		Ollama: tutor.OllamaConfig{
			BaseURL: cfg.OllamaBaseURL,
			Model:   cfg.OllamaModel,
			Timeout: cfg.ProviderTimeout,
		},
	})
	if err != nil {
		log.Fatalf("tutor provider init failed: %v", err)
	}
	log.Printf("tutor provider: %s", tutorProvider)

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(sess *transcript.Session) {
		// Expired sessions are flushed to disk so an idle user never loses a
		// conversation.
		if len(sess.Turns) > 0 {
			if _, err := store.Save(sess); err != nil {
				log.Printf("save expired session %s: %v", sess.ID, err)
			}
		}
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	runner := pipeline.NewRunner(sessions, speechGW, tutorGW, metrics, pipeline.Config{
		Language:   cfg.SpeechLanguage,
		Voice:      cfg.TTSVoice,
		Speed:      cfg.TTSSpeed,
		TextOnly:   cfg.TextOnly,
		SampleRate: cfg.SampleRate,
		AudioDir:   filepath.Join(cfg.DataDir, "audio"),
		MaxRetries: cfg.MaxTurnRetries,
	})

	api := httpapi.New(cfg, sessions, runner, store, archive, metrics, speechProvider, tutorProvider)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 5*time.Second)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}

// openArchive builds the configured durable mirror, or nil when disabled. An
// unreachable archive downgrades to disabled rather than failing startup; the
// JSON store remains the source of truth.
func openArchive(cfg config.Config) transcript.Archive {
	switch strings.ToLower(strings.TrimSpace(cfg.ArchiveMode)) {
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a, err := transcript.NewPostgresArchive(ctx, cfg.ArchiveDSN)
		if err != nil {
			log.Printf("postgres archive unavailable, continuing without: %v", err)
			return nil
		}
		log.Printf("archive: postgres")
		return a
	case "sqlite":
		a, err := transcript.NewSQLiteArchive(cfg.ArchivePath)
		if err != nil {
			log.Printf("sqlite archive unavailable, continuing without: %v", err)
			return nil
		}
		log.Printf("archive: sqlite (%s)", cfg.ArchivePath)
		return a
	default:
		return nil
	}
}
