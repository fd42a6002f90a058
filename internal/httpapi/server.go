// Package httpapi exposes the conversation service over HTTP and a websocket
// event stream. Handlers translate transport concerns; all conversation
// behavior lives in the pipeline and session packages.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ecolucci/parlo/internal/audio"
	"github.com/ecolucci/parlo/internal/config"
	"github.com/ecolucci/parlo/internal/observability"
	"github.com/ecolucci/parlo/internal/pipeline"
	"github.com/ecolucci/parlo/internal/session"
	"github.com/ecolucci/parlo/internal/speech"
	"github.com/ecolucci/parlo/internal/transcript"
	"github.com/ecolucci/parlo/internal/tutor"
)

type Server struct {
	cfg      config.Config
	sessions *session.Manager
	runner   *pipeline.Runner
	store    *transcript.FileStore
	archive  transcript.Archive
	metrics  *observability.Metrics
	upgrader websocket.Upgrader

	speechProvider string
	tutorProvider  string
}

func New(
	cfg config.Config,
	sessions *session.Manager,
	runner *pipeline.Runner,
	store *transcript.FileStore,
	archive transcript.Archive,
	metrics *observability.Metrics,
	speechProvider, tutorProvider string,
) *Server {
	return &Server{
		cfg:            cfg,
		sessions:       sessions,
		runner:         runner,
		store:          store,
		archive:        archive,
		metrics:        metrics,
		speechProvider: speechProvider,
		tutorProvider:  tutorProvider,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may attach to a session's event
				// stream unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/sessions", s.handleCreateSession)
	r.Get("/v1/sessions", s.handleListSessions)
	r.Get("/v1/sessions/{id}", s.handleGetSession)
	r.Get("/v1/sessions/{id}/stats", s.handleSessionStats)
	r.Post("/v1/sessions/{id}/text", s.handleSubmitText)
	r.Post("/v1/sessions/{id}/audio", s.handleSubmitAudio)
	r.Post("/v1/sessions/{id}/topic-starter", s.handleTopicStarter)
	r.Post("/v1/sessions/{id}/save", s.handleSaveSession)
	r.Post("/v1/sessions/{id}/clear", s.handleClearSession)
	r.Delete("/v1/sessions/{id}", s.handleCloseSession)
	r.Get("/v1/sessions/{id}/events", s.handleSessionEvents)

	r.Get("/v1/topics", s.handleListTopics)
	r.Get("/v1/transcripts", s.handleListTranscripts)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"speech_provider": s.speechProvider,
		"tutor_provider":  s.tutorProvider,
		"archive_mode":    s.cfg.ArchiveMode,
		"text_only":       s.cfg.TextOnly,
		"active_sessions": s.sessions.ActiveCount(),
	})
}

type createSessionRequest struct {
	Topic string `json:"topic"`
}

type sessionResponse struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Turns     []transcript.Turn `json:"turns"`
	Stats     transcript.Stats  `json:"stats"`
}

func sessionView(sess *transcript.Session) sessionResponse {
	turns := sess.Turns
	if turns == nil {
		turns = []transcript.Turn{}
	}
	return sessionResponse{
		ID:        sess.ID,
		Topic:     sess.Topic,
		CreatedAt: sess.CreatedAt,
		Turns:     turns,
		Stats:     transcript.ComputeStats(sess),
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic != "" && !tutor.KnownTopic(req.Topic) {
		respondError(w, http.StatusBadRequest, "unknown_topic", "topic "+req.Topic+" is not in the catalog")
		return
	}

	sess := s.sessions.Create(req.Topic)
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("created").Inc()
	respondJSON(w, http.StatusCreated, sessionView(sess))
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	live := s.sessions.List()
	out := make([]sessionResponse, 0, len(live))
	for _, sess := range live {
		out = append(out, sessionView(sess))
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, sessionView(sess))
}

func (s *Server) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, transcript.ComputeStats(sess))
}

type submitTextRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSubmitText(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req submitTextRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "invalid_input", "text is required")
		return
	}

	res, err := s.runner.SubmitText(r.Context(), sess.ID, req.Text)
	if err != nil {
		s.respondTurnError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// handleSubmitAudio accepts one captured utterance as a WAV body (PCM16 mono)
// and runs the full voice exchange.
func (s *Server) handleSubmitAudio(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	limit := int64(s.cfg.MaxRecordingSeconds*s.cfg.SampleRate*2) + 1024
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if int64(len(body)) > limit {
		respondError(w, http.StatusBadRequest, "input_too_large", "recording exceeds the configured ceiling")
		return
	}

	pcm, rate, err := audio.DecodeWAV(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	if rate != s.cfg.SampleRate {
		respondError(w, http.StatusBadRequest, "invalid_input", "unsupported sample rate")
		return
	}

	if _, err := s.runner.StartCapture(sess.ID); err != nil {
		s.respondTurnError(w, err)
		return
	}
	res, err := s.runner.StopCapture(r.Context(), sess.ID, pcm)
	if err != nil {
		s.respondTurnError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleTopicStarter(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if sess.Topic == "" {
		respondError(w, http.StatusBadRequest, "no_topic", "session has no topic")
		return
	}

	res, err := s.runner.StartTopic(r.Context(), sess.ID)
	if err != nil {
		s.respondTurnError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	path, err := s.store.Save(sess)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}
	archived := false
	if s.archive != nil {
		if err := s.archive.SaveSession(r.Context(), sess); err != nil {
			// The JSON file is the source of truth; an archive miss is a
			// warning, not a failed save.
			log.Printf("httpapi: archive session %s: %v", sess.ID, err)
			s.metrics.SessionEvents.WithLabelValues("archive_failed").Inc()
		} else {
			archived = true
		}
	}
	s.metrics.SessionEvents.WithLabelValues("saved").Inc()
	respondJSON(w, http.StatusOK, map[string]any{"path": path, "archived": archived})
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.ClearTurns(id); err != nil {
		s.respondTurnError(w, err)
		return
	}
	s.runner.DiscardAudio(id)
	s.metrics.SessionEvents.WithLabelValues("cleared").Inc()
	respondJSON(w, http.StatusOK, map[string]any{"status": "cleared"})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.sessions.Discard(id); err != nil {
		s.respondTurnError(w, err)
		return
	}
	s.runner.DiscardAudio(id)
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("closed").Inc()
	respondJSON(w, http.StatusOK, map[string]any{"status": "closed"})
}

func (s *Server) handleListTopics(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"topics": tutor.Topics()})
}

func (s *Server) handleListTranscripts(w http.ResponseWriter, _ *http.Request) {
	saved, err := s.store.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}
	out := make([]sessionResponse, 0, len(saved))
	for _, sess := range saved {
		out = append(out, sessionView(sess))
	}
	respondJSON(w, http.StatusOK, map[string]any{"transcripts": out})
}

// handleSessionEvents streams a session's turn events over a websocket until
// the client goes away.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	events, cancel := s.runner.Subscribe(sess.ID)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		cancel()
		return
	}
	defer conn.Close()
	defer cancel()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()
	defer s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()

	// Reads only service control frames; clients drive turns over HTTP.
	readGone := make(chan struct{})
	go func() {
		defer close(readGone)
		conn.SetReadLimit(1 << 16)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-readGone:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

// lookup resolves the path session id or writes the error response.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*transcript.Session, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return nil, false
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return nil, false
	}
	return sess, true
}

// respondTurnError maps pipeline and registry failures onto the HTTP error
// vocabulary: busy sessions conflict, bad input is the client's fault, and
// provider trouble is a bad gateway.
func (s *Server) respondTurnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, session.ErrTurnInFlight):
		respondError(w, http.StatusConflict, "turn_in_flight", err.Error())
	default:
		var ve *pipeline.ValidationError
		if errors.As(err, &ve) {
			respondError(w, http.StatusBadRequest, "invalid_input", err.Error())
			return
		}
		var se *speech.Error
		if errors.As(err, &se) {
			switch se.Kind {
			case speech.KindInvalidInput, speech.KindInputTooLarge:
				respondError(w, http.StatusBadRequest, string(se.Kind), err.Error())
			default:
				respondError(w, http.StatusBadGateway, string(se.Kind), err.Error())
			}
			return
		}
		var te *tutor.Error
		if errors.As(err, &te) {
			respondError(w, http.StatusBadGateway, string(te.Kind), err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
