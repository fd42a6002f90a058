// Package pipeline orchestrates one conversation turn at a time through
// capture, recognition, the tutor reply, and optional synthesis. It owns the
// retry policy; the gateways stay plain request/response mappers.
package pipeline

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ecolucci/parlo/internal/audio"
	"github.com/ecolucci/parlo/internal/observability"
	"github.com/ecolucci/parlo/internal/reliability"
	"github.com/ecolucci/parlo/internal/session"
	"github.com/ecolucci/parlo/internal/speech"
	"github.com/ecolucci/parlo/internal/transcript"
	"github.com/ecolucci/parlo/internal/tutor"
)

// Config fixes per-process pipeline behavior. Changing configuration means
// constructing a new runner; past turns are never reinterpreted.
type Config struct {
	Language   string
	Voice      string
	Speed      float64
	TextOnly   bool
	SampleRate int
	AudioDir   string

	MaxRetries int
	RetryBase  time.Duration
	RetryCap   time.Duration
}

// Result is what a synchronous caller gets back from one exchange.
type Result struct {
	TurnID        string           `json:"turn_id"`
	State         State            `json:"state"`
	UserTurn      *transcript.Turn `json:"user_turn,omitempty"`
	AssistantTurn *transcript.Turn `json:"assistant_turn,omitempty"`
}

// Runner executes the turn state machine. Invocations are serialized per
// session by the BeginTurn reservation; the runner itself holds no turn state
// across calls beyond in-progress captures.
type Runner struct {
	sessions *session.Manager
	speech   speech.Gateway
	tutor    tutor.Gateway
	metrics  *observability.Metrics
	cfg      Config

	capMu    sync.Mutex
	captures map[string]*captureState

	subMu     sync.RWMutex
	subs      map[string]map[int]chan Event
	nextSubID int
}

type captureState struct {
	turnID    string
	startedAt time.Time
}

// ValidationError rejects caller input before any provider is involved.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "pipeline: invalid input: " + e.Reason }

func NewRunner(
	sessions *session.Manager,
	speechGW speech.Gateway,
	tutorGW tutor.Gateway,
	metrics *observability.Metrics,
	cfg Config,
) *Runner {
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryCap <= 0 {
		cfg.RetryCap = 5 * time.Second
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1.0
	}
	return &Runner{
		sessions: sessions,
		speech:   speechGW,
		tutor:    tutorGW,
		metrics:  metrics,
		cfg:      cfg,
		captures: make(map[string]*captureState),
		subs:     make(map[string]map[int]chan Event),
	}
}

// SubmitText runs one typed exchange, skipping capture and transcription.
func (r *Runner) SubmitText(ctx context.Context, sessionID, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{State: StateErrored}, &ValidationError{Reason: "empty message"}
	}

	turnID := uuid.NewString()
	if err := r.sessions.BeginTurn(sessionID, turnID); err != nil {
		return Result{}, err
	}
	defer r.sessions.FinishTurn(sessionID, turnID)

	return r.runExchange(ctx, sessionID, turnID, "text", text, "")
}

// StartCapture reserves the session for a voice turn. The caller owns the
// audio device; the pipeline suspends until StopCapture delivers the bytes.
func (r *Runner) StartCapture(sessionID string) (string, error) {
	turnID := uuid.NewString()
	if err := r.sessions.BeginTurn(sessionID, turnID); err != nil {
		return "", err
	}

	r.capMu.Lock()
	r.captures[sessionID] = &captureState{turnID: turnID, startedAt: time.Now().UTC()}
	r.capMu.Unlock()

	r.emit(Event{SessionID: sessionID, TurnID: turnID, State: StateCapturing})
	return turnID, nil
}

// CancelCapture abandons an in-progress capture without running the turn.
func (r *Runner) CancelCapture(sessionID string) error {
	cs := r.takeCapture(sessionID)
	if cs == nil {
		return errors.New("no capture in progress")
	}
	r.sessions.FinishTurn(sessionID, cs.turnID)
	r.emit(Event{SessionID: sessionID, TurnID: cs.turnID, State: StateIdle})
	return nil
}

// StopCapture ends the capture started by StartCapture and runs the voice
// exchange on the delivered PCM16LE audio.
func (r *Runner) StopCapture(ctx context.Context, sessionID string, pcm []byte) (Result, error) {
	cs := r.takeCapture(sessionID)
	if cs == nil {
		return Result{}, errors.New("no capture in progress")
	}
	turnID := cs.turnID
	defer r.sessions.FinishTurn(sessionID, turnID)

	r.emit(Event{SessionID: sessionID, TurnID: turnID, State: StateTranscribing})

	start := time.Now()
	var text string
	err := r.withRetries(ctx, func() error {
		var terr error
		text, terr = r.speech.Transcribe(ctx, pcm, r.cfg.Language)
		return terr
	})
	r.metrics.ObserveStage("transcribe", time.Since(start))
	if err != nil {
		return r.failTurn(sessionID, turnID, "voice", "speech", err)
	}
	if strings.TrimSpace(text) == "" {
		err := &speech.Error{Kind: speech.KindInvalidInput, Op: "transcribe", Err: errors.New("no speech detected")}
		return r.failTurn(sessionID, turnID, "voice", "speech", err)
	}

	audioRef := r.writeAudio(sessionID, turnID+"_user", pcm)
	return r.runExchange(ctx, sessionID, turnID, "voice", strings.TrimSpace(text), audioRef)
}

// StartTopic opens the conversation with a starter phrase for the session's
// topic, appended as an assistant turn (and synthesized like any reply).
func (r *Runner) StartTopic(ctx context.Context, sessionID string) (Result, error) {
	s, err := r.sessions.Get(sessionID)
	if err != nil {
		return Result{}, err
	}

	turnID := uuid.NewString()
	if err := r.sessions.BeginTurn(sessionID, turnID); err != nil {
		return Result{}, err
	}
	defer r.sessions.FinishTurn(sessionID, turnID)

	starter := tutor.Starter(s.Topic)
	assistantTurn := transcript.Turn{
		Speaker:   transcript.SpeakerAssistant,
		Text:      starter,
		Timestamp: time.Now().UTC(),
	}
	idx, err := r.sessions.AppendTurn(sessionID, assistantTurn)
	if err != nil {
		return Result{}, err
	}

	res := Result{TurnID: turnID, State: StateComplete, AssistantTurn: &assistantTurn}
	if !r.cfg.TextOnly {
		r.emit(Event{SessionID: sessionID, TurnID: turnID, State: StateSynthesizing})
		ref, err := r.synthesize(ctx, sessionID, turnID, idx, starter)
		if err != nil {
			fres, ferr := r.failTurn(sessionID, turnID, "topic", "speech", err)
			fres.AssistantTurn = &assistantTurn
			return fres, ferr
		}
		assistantTurn.AudioRef = ref
		res.AssistantTurn = &assistantTurn
	}

	r.metrics.Turns.WithLabelValues("topic", "complete").Inc()
	r.emit(Event{SessionID: sessionID, TurnID: turnID, State: StateComplete, AssistantTurn: res.AssistantTurn})
	return res, nil
}

// runExchange drives AwaitingReply -> Synthesizing -> Complete for one user
// utterance that has already been resolved to text. The user turn is appended
// before the tutor call so a downstream failure never loses the input.
func (r *Runner) runExchange(ctx context.Context, sessionID, turnID, mode, userText, userAudioRef string) (Result, error) {
	userTurn := transcript.Turn{
		Speaker:   transcript.SpeakerUser,
		Text:      userText,
		Timestamp: time.Now().UTC(),
		AudioRef:  userAudioRef,
	}
	if _, err := r.sessions.AppendTurn(sessionID, userTurn); err != nil {
		return Result{}, err
	}
	r.emit(Event{SessionID: sessionID, TurnID: turnID, State: StateAwaitingReply, UserTurn: &userTurn})

	s, err := r.sessions.Get(sessionID)
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	var reply string
	err = r.withRetries(ctx, func() error {
		var terr error
		reply, terr = r.tutor.Reply(ctx, s.Turns, s.Topic)
		return terr
	})
	r.metrics.ObserveStage("reply", time.Since(start))
	if err != nil {
		res, ferr := r.failTurn(sessionID, turnID, mode, "tutor", err)
		res.UserTurn = &userTurn
		return res, ferr
	}
	reply = r.refreshRepetitive(ctx, sessionID, reply, s.Turns, s.Topic)

	assistantTurn := transcript.Turn{
		Speaker:   transcript.SpeakerAssistant,
		Text:      reply,
		Timestamp: time.Now().UTC(),
	}
	idx, err := r.sessions.AppendTurn(sessionID, assistantTurn)
	if err != nil {
		return Result{}, err
	}

	res := Result{TurnID: turnID, State: StateComplete, UserTurn: &userTurn, AssistantTurn: &assistantTurn}
	if !r.cfg.TextOnly {
		r.emit(Event{SessionID: sessionID, TurnID: turnID, State: StateSynthesizing})
		ref, err := r.synthesize(ctx, sessionID, turnID, idx, reply)
		if err != nil {
			fres, ferr := r.failTurn(sessionID, turnID, mode, "speech", err)
			fres.UserTurn = &userTurn
			fres.AssistantTurn = &assistantTurn
			return fres, ferr
		}
		assistantTurn.AudioRef = ref
		res.AssistantTurn = &assistantTurn
	}

	r.metrics.Turns.WithLabelValues(mode, "complete").Inc()
	r.emit(Event{
		SessionID:     sessionID,
		TurnID:        turnID,
		State:         StateComplete,
		UserTurn:      &userTurn,
		AssistantTurn: res.AssistantTurn,
	})
	return res, nil
}

// refreshRepetitive swaps a reply that re-asks or paraphrases recent assistant
// turns for a regenerated one, when the gateway supports regeneration. The
// first reply stands if regeneration fails; one attempt, no retries.
func (r *Runner) refreshRepetitive(ctx context.Context, sessionID, reply string, history []transcript.Turn, topic string) string {
	if !tutor.ReplyRepetitive(reply, history) {
		return reply
	}
	fr, ok := r.tutor.(tutor.FreshReplier)
	if !ok {
		return reply
	}
	log.Printf("pipeline: session %s reply is repetitive, regenerating", sessionID)
	fresh, err := fr.FreshReply(ctx, history, topic)
	if err != nil || strings.TrimSpace(fresh) == "" {
		return reply
	}
	return fresh
}

// synthesize renders reply audio and attaches its file to the turn at idx.
func (r *Runner) synthesize(ctx context.Context, sessionID, turnID string, idx int, text string) (string, error) {
	start := time.Now()
	var pcm []byte
	err := r.withRetries(ctx, func() error {
		var serr error
		pcm, serr = r.speech.Synthesize(ctx, text, r.cfg.Voice, r.cfg.Speed)
		return serr
	})
	r.metrics.ObserveStage("synthesize", time.Since(start))
	if err != nil {
		return "", err
	}

	ref := r.writeAudio(sessionID, turnID, pcm)
	if ref != "" {
		if err := r.sessions.SetTurnAudioRef(sessionID, idx, ref); err != nil {
			log.Printf("pipeline: attach audio ref: %v", err)
		}
	}
	return ref, nil
}

// writeAudio stores turn audio under the session's audio directory. Audio is
// an enrichment; failures are logged, never fatal to the turn.
func (r *Runner) writeAudio(sessionID, name string, pcm []byte) string {
	if r.cfg.AudioDir == "" || len(pcm) == 0 {
		return ""
	}
	dir := filepath.Join(r.cfg.AudioDir, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("pipeline: create audio dir: %v", err)
		return ""
	}
	path := filepath.Join(dir, name+".wav")
	if err := audio.WriteWAVFile(path, pcm, r.cfg.SampleRate); err != nil {
		log.Printf("pipeline: write audio: %v", err)
		return ""
	}
	return path
}

// DiscardAudio releases the audio files owned by a session, used when the
// session is cleared or closed without saving.
func (r *Runner) DiscardAudio(sessionID string) {
	if r.cfg.AudioDir == "" {
		return
	}
	if err := os.RemoveAll(filepath.Join(r.cfg.AudioDir, sessionID)); err != nil {
		log.Printf("pipeline: discard audio for %s: %v", sessionID, err)
	}
}

// failTurn records the Errored transition. Turns appended before the failure
// stay in the session; the state machine resets to Idle for the next action.
func (r *Runner) failTurn(sessionID, turnID, mode, provider string, err error) (Result, error) {
	kind := errorKind(err)
	r.metrics.Turns.WithLabelValues(mode, "errored").Inc()
	r.metrics.ProviderErrors.WithLabelValues(provider, kind).Inc()
	log.Printf("pipeline: session %s turn %s failed (%s): %v", sessionID, turnID, kind, err)
	r.emit(Event{
		SessionID: sessionID,
		TurnID:    turnID,
		State:     StateErrored,
		ErrorKind: kind,
		Detail:    err.Error(),
	})
	return Result{TurnID: turnID, State: StateErrored}, err
}

// withRetries reruns fn on transient failures with capped backoff. Validation
// and protocol errors surface immediately.
func (r *Runner) withRetries(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || attempt >= r.cfg.MaxRetries || !reliability.Retryable(err) {
			return err
		}
		delay := reliability.Backoff(attempt, r.cfg.RetryBase, r.cfg.RetryCap)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

func (r *Runner) takeCapture(sessionID string) *captureState {
	r.capMu.Lock()
	defer r.capMu.Unlock()
	cs := r.captures[sessionID]
	delete(r.captures, sessionID)
	return cs
}

func errorKind(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return "invalid_input"
	}
	var se *speech.Error
	if errors.As(err, &se) {
		return string(se.Kind)
	}
	var te *tutor.Error
	if errors.As(err, &te) {
		return string(te.Kind)
	}
	return "internal"
}
