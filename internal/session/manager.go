package session

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ecolucci/parlo/internal/transcript"
)

var (
	ErrNotFound     = errors.New("session not found")
	ErrTurnInFlight = errors.New("a turn is already in flight for this session")
)

// Manager is the in-memory registry of live conversations and the sole
// mutator of a live session's turn sequence. Persistence stays with the
// transcript store; the manager only hands out deep copies.
type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*liveSession
	inactivityTimeout time.Duration
	onExpire          func(*transcript.Session)
}

type liveSession struct {
	session        *transcript.Session
	activeTurnID   string
	lastActivityAt time.Time
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 30 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*liveSession),
		inactivityTimeout: inactivityTimeout,
	}
}

// SetExpireHook registers a callback invoked with a copy of each session the
// janitor discards for inactivity, so the caller can persist it first.
func (m *Manager) SetExpireHook(hook func(*transcript.Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

func (m *Manager) Create(topic string) *transcript.Session {
	now := time.Now().UTC()
	s := &transcript.Session{
		ID:        uuid.NewString(),
		Topic:     strings.TrimSpace(topic),
		CreatedAt: now,
		Turns:     []transcript.Turn{},
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = &liveSession{session: s, lastActivityAt: now}
	return cloneSession(s)
}

func (m *Manager) Get(sessionID string) (*transcript.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ls, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(ls.session), nil
}

// List returns copies of all live sessions ordered by creation time.
func (m *Manager) List() []*transcript.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*transcript.Session, 0, len(m.sessions))
	for _, ls := range m.sessions {
		out = append(out, cloneSession(ls.session))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// BeginTurn reserves the session for one pipeline run. A second begin while
// the first is unfinished fails with ErrTurnInFlight.
func (m *Manager) BeginTurn(sessionID, turnID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ls, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if ls.activeTurnID != "" {
		return ErrTurnInFlight
	}
	ls.activeTurnID = turnID
	ls.lastActivityAt = time.Now().UTC()
	return nil
}

// FinishTurn releases the reservation taken by BeginTurn. Releasing a stale
// turn id is a no-op so late failures cannot clobber a newer run.
func (m *Manager) FinishTurn(sessionID, turnID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ls, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	if ls.activeTurnID == turnID {
		ls.activeTurnID = ""
		ls.lastActivityAt = time.Now().UTC()
	}
}

// AppendTurn adds one turn to the session in call order and returns its index.
func (m *Manager) AppendTurn(sessionID string, turn transcript.Turn) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ls, ok := m.sessions[sessionID]
	if !ok {
		return 0, ErrNotFound
	}
	ls.session.Turns = append(ls.session.Turns, turn)
	ls.lastActivityAt = time.Now().UTC()
	return len(ls.session.Turns) - 1, nil
}

// SetTurnAudioRef attaches an audio reference to an already-appended turn.
func (m *Manager) SetTurnAudioRef(sessionID string, index int, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ls, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if index < 0 || index >= len(ls.session.Turns) {
		return errors.New("turn index out of range")
	}
	ls.session.Turns[index].AudioRef = ref
	return nil
}

// ClearTurns empties the session's history while keeping the session alive.
// A turn in flight blocks the clear, same as any other mutation.
func (m *Manager) ClearTurns(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ls, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if ls.activeTurnID != "" {
		return ErrTurnInFlight
	}
	ls.session.Turns = nil
	ls.lastActivityAt = time.Now().UTC()
	return nil
}

// Discard removes the session from memory without saving and returns a copy
// so the caller can release any owned audio files.
func (m *Manager) Discard(sessionID string) (*transcript.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ls, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.sessions, sessionID)
	return cloneSession(ls.session), nil
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StartJanitor expires sessions idle past the inactivity timeout, handing
// each to the expire hook before dropping it.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*transcript.Session

	m.mu.Lock()
	for id, ls := range m.sessions {
		if ls.activeTurnID != "" {
			continue
		}
		if now.Sub(ls.lastActivityAt) < m.inactivityTimeout {
			continue
		}
		expired = append(expired, cloneSession(ls.session))
		delete(m.sessions, id)
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}

func cloneSession(s *transcript.Session) *transcript.Session {
	c := *s
	c.Turns = make([]transcript.Turn, len(s.Turns))
	copy(c.Turns, s.Turns)
	return &c
}
