package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrFormat marks a session document that is missing required fields or
	// carries invalid values. A file that fails to load this way is skipped
	// by List; it never aborts the whole listing.
	ErrFormat = errors.New("malformed session document")
	// ErrPersistence marks an I/O failure on save or load. The in-memory
	// session is left intact so the caller can retry.
	ErrPersistence = errors.New("session persistence failed")
)

// FileStore persists one JSON document per session in a dedicated directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("store directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrPersistence, dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (st *FileStore) Dir() string { return st.dir }

// sessionDoc is the wire form. Turn timestamps are raw so the loader can
// accept both RFC 3339 strings and epoch seconds.
type sessionDoc struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	CreatedAt string    `json:"created_at"`
	Turns     []turnDoc `json:"turns"`
}

type turnDoc struct {
	Speaker   string          `json:"speaker"`
	Text      string          `json:"text"`
	Timestamp json.RawMessage `json:"timestamp"`
	AudioRef  string          `json:"audio_ref,omitempty"`
}

// Save serializes the session and atomically replaces any previous file for
// the same session id. It returns the path written.
func (st *FileStore) Save(s *Session) (string, error) {
	if s == nil || strings.TrimSpace(s.ID) == "" {
		return "", fmt.Errorf("%w: session id is required", ErrPersistence)
	}

	doc := sessionDoc{
		ID:        s.ID,
		Topic:     s.Topic,
		CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339),
		Turns:     make([]turnDoc, 0, len(s.Turns)),
	}
	for _, t := range s.Turns {
		ts, _ := json.Marshal(t.Timestamp.UTC().Format(time.RFC3339))
		doc.Turns = append(doc.Turns, turnDoc{
			Speaker:   string(t.Speaker),
			Text:      t.Text,
			Timestamp: ts,
			AudioRef:  t.AudioRef,
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: marshal session %s: %v", ErrPersistence, s.ID, err)
	}

	path := filepath.Join(st.dir, FileName(s))
	tmp, err := os.CreateTemp(st.dir, ".session-*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: write %s: %v", ErrPersistence, tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: close %s: %v", ErrPersistence, tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: replace %s: %v", ErrPersistence, path, err)
	}
	return path, nil
}

// FileName derives the on-disk name for a session: the creation time keeps
// directory listings chronological, the id suffix keeps names unique.
func FileName(s *Session) string {
	return fmt.Sprintf("session_%s_%s.json", s.CreatedAt.UTC().Format("20060102_150405"), s.ID)
}

// Load reads and validates one session document.
func (st *FileStore) Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrPersistence, path, err)
	}
	return Decode(data)
}

// Decode parses a session document, rejecting documents that are missing
// required fields or contain unrecognized speaker values.
func Decode(data []byte) (*Session, error) {
	var doc sessionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if strings.TrimSpace(doc.ID) == "" {
		return nil, fmt.Errorf("%w: missing id", ErrFormat)
	}
	if strings.TrimSpace(doc.CreatedAt) == "" {
		return nil, fmt.Errorf("%w: missing created_at", ErrFormat)
	}
	if doc.Turns == nil {
		return nil, fmt.Errorf("%w: missing turns", ErrFormat)
	}
	createdAt, err := parseTimestamp(json.RawMessage(strconv.Quote(doc.CreatedAt)))
	if err != nil {
		return nil, fmt.Errorf("%w: created_at: %v", ErrFormat, err)
	}

	s := &Session{
		ID:        doc.ID,
		Topic:     doc.Topic,
		CreatedAt: createdAt,
		Turns:     make([]Turn, 0, len(doc.Turns)),
	}
	for i, td := range doc.Turns {
		sp := Speaker(td.Speaker)
		if !sp.Valid() {
			return nil, fmt.Errorf("%w: turn %d: unrecognized speaker %q", ErrFormat, i, td.Speaker)
		}
		if td.Text == "" {
			return nil, fmt.Errorf("%w: turn %d: missing text", ErrFormat, i)
		}
		ts, err := parseTimestamp(td.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: turn %d: timestamp: %v", ErrFormat, i, err)
		}
		s.Turns = append(s.Turns, Turn{Speaker: sp, Text: td.Text, Timestamp: ts, AudioRef: td.AudioRef})
	}
	return s, nil
}

// List loads every parseable session in the store directory, ordered by
// creation time. Malformed files are skipped, not surfaced as errors.
func (st *FileStore) List() ([]*Session, error) {
	entries, err := os.ReadDir(st.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read dir %s: %v", ErrPersistence, st.dir, err)
	}
	out := make([]*Session, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		s, err := st.Load(filepath.Join(st.dir, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// parseTimestamp accepts an RFC 3339 string or integer epoch seconds.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 {
		return time.Time{}, fmt.Errorf("missing")
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		t, err := time.Parse(time.RFC3339, str)
		if err != nil {
			return time.Time{}, err
		}
		return t.UTC(), nil
	}
	var epoch int64
	if err := json.Unmarshal(raw, &epoch); err == nil {
		return time.Unix(epoch, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("not RFC 3339 or epoch seconds: %s", string(raw))
}
