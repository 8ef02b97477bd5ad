package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oniontalks/oniontalks/internal/record"
)

// Event is pushed to websocket subscribers on every state change. Debug
// events mirror what the original app printed to its sidebar log.
type Event struct {
	Type       string `json:"type"`
	Message    string `json:"message,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Recording  bool   `json:"recording"`
}

// Session holds all UI state as an explicit value: the selected model, the
// recorder, the transcript, and the archived audio. Nothing lives in
// ambient framework state, so a reset or a fresh session really starts
// clean.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.Mutex
	model      string
	transcript string
	flac       []byte
	recorder   *record.Session

	subMu       sync.Mutex
	subscribers map[chan Event]struct{}
}

func newSession(recorder *record.Session, defaultModel string) *Session {
	return &Session{
		ID:          uuid.NewString(),
		CreatedAt:   time.Now(),
		model:       defaultModel,
		recorder:    recorder,
		subscribers: make(map[chan Event]struct{}),
	}
}

func (s *Session) Recorder() *record.Session {
	return s.recorder
}

func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

func (s *Session) SetModel(model string) {
	s.mu.Lock()
	s.model = model
	s.mu.Unlock()
}

func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

func (s *Session) SetTranscript(transcript string) {
	s.mu.Lock()
	s.transcript = transcript
	s.mu.Unlock()
}

func (s *Session) Audio() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flac
}

func (s *Session) SetAudio(flac []byte) {
	s.mu.Lock()
	s.flac = flac
	s.mu.Unlock()
}

// Reset clears transcript and audio but keeps the model selection, the
// behavior the original app's "repeat transcription" button was meant to
// have.
func (s *Session) Reset() {
	s.mu.Lock()
	s.transcript = ""
	s.flac = nil
	s.mu.Unlock()
}

func (s *Session) Subscribe() chan Event {
	ch := make(chan Event, 16)
	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subMu.Unlock()
	return ch
}

func (s *Session) Unsubscribe(ch chan Event) {
	s.subMu.Lock()
	delete(s.subscribers, ch)
	s.subMu.Unlock()
	close(ch)
}

func (s *Session) publish(event Event) {
	event.Recording = s.recorder.Recording()
	s.subMu.Lock()
	for ch := range s.subscribers {
		select {
		case ch <- event:
		default: // slow subscriber, drop
		}
	}
	s.subMu.Unlock()
}

type sessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func newSessionManager() *sessionManager {
	return &sessionManager{sessions: make(map[string]*Session)}
}

func (m *sessionManager) Add(session *Session) {
	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()
}

func (m *sessionManager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	return session, ok
}

func (m *sessionManager) All() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		all = append(all, session)
	}
	return all
}
