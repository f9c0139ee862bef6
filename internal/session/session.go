// Package session holds per-user conversation state: the knowledge store built
// from the last upload, the uploaded document metadata and the turn log.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"study-rag/internal/chromemdb"
	"study-rag/internal/helper"
	"study-rag/internal/models"
)

// Session is one logical user session. Callers hold Lock around every
// accessor; Manager methods lock on their own.
type Session struct {
	ID        string
	CreatedAt time.Time

	lastUsed time.Time // guarded by Manager.mu

	mu        sync.Mutex
	store     *chromemdb.KnowledgeStore
	documents []models.Document
	turns     []models.Turn
}

func newSession(id string, now time.Time) *Session {
	return &Session{ID: id, CreatedAt: now, lastUsed: now}
}

// Lock serializes whole handler runs (upload, ask) on one session.
func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// The accessors below expect the caller to hold the session lock.

func (s *Session) Store() *chromemdb.KnowledgeStore { return s.store }

func (s *Session) SetStore(store *chromemdb.KnowledgeStore) { s.store = store }

func (s *Session) Documents() []models.Document {
	return append([]models.Document(nil), s.documents...)
}

func (s *Session) SetDocuments(docs []models.Document) {
	s.documents = append([]models.Document(nil), docs...)
}

func (s *Session) AppendTurn(turn models.Turn) {
	s.turns = append(s.turns, turn)
}

// RecentTurns returns up to the last n turns, oldest first.
func (s *Session) RecentTurns(n int) []models.Turn {
	return LastTurns(s.turns, n)
}

func (s *Session) AllTurns() []models.Turn {
	return append([]models.Turn(nil), s.turns...)
}

// Clear drops the knowledge store, the documents and the turn log.
func (s *Session) Clear() {
	if s.store != nil {
		s.store.Reset()
	}
	s.store = nil
	s.documents = nil
	s.turns = nil
}

// LastTurns returns a copy of the last n entries of turns.
func LastTurns(turns []models.Turn, n int) []models.Turn {
	if n <= 0 || len(turns) == 0 {
		return nil
	}
	if n > len(turns) {
		n = len(turns)
	}
	return append([]models.Turn(nil), turns[len(turns)-n:]...)
}

// Manager keys sessions by id. Every lookup marks the session as used.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// New creates and registers a session with a random id.
func (m *Manager) New() *Session {
	id, err := helper.GenerateUUID()
	if err != nil {
		// uuid.NewRandom only fails when the system entropy source does
		id = time.Now().Format("20060102150405.000000000")
		log.Warn().Err(err).Str("session_id", id).Msg("Falling back to timestamp session id")
	}
	return m.GetOrCreate(id)
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if ok {
		s.lastUsed = m.now()
	}
	return s, ok
}

func (m *Manager) GetOrCreate(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.lastUsed = m.now()
		return s
	}
	s := newSession(id, m.now())
	m.sessions[id] = s
	log.Debug().Str("session_id", id).Msg("Created session")
	return s
}

func (m *Manager) Delete(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		release(s)
	}
}

func release(s *Session) {
	s.Lock()
	s.Clear()
	s.Unlock()
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep deletes every session not used within maxIdle and returns how many
// were removed.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	cutoff := m.now().Add(-maxIdle)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.lastUsed.Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	active := len(m.sessions)
	m.mu.Unlock()

	for _, s := range expired {
		release(s)
		log.Debug().Str("session_id", s.ID).Dur("age", m.now().Sub(s.CreatedAt)).Msg("Expired session")
	}
	if len(expired) > 0 {
		log.Info().Int("expired", len(expired)).Int("active", active).Msg("Expired idle sessions")
	}
	return len(expired)
}

// ExpireIdle runs Sweep every interval until ctx is done.
func (m *Manager) ExpireIdle(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(maxIdle)
		}
	}
}
