package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"
)

// SessionManager keeps live interview sessions in memory. A session idle for
// longer than the timeout is evicted and abandoned.
type SessionManager struct {
	sessions  *cache.Cache
	idle      time.Duration
	cfg       SessionConfig
	questions QuestionProvider
	records   RecordSaver
	metrics   *Metrics
}

// NewSessionManager creates a session registry.
func NewSessionManager(cfg SessionConfig, idleTimeout time.Duration, questions QuestionProvider, records RecordSaver) *SessionManager {
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	cleanup := idleTimeout / 3
	if cleanup < time.Second {
		cleanup = time.Second
	}

	m := &SessionManager{
		sessions:  cache.New(idleTimeout, cleanup),
		idle:      idleTimeout,
		cfg:       cfg,
		questions: questions,
		records:   records,
		metrics:   GetMetrics(),
	}

	// Eviction covers idle expiry and explicit removal.
	m.sessions.OnEvicted(func(candidateID string, value interface{}) {
		if session, ok := value.(*InterviewSession); ok {
			session.Abandon()
		}
		m.metrics.SessionsActive.Dec()
		log.Printf("🗑️  [SESSION-EVICT] Session %s removed", candidateID)
	})

	return m
}

// NewCandidateID returns a fresh "candidate_<32 hex>" id.
func NewCandidateID() string {
	return "candidate_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// StartSession creates a session and returns its greeting and candidate id.
func (m *SessionManager) StartSession(ctx context.Context) (*Reply, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	candidateID := NewCandidateID()
	session := NewInterviewSession(candidateID, m.cfg, m.questions, m.records)
	if err := m.sessions.Add(candidateID, session, cache.DefaultExpiration); err != nil {
		return nil, "", fmt.Errorf("failed to register session: %w", err)
	}

	m.metrics.SessionsStarted.Inc()
	m.metrics.SessionsActive.Inc()
	log.Printf("🎯 [INTERVIEW] Session %s started", candidateID)

	return session.Greeting(), candidateID, nil
}

// Submit forwards input to the session and refreshes its idle timer.
func (m *SessionManager) Submit(ctx context.Context, candidateID, input string) (*Reply, error) {
	session, err := m.get(candidateID)
	if err != nil {
		return nil, err
	}
	if err := m.sessions.Replace(candidateID, session, cache.DefaultExpiration); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, candidateID)
	}
	return session.Submit(ctx, input)
}

// Abandon terminates and removes a session. Nothing is persisted.
func (m *SessionManager) Abandon(candidateID string) error {
	if _, err := m.get(candidateID); err != nil {
		return err
	}
	m.sessions.Delete(candidateID)
	return nil
}

// Session returns a live session.
func (m *SessionManager) Session(candidateID string) (*InterviewSession, error) {
	return m.get(candidateID)
}

// Count returns the number of sessions held, expired ones included until cleanup.
func (m *SessionManager) Count() int {
	return m.sessions.ItemCount()
}

// Close abandons every live session.
func (m *SessionManager) Close() {
	for id := range m.sessions.Items() {
		m.sessions.Delete(id)
	}
}

func (m *SessionManager) get(candidateID string) (*InterviewSession, error) {
	value, ok := m.sessions.Get(candidateID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, candidateID)
	}
	return value.(*InterviewSession), nil
}
