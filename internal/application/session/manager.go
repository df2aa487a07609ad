package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

// DefaultTTL is how long an idle session survives before eviction.
const DefaultTTL = 2 * time.Hour

// Manager owns all in-memory sessions, one per student.
type Manager struct {
	mu        sync.RWMutex
	byStudent map[string]*Session
	ttl       time.Duration
	logger    *slog.Logger
}

// NewManager creates a session manager. A non-positive ttl falls back
// to DefaultTTL.
func NewManager(ttl time.Duration, logger *slog.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		byStudent: make(map[string]*Session),
		ttl:       ttl,
		logger:    logger.With("component", "session_manager"),
	}
}

// GetOrCreate returns the student's session, creating it if absent or
// expired. The second return value is true when a new session was made.
func (m *Manager) GetOrCreate(studentID string) (*Session, bool) {
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byStudent[studentID]; ok && !existing.expired(m.ttl, now) {
		existing.touch(now)
		return existing, false
	}

	s := newSession("ses-"+uuid.NewString(), studentID, now)
	m.byStudent[studentID] = s

	m.logger.Debug("session created",
		"session_id", s.ID(),
		"student_id", studentID,
	)
	return s, true
}

// GetByStudent returns the student's live session.
// Returns ErrSessionNotFound when there is none and ErrSessionExpired
// when the session outlived its TTL (it is evicted on the spot).
func (m *Manager) GetByStudent(studentID string) (*Session, error) {
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byStudent[studentID]
	if !ok {
		return nil, shared.ErrSessionNotFound
	}
	if s.expired(m.ttl, now) {
		delete(m.byStudent, studentID)
		return nil, shared.ErrSessionExpired
	}
	s.touch(now)
	return s, nil
}

// PeekByStudent returns the student's live session without refreshing
// its TTL. Background sweeps use it so an idle session still expires
// on schedule even when it is inspected every sweep.
func (m *Manager) PeekByStudent(studentID string) (*Session, error) {
	now := time.Now().UTC()

	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.byStudent[studentID]
	if !ok {
		return nil, shared.ErrSessionNotFound
	}
	if s.expired(m.ttl, now) {
		return nil, shared.ErrSessionExpired
	}
	return s, nil
}

// Remove drops the student's session, if any.
func (m *Manager) Remove(studentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byStudent, studentID)
}

// Len returns the number of live sessions (including not-yet-evicted
// expired ones).
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byStudent)
}

// LiveStudentIDs returns the students with a non-expired session.
// Background sweeps iterate this list instead of holding the manager lock.
func (m *Manager) LiveStudentIDs() []string {
	now := time.Now().UTC()

	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.byStudent))
	for studentID, s := range m.byStudent {
		if !s.expired(m.ttl, now) {
			ids = append(ids, studentID)
		}
	}
	return ids
}

// CleanupExpired evicts expired sessions and returns how many were dropped.
func (m *Manager) CleanupExpired() int {
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := 0
	for studentID, s := range m.byStudent {
		if s.expired(m.ttl, now) {
			delete(m.byStudent, studentID)
			dropped++
		}
	}
	return dropped
}

// StartCleanup runs periodic eviction until the context is cancelled.
func (m *Manager) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if dropped := m.CleanupExpired(); dropped > 0 {
					m.logger.Debug("expired sessions evicted", "count", dropped)
				}
			}
		}
	}()
}
