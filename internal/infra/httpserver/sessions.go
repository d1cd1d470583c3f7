package httpserver

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/mediscan/internal/application"
	"github.com/bryanwahyu/mediscan/internal/application/pipeline"
	"github.com/bryanwahyu/mediscan/internal/metrics"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTooManySessions = errors.New("too many active sessions")
)

// OrchestratorFactory builds a fresh pipeline for a new session id.
type OrchestratorFactory func(id string) *pipeline.Orchestrator

type session struct {
	orch     *pipeline.Orchestrator
	lastSeen time.Time
}

// Registry holds the in-memory sessions served over HTTP. When full, the
// least recently used idle session is evicted.
type Registry struct {
	New   OrchestratorFactory
	Max   int
	Clock application.Clock

	// OnEvict receives the last snapshot of every dropped session, outside
	// the lock.
	OnEvict func(pipeline.Snapshot)

	mu       sync.Mutex
	sessions map[string]*session
}

func NewRegistry(factory OrchestratorFactory, max int) *Registry {
	return &Registry{
		New:      factory,
		Max:      max,
		Clock:    application.SystemClock{},
		sessions: make(map[string]*session),
	}
}

// Create starts a new session.
func (r *Registry) Create() (*pipeline.Orchestrator, error) {
	r.mu.Lock()
	var evicted *pipeline.Snapshot
	if r.Max > 0 && len(r.sessions) >= r.Max {
		evicted = r.evictLocked()
		if evicted == nil {
			r.mu.Unlock()
			return nil, ErrTooManySessions
		}
	}
	id := uuid.NewString()
	o := r.New(id)
	r.sessions[id] = &session{orch: o, lastSeen: r.Clock.Now()}
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	if evicted != nil && r.OnEvict != nil {
		r.OnEvict(*evicted)
	}
	return o, nil
}

// Get returns the session and marks it used.
func (r *Registry) Get(id string) (*pipeline.Orchestrator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.lastSeen = r.Clock.Now()
	return s.orch, nil
}

// Delete drops a session. In-flight work finishes but is discarded.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	last := s.orch.Snapshot()
	s.orch.Reset()
	if r.OnEvict != nil {
		r.OnEvict(last)
	}
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) evictLocked() *pipeline.Snapshot {
	var (
		oldestID string
		oldest   *session
		last     pipeline.Snapshot
	)
	for id, s := range r.sessions {
		snap := s.orch.Snapshot()
		if snap.Busy {
			continue
		}
		if oldest == nil || s.lastSeen.Before(oldest.lastSeen) {
			oldestID, oldest, last = id, s, snap
		}
	}
	if oldest == nil {
		return nil
	}
	delete(r.sessions, oldestID)
	oldest.orch.Reset()
	return &last
}
