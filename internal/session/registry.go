package session

import (
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultIdleTimeout is how long a session may sit untouched before it
	// is considered expired.
	DefaultIdleTimeout = time.Hour

	// DefaultSweepInterval is how often the background sweeper runs.
	DefaultSweepInterval = 30 * time.Minute
)

// Session is a snapshot of one session record. Callers always receive a
// copy; the registry keeps exclusive ownership of the live record.
type Session struct {
	ID             string         `json:"session_id"`
	CreatedAt      time.Time      `json:"created_at"`
	LastAccessedAt time.Time      `json:"last_accessed_at"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type record struct {
	createdAt      time.Time
	lastAccessedAt time.Time
	metadata       map[string]any
}

// Registry creates, looks up, touches and expires sessions.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*record
	idleTimeout time.Duration
	sweepTicker *time.Ticker
	sweepDone   chan struct{}
	stopOnce    sync.Once
	logger      *slog.Logger
	now         func() time.Time
}

// NewRegistry creates a registry with the default timeout and sweep interval
// and starts the background sweeper.
func NewRegistry(logger *slog.Logger) *Registry {
	return NewRegistryWithTimeout(DefaultIdleTimeout, DefaultSweepInterval, logger)
}

// NewRegistryWithTimeout creates a registry with custom timings. A sweep
// interval of zero disables the background sweeper; Sweep can still be
// called directly.
func NewRegistryWithTimeout(idleTimeout, sweepInterval time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		sessions:    make(map[string]*record),
		idleTimeout: idleTimeout,
		sweepDone:   make(chan struct{}),
		logger:      logger,
		now:         time.Now,
	}
	if sweepInterval > 0 {
		r.sweepTicker = time.NewTicker(sweepInterval)
		go r.sweepLoop()
	}
	return r
}

// Start creates a new session and returns its identifier. Metadata is stored
// as given; the registry does not inspect its shape.
func (r *Registry) Start(metadata map[string]any) string {
	id := uuid.NewString()
	now := r.now()

	r.mu.Lock()
	r.sessions[id] = &record{
		createdAt:      now,
		lastAccessedAt: now,
		metadata:       metadata,
	}
	r.mu.Unlock()

	r.logger.Debug("session started", "session", id)
	return id
}

// End removes a session. Removing an absent session is not an error.
func (r *Registry) End(id string) {
	r.mu.Lock()
	_, existed := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if existed {
		r.logger.Debug("session ended", "session", id)
	}
}

// Validate reports whether a session exists and has been touched within the
// idle timeout. It does not mutate the record.
func (r *Registry) Validate(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.sessions[id]
	if !ok {
		return false
	}
	return r.now().Sub(rec.lastAccessedAt) < r.idleTimeout
}

// Touch updates a session's last-access time. No-op if the session is gone.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.sessions[id]; ok {
		rec.lastAccessedAt = r.now()
	}
}

// Get returns a snapshot of one session.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return r.snapshot(id, rec), true
}

// List returns snapshots of all sessions, for introspection only.
func (r *Registry) List() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Session, 0, len(r.sessions))
	for id, rec := range r.sessions {
		out = append(out, r.snapshot(id, rec))
	}
	return out
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep removes every session idle for at least the timeout and returns how
// many were removed. A session touched moments before a sweep survives it.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, rec := range r.sessions {
		if now.Sub(rec.lastAccessedAt) >= r.idleTimeout {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// Stop halts the background sweeper. Safe to call more than once.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		if r.sweepTicker != nil {
			r.sweepTicker.Stop()
		}
		close(r.sweepDone)
	})
}

func (r *Registry) sweepLoop() {
	for {
		select {
		case <-r.sweepTicker.C:
			if removed := r.Sweep(); removed > 0 {
				r.logger.Info("swept expired sessions", "count", removed)
			}
		case <-r.sweepDone:
			return
		}
	}
}

func (r *Registry) snapshot(id string, rec *record) Session {
	s := Session{
		ID:             id,
		CreatedAt:      rec.createdAt,
		LastAccessedAt: rec.lastAccessedAt,
	}
	if rec.metadata != nil {
		s.Metadata = maps.Clone(rec.metadata)
	}
	return s
}
