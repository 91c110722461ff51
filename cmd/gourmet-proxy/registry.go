package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Sternrassler/gourmet-search/pkg/pagination"
	"github.com/rs/zerolog"
)

var (
	errSessionNotFound = errors.New("session not found")
	errTooManySessions = errors.New("too many open sessions")
)

type sessionEntry struct {
	session  *pagination.Session
	lastUsed time.Time
}

// sessionRegistry holds the open search sessions. Sessions idle for longer
// than ttl are closed by Sweep.
type sessionRegistry struct {
	fetcher pagination.PageFetcher
	ttl     time.Duration
	max     int
	logger  zerolog.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

func newSessionRegistry(fetcher pagination.PageFetcher, ttl time.Duration, maxSessions int, logger zerolog.Logger) *sessionRegistry {
	return &sessionRegistry{
		fetcher:  fetcher,
		ttl:      ttl,
		max:      maxSessions,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*sessionEntry),
	}
}

// Create registers a new idle session.
func (r *sessionRegistry) Create() (*pagination.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.max > 0 && len(r.sessions) >= r.max {
		return nil, errTooManySessions
	}

	s := pagination.NewSession(r.fetcher, pagination.WithLogger(r.logger))
	r.sessions[s.ID()] = &sessionEntry{session: s, lastUsed: r.now()}
	return s, nil
}

// Get returns the session and marks it used.
func (r *sessionRegistry) Get(id string) (*pagination.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[id]
	if !ok {
		return nil, errSessionNotFound
	}
	entry.lastUsed = r.now()
	return entry.session, nil
}

// Delete closes and removes the session.
func (r *sessionRegistry) Delete(id string) error {
	r.mu.Lock()
	entry, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return errSessionNotFound
	}
	entry.session.Close()
	return nil
}

// Len returns the number of open sessions.
func (r *sessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes sessions idle for longer than ttl and returns how many were removed.
func (r *sessionRegistry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	var expired []*pagination.Session
	for id, entry := range r.sessions {
		if entry.lastUsed.Before(cutoff) {
			expired = append(expired, entry.session)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	if len(expired) > 0 {
		r.logger.Debug().Int("expired", len(expired)).Msg("Expired idle sessions")
	}
	return len(expired)
}

// Run sweeps periodically until ctx is done.
func (r *sessionRegistry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// CloseAll closes every session.
func (r *sessionRegistry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*sessionEntry)
	r.mu.Unlock()

	for _, entry := range sessions {
		entry.session.Close()
	}
}
