package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"FaceValServer/engine"
	"FaceValServer/logger"

	"go.uber.org/zap"
)

const (
	// DefaultTTL is how long an entry may sit idle before a lookup
	// treats it as absent.
	DefaultTTL = time.Hour
	// DefaultMaxAge is the idle age past which the background sweep
	// removes an entry, independent of lookup traffic.
	DefaultMaxAge = 4 * time.Hour
	// DefaultSweepInterval is how often the background sweep runs.
	DefaultSweepInterval = time.Hour
)

// Factory constructs a ready-to-run session for a model identifier.
type Factory func(modelPath string) (engine.Runner, error)

type entry struct {
	session  engine.Runner
	lastUsed atomic.Int64 // unix nanoseconds
}

func (e *entry) touch(now time.Time) { e.lastUsed.Store(now.UnixNano()) }

func (e *entry) idle(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, e.lastUsed.Load()))
}

// Store maps model identifiers to loaded inference sessions. Reads take
// the shared path; a miss or an expired entry escalates to the
// exclusive path, which re-checks before constructing so concurrent
// callers for the same identifier never install two sessions.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	factory Factory
	ttl     time.Duration
	maxAge  time.Duration
}

// New builds a Store around factory. Non-positive ttl or maxAge fall
// back to the defaults.
func New(factory Factory, ttl, maxAge time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Store{
		entries: make(map[string]*entry),
		factory: factory,
		ttl:     ttl,
		maxAge:  maxAge,
	}
}

// Get returns the cached session for modelPath, constructing it on a
// miss or after expiry. A hit refreshes last_used (sliding expiry): a
// model under sustained traffic stays loaded, only idle sessions age
// out. Construction failures propagate and leave the cache unchanged.
func (s *Store) Get(modelPath string) (engine.Runner, error) {
	now := time.Now()

	s.mu.RLock()
	if e, ok := s.entries[modelPath]; ok && e.idle(now) < s.ttl {
		e.touch(now)
		s.mu.RUnlock()
		return e.session, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another caller may have populated the entry while this one was
	// waiting for the write lock.
	now = time.Now()
	if e, ok := s.entries[modelPath]; ok && e.idle(now) < s.ttl {
		e.touch(now)
		return e.session, nil
	}

	session, err := s.factory(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load session for %q: %w", modelPath, err)
	}

	if old, ok := s.entries[modelPath]; ok {
		old.session.Destroy()
	}
	e := &entry{session: session}
	e.touch(time.Now())
	s.entries[modelPath] = e
	logger.Log().Info("loaded model session", zap.String("model", modelPath))
	return session, nil
}

// Sweep removes entries idle for at least the max age and returns how
// many were dropped.
func (s *Store) Sweep() int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for path, e := range s.entries {
		if e.idle(now) >= s.maxAge {
			e.session.Destroy()
			delete(s.entries, path)
			removed++
		}
	}
	if removed > 0 {
		logger.Log().Info("swept idle model sessions", zap.Int("removed", removed))
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is cancelled.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// Flush destroys every cached session. Used on shutdown.
func (s *Store) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, e := range s.entries {
		e.session.Destroy()
		delete(s.entries, path)
	}
}

// Len reports the number of cached sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
