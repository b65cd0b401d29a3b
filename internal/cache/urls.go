package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Resolver maps a storage path to a display URL.
type Resolver func(path string) string

// URLCache resolves each path at most once.
type URLCache struct {
	mu       sync.Mutex
	resolve  Resolver
	urls     map[string]string
	lastUsed time.Time
}

func NewURLCache(resolve Resolver) *URLCache {
	return &URLCache{resolve: resolve, urls: make(map[string]string), lastUsed: time.Now()}
}

func (c *URLCache) Get(path string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUsed = time.Now()
	if url, ok := c.urls[path]; ok {
		return url
	}
	url := c.resolve(path)
	c.urls[path] = url
	return url
}

func (c *URLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.urls)
}

func (c *URLCache) idleSince(t time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed.Before(t)
}

// Sessions holds one URLCache per gallery session.
type Sessions struct {
	mu      sync.Mutex
	resolve Resolver
	idle    time.Duration
	caches  map[string]*URLCache
}

func NewSessions(resolve Resolver, idle time.Duration) *Sessions {
	return &Sessions{resolve: resolve, idle: idle, caches: make(map[string]*URLCache)}
}

// For returns the cache of a session, creating it on first use.
func (s *Sessions) For(sessionID string) *URLCache {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.caches[sessionID]
	if !ok {
		c = NewURLCache(s.resolve)
		s.caches[sessionID] = c
	}
	return c
}

// Drop forgets a session, e.g. on logout.
func (s *Sessions) Drop(sessionID string) {
	s.mu.Lock()
	delete(s.caches, sessionID)
	s.mu.Unlock()
}

// Evict removes sessions idle for longer than the idle timeout.
func (s *Sessions) Evict() int {
	cutoff := time.Now().Add(-s.idle)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, c := range s.caches {
		if c.idleSince(cutoff) {
			delete(s.caches, id)
			n++
		}
	}
	return n
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.caches)
}

// StartJanitor evicts idle sessions every interval until ctx is done.
func StartJanitor(ctx context.Context, sessions *Sessions, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Evict(); n > 0 {
				slog.Info("Evicted idle gallery sessions", "count", n)
			}
		}
	}
}
