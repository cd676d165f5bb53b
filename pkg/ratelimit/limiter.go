// Package ratelimit provides per-user sliding-window rate limiting, either
// in-process or Redis-backed for multi-instance deployments.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Window is the sliding-window span for all limiter variants.
const Window = 60 * time.Second

// Limiter gates requests per user id.
type Limiter interface {
	// Allow records and admits the request when the user has capacity
	// left in the current window.
	Allow(ctx context.Context, userID string) bool
	// Remaining reports how many requests the user has left in the
	// current window.
	Remaining(ctx context.Context, userID string) int
}

// SlidingWindow is the in-process limiter: a map of accepted timestamps per
// user behind one mutex. Lookups are cheap enough that coarse locking is
// fine.
type SlidingWindow struct {
	mu    sync.Mutex
	limit int
	hits  map[string][]time.Time
	now   func() time.Time
}

// NewSlidingWindow builds an in-process limiter admitting up to limit
// requests per user per window.
func NewSlidingWindow(limit int) *SlidingWindow {
	return &SlidingWindow{
		limit: limit,
		hits:  make(map[string][]time.Time),
		now:   time.Now,
	}
}

// Allow admits the request if the user has made fewer than limit accepted
// requests within the window, recording the new timestamp on admit.
func (s *SlidingWindow) Allow(ctx context.Context, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	kept := s.prune(userID, now)
	if len(kept) >= s.limit {
		s.hits[userID] = kept
		return false
	}
	s.hits[userID] = append(kept, now)
	return true
}

// Remaining reports the user's remaining capacity in the current window.
func (s *SlidingWindow) Remaining(ctx context.Context, userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.prune(userID, s.now())
	s.hits[userID] = kept
	if r := s.limit - len(kept); r > 0 {
		return r
	}
	return 0
}

// prune drops timestamps that fell out of the window. Caller holds the lock.
func (s *SlidingWindow) prune(userID string, now time.Time) []time.Time {
	cutoff := now.Add(-Window)
	kept := s.hits[userID][:0]
	for _, t := range s.hits[userID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
