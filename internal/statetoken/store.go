package statetoken

import (
	"sync"
	"time"
)

// consumedStore tracks redeemed state tokens so each one can be decoded
// exactly once within its TTL window.
type consumedStore struct {
	mu     sync.Mutex
	tokens map[string]time.Time
	window time.Duration
}

func newConsumedStore(window time.Duration) *consumedStore {
	return &consumedStore{
		tokens: make(map[string]time.Time),
		window: window,
	}
}

// consume marks a token as used. Returns false if the token was already
// consumed within the window. Expired entries are pruned opportunistically
// so the map stays bounded by the token TTL.
func (s *consumedStore) consume(token string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, seenAt := range s.tokens {
		if now.Sub(seenAt) > s.window {
			delete(s.tokens, key)
		}
	}

	if _, exists := s.tokens[token]; exists {
		return false
	}
	s.tokens[token] = now
	return true
}

// size returns the number of tracked tokens, for tests.
func (s *consumedStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}
