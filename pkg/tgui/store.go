package tgui

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"sync"
	"time"
)

// TokenStore is an in-memory TTL store for callback payloads that do not fit
// into callback_data. Tokens start with '~' and never contain ':'.
type TokenStore struct {
	mu  sync.Mutex
	now func() time.Time

	max int
	ttl time.Duration

	cleanupInterval time.Duration
	nextCleanup     time.Time

	m map[string]tokenEntry
}

type tokenEntry struct {
	b   []byte
	exp time.Time
}

// NewTokenStore creates a TokenStore with ttl=15m, max=5000 and a 1m sweep.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		now:             time.Now,
		ttl:             15 * time.Minute,
		max:             5000,
		cleanupInterval: time.Minute,
		m:               map[string]tokenEntry{},
	}
}

func (s *TokenStore) WithTTL(ttl time.Duration) *TokenStore {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	s.mu.Lock()
	s.ttl = ttl
	s.mu.Unlock()
	return s
}

func (s *TokenStore) WithMax(max int) *TokenStore {
	if max <= 0 {
		max = 5000
	}
	s.mu.Lock()
	s.max = max
	s.mu.Unlock()
	return s
}

// WithNow replaces the time source.
func (s *TokenStore) WithNow(now func() time.Time) *TokenStore {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
	return s
}

// IsToken reports whether payload looks like a TokenStore token.
func IsToken(payload string) bool {
	return strings.HasPrefix(payload, "~") && !strings.Contains(payload, ":")
}

// PutString stores v and returns a short token: "~" + base64url(6 bytes).
func (s *TokenStore) PutString(v string) string {
	var buf [6]byte
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.maybeCleanupLocked(now)
	for {
		_, _ = rand.Read(buf[:])
		tok := "~" + base64.RawURLEncoding.EncodeToString(buf[:])
		if _, exists := s.m[tok]; exists {
			continue
		}
		s.m[tok] = tokenEntry{b: []byte(v), exp: now.Add(s.ttl)}
		s.enforceMaxLocked()
		return tok
	}
}

// GetString returns the value stored under tok, if it has not expired.
func (s *TokenStore) GetString(tok string) (string, bool) {
	if tok == "" {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.maybeCleanupLocked(now)
	e, ok := s.m[tok]
	if !ok {
		return "", false
	}
	if now.After(e.exp) {
		delete(s.m, tok)
		return "", false
	}
	return string(e.b), true
}

// Len returns the number of live entries, including expired ones not yet swept.
func (s *TokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

func (s *TokenStore) maybeCleanupLocked(now time.Time) {
	if s.nextCleanup.IsZero() {
		s.nextCleanup = now.Add(s.cleanupInterval)
		return
	}
	if now.Before(s.nextCleanup) {
		return
	}
	for k, e := range s.m {
		if now.After(e.exp) {
			delete(s.m, k)
		}
	}
	s.nextCleanup = now.Add(s.cleanupInterval)
}

func (s *TokenStore) enforceMaxLocked() {
	over := len(s.m) - s.max
	if s.max <= 0 || over <= 0 {
		return
	}
	// Evict the entries closest to expiry.
	for over > 0 {
		var victim string
		var exp time.Time
		for k, e := range s.m {
			if victim == "" || e.exp.Before(exp) {
				victim, exp = k, e.exp
			}
		}
		delete(s.m, victim)
		over--
	}
}
