package bot

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const sessionTTL = 15 * time.Minute

type step int

const (
	stepIdle step = iota
	stepAwaitName
	stepAwaitTime
	stepAwaitDelete
)

func (s step) String() string {
	switch s {
	case stepAwaitName:
		return "await_name"
	case stepAwaitTime:
		return "await_time"
	case stepAwaitDelete:
		return "await_delete"
	default:
		return "idle"
	}
}

// session is the conversation state of one chat.
type session struct {
	step    step
	name    string
	expires time.Time
}

// sessions holds at most one live session per chat; idle chats have no entry.
type sessions struct {
	clk clock.Clock
	ttl time.Duration

	mu sync.Mutex
	m  map[int64]session
}

func newSessions(clk clock.Clock, ttl time.Duration) *sessions {
	if ttl <= 0 {
		ttl = sessionTTL
	}
	return &sessions{clk: clk, ttl: ttl, m: map[int64]session{}}
}

func (s *sessions) get(chat int64) session {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.m[chat]
	if !ok {
		return session{}
	}
	if !s.clk.Now().Before(cur.expires) {
		delete(s.m, chat)
		return session{}
	}
	return cur
}

func (s *sessions) set(chat int64, st step, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st == stepIdle {
		delete(s.m, chat)
		return
	}
	s.m[chat] = session{step: st, name: name, expires: s.clk.Now().Add(s.ttl)}
}

// clear reports whether a live session was dropped.
func (s *sessions) clear(chat int64) bool {
	live := s.get(chat).step != stepIdle
	s.set(chat, stepIdle, "")
	return live
}

// sweep drops expired sessions and returns how many were removed.
func (s *sessions) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clk.Now()
	n := 0
	for k, v := range s.m {
		if !now.Before(v.expires) {
			delete(s.m, k)
			n++
		}
	}
	return n
}

func (s *sessions) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
