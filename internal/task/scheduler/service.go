package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/robfig/cron/v3"

	logx "remindbot/pkg/logx"
)

type entry struct {
	id    ID
	sched cron.Schedule
	fn    Func
	next  time.Time
	timer *clock.Timer
	ver   uint64
}

type Service struct {
	clk clock.Clock
	log logx.Logger

	mu      sync.Mutex
	entries map[ID]*entry
	seq     uint64
	stopped bool

	running sync.WaitGroup
	fired   atomic.Uint64
	panics  atomic.Uint64
}

func New(clk clock.Clock, log logx.Logger) *Service {
	if clk == nil {
		clk = clock.New()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{clk: clk, log: log, entries: map[ID]*entry{}}
}

// Schedule registers fn under id, replacing any job with the same id.
// A trigger whose next run equals "now" fires immediately.
// It returns the first fire time.
func (s *Service) Schedule(id ID, trigger cron.Schedule, fn Func) (time.Time, error) {
	if trigger == nil || fn == nil {
		return time.Time{}, errors.New("scheduler: trigger and fn required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return time.Time{}, ErrStopped
	}

	now := s.clk.Now()
	next := trigger.Next(now.Add(-time.Nanosecond))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNoNextRun, id)
	}

	s.cancelLocked(id)
	s.seq++
	e := &entry{id: id, sched: trigger, fn: fn, ver: s.seq}
	s.entries[id] = e
	s.armLocked(e, next)

	s.log.Debug("job scheduled", logx.String("job", id.String()), logx.Time("next", next))
	return next, nil
}

// Cancel removes the job. Cancelling an unknown id is not an error.
func (s *Service) Cancel(id ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(id)
}

// CancelRelated removes the primary and every secondary job of (owner, name).
func (s *Service) CancelRelated(owner int64, name string) int {
	return s.cancelWhere(func(id ID) bool { return id.Related(owner, name) })
}

// CancelSecondary removes only the tagged jobs of (owner, name).
func (s *Service) CancelSecondary(owner int64, name string) int {
	return s.cancelWhere(func(id ID) bool { return id.Related(owner, name) && !id.Primary() })
}

func (s *Service) cancelWhere(match func(ID) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id := range s.entries {
		if match(id) && s.cancelLocked(id) {
			n++
		}
	}
	return n
}

func (s *Service) cancelLocked(id ID) bool {
	e, ok := s.entries[id]
	if !ok {
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(s.entries, id)
	return true
}

func (s *Service) armLocked(e *entry, at time.Time) {
	delay := at.Sub(s.clk.Now())
	if delay < 0 {
		delay = 0
	}
	e.next = at
	id, ver := e.id, e.ver
	e.timer = s.clk.AfterFunc(delay, func() { s.fire(id, ver) })
}

// fire re-arms the job before running fn, so a slow callback never delays the next firing.
func (s *Service) fire(id ID, ver uint64) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok || e.ver != ver || s.stopped {
		// Replaced or cancelled after the timer had already been released.
		s.mu.Unlock()
		return
	}
	planned := e.next
	fn := e.fn
	after := planned
	if now := s.clk.Now(); now.After(after) {
		after = now
	}
	if next := e.sched.Next(after); next.IsZero() {
		delete(s.entries, id)
	} else {
		s.armLocked(e, next)
	}
	s.running.Add(1)
	s.mu.Unlock()

	defer s.running.Done()
	defer func() {
		if r := recover(); r != nil {
			s.panics.Add(1)
			s.log.Error("job panic",
				logx.String("job", id.String()),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()
	s.fired.Add(1)
	fn(id, planned)
}

// Next returns the next planned fire time of id.
func (s *Service) Next(id ID) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return time.Time{}, false
	}
	return e.next, true
}

// Related lists the jobs of (owner, name), primary first.
func (s *Service) Related(owner int64, name string) []Info {
	s.mu.Lock()
	out := make([]Info, 0, 2)
	for id, e := range s.entries {
		if id.Related(owner, name) {
			out = append(out, Info{ID: id, Next: e.next})
		}
	}
	s.mu.Unlock()
	sortInfos(out)
	return out
}

func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	st := Stats{Fired: s.fired.Load(), Panics: s.panics.Load()}
	for id := range s.entries {
		switch {
		case id.System():
			st.System++
		case id.Primary():
			st.Primary++
		default:
			st.Secondary++
		}
	}
	s.mu.Unlock()
	return st
}

// Snapshot lists all jobs ordered by owner, name and tag.
func (s *Service) Snapshot() []Info {
	s.mu.Lock()
	out := make([]Info, 0, len(s.entries))
	for id, e := range s.entries {
		out = append(out, Info{ID: id, Next: e.next})
	}
	s.mu.Unlock()
	sortInfos(out)
	return out
}

func sortInfos(in []Info) {
	sort.Slice(in, func(i, j int) bool {
		a, b := in[i].ID, in[j].ID
		if a.Owner != b.Owner {
			return a.Owner < b.Owner
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Tag < b.Tag
	})
}

// Stop cancels every timer and waits for running callbacks until ctx is done.
func (s *Service) Stop(ctx context.Context) error {
	start := time.Now()
	s.mu.Lock()
	s.stopped = true
	n := len(s.entries)
	for id := range s.entries {
		s.cancelLocked(id)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped", logx.Int("jobs", n), logx.Duration("took", time.Since(start)))
		return nil
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out", logx.Duration("took", time.Since(start)))
		return ctx.Err()
	}
}
