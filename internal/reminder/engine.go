package reminder

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"remindbot/internal/storage"
	"remindbot/internal/task/scheduler"
	"remindbot/internal/wallclock"
	logx "remindbot/pkg/logx"
)

const snoozeTagPrefix = "snooze:"

// Scheduler is the part of scheduler.Service the engine drives.
type Scheduler interface {
	Schedule(id scheduler.ID, trigger cron.Schedule, fn scheduler.Func) (time.Time, error)
	CancelRelated(owner int64, name string) int
	CancelSecondary(owner int64, name string) int
	Next(id scheduler.ID) (time.Time, bool)
}

type entry struct {
	tod wallclock.TimeOfDay
	ack bool
}

type Engine struct {
	cfg   Config
	clock *wallclock.Service
	jobs  Scheduler
	store storage.Store
	log   logx.Logger

	// mu guards the table and every register/cancel pair on jobs.
	mu    sync.Mutex
	table map[Key]*entry
	gen   uint64

	persistMu sync.Mutex
	persisted uint64
	// newest snapshot whose save failed; a later save writes it instead of an older one
	retryGen  uint64
	retrySnap []storage.Record

	out chan Delivery

	queued          atomic.Uint64
	dropped         atomic.Uint64
	suppressed      atomic.Uint64
	saves           atomic.Uint64
	persistFailures atomic.Uint64
}

// New wires an engine. store may be nil, in which case nothing is persisted.
func New(cfg Config, clock *wallclock.Service, jobs Scheduler, store storage.Store, log logx.Logger) *Engine {
	if cfg.Cadence <= 0 {
		cfg.Cadence = time.Hour
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		cfg:   cfg,
		clock: clock,
		jobs:  jobs,
		store: store,
		log:   log,
		table: map[Key]*entry{},
		out:   make(chan Delivery, cfg.QueueSize),
	}
}

// Deliveries carries due notifications to the dispatcher.
func (e *Engine) Deliveries() <-chan Delivery { return e.out }

// Cadence returns the primary repeat interval.
func (e *Engine) Cadence() time.Duration { return e.cfg.Cadence }

var _ Scheduler = (*scheduler.Service)(nil)

func canonicalName(name string) string { return strings.Join(strings.Fields(name), " ") }

func normalizeName(name string) (string, error) {
	name = canonicalName(name)
	if name == "" {
		return "", fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
	}
	if utf8.RuneCountInString(name) > MaxNameLen {
		return "", fmt.Errorf("%w: name longer than %d characters", ErrInvalidInput, MaxNameLen)
	}
	return name, nil
}

func primaryID(k Key) scheduler.ID { return scheduler.ID{Owner: k.Owner, Name: k.Name} }

// Create inserts or overwrites a reminder and arms its primary job at the
// next occurrence of tod (tomorrow if today's has passed).
// Pending snoozes of an overwritten reminder are dropped.
func (e *Engine) Create(ctx context.Context, owner int64, name string, tod wallclock.TimeOfDay) (Reminder, error) {
	name, err := normalizeName(name)
	if err != nil {
		return Reminder{}, err
	}
	if err := tod.Validate(); err != nil {
		return Reminder{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	key := Key{Owner: owner, Name: name}

	e.mu.Lock()
	anchor := e.clock.Next(tod)
	if _, err := e.armPrimaryLocked(key, anchor); err != nil {
		e.mu.Unlock()
		return Reminder{}, err
	}
	e.jobs.CancelSecondary(owner, name)
	_, existed := e.table[key]
	e.table[key] = &entry{tod: tod}
	gen, snap := e.snapshotLocked()
	e.mu.Unlock()

	e.log.Info("reminder created",
		logx.Owner(owner),
		logx.Reminder(name),
		logx.String("time", tod.String()),
		logx.Time("next", anchor),
		logx.Bool("overwrite", existed),
	)
	e.persist(ctx, gen, snap)
	return Reminder{Owner: owner, Name: name, Time: tod, Next: anchor}, nil
}

// Delete removes the reminder and cancels all of its jobs.
// It reports false and ErrNotFound when nothing existed.
func (e *Engine) Delete(ctx context.Context, owner int64, name string) (bool, error) {
	key := Key{Owner: owner, Name: canonicalName(name)}

	e.mu.Lock()
	if _, ok := e.table[key]; !ok {
		e.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	cancelled := e.jobs.CancelRelated(key.Owner, key.Name)
	delete(e.table, key)
	gen, snap := e.snapshotLocked()
	e.mu.Unlock()

	e.log.Info("reminder deleted", logx.Owner(owner), logx.Reminder(key.Name), logx.Int("jobs", cancelled))
	e.persist(ctx, gen, snap)
	return true, nil
}

// Acknowledge silences the reminder until tod on the next calendar day,
// regardless of whether today's occurrence has fired. Pending snoozes are dropped.
func (e *Engine) Acknowledge(ctx context.Context, owner int64, name string) (Reminder, error) {
	key := Key{Owner: owner, Name: canonicalName(name)}

	e.mu.Lock()
	ent, ok := e.table[key]
	if !ok {
		e.mu.Unlock()
		return Reminder{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	ent.ack = true
	anchor := e.clock.NextDay(ent.tod)
	if _, err := e.armPrimaryLocked(key, anchor); err != nil {
		ent.ack = false
		e.mu.Unlock()
		return Reminder{}, err
	}
	e.jobs.CancelSecondary(key.Owner, key.Name)
	ent.ack = false
	r := Reminder{Owner: owner, Name: key.Name, Time: ent.tod, Next: anchor}
	gen, snap := e.snapshotLocked()
	e.mu.Unlock()

	e.log.Info("reminder acknowledged", logx.Owner(owner), logx.Reminder(key.Name), logx.Time("next", anchor))
	e.persist(ctx, gen, snap)
	return r, nil
}

// Snooze adds a one-shot firing minutes from now. The primary job keeps its
// schedule and nothing is persisted; snoozes do not survive a restart.
func (e *Engine) Snooze(_ context.Context, owner int64, name string, minutes int) (time.Time, error) {
	if err := validateDelay(minutes); err != nil {
		return time.Time{}, err
	}
	key := Key{Owner: owner, Name: canonicalName(name)}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.table[key]; !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	at := e.clock.Now().Add(time.Duration(minutes) * time.Minute)
	id := scheduler.ID{Owner: owner, Name: key.Name, Tag: snoozeTagPrefix + uuid.NewString()}
	if _, err := e.jobs.Schedule(id, scheduler.At(at), e.fire); err != nil {
		return time.Time{}, err
	}
	e.log.Info("reminder snoozed", logx.Owner(owner), logx.Reminder(key.Name), logx.Int("minutes", minutes), logx.Time("at", at))
	return at, nil
}

// List returns the owner's reminders ordered by name.
func (e *Engine) List(owner int64) []Reminder {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Reminder, 0, 4)
	for k, ent := range e.table {
		if k.Owner == owner {
			out = append(out, e.viewLocked(k, ent))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get looks up one reminder.
func (e *Engine) Get(key Key) (Reminder, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.table[key]
	if !ok {
		return Reminder{}, false
	}
	return e.viewLocked(key, ent), true
}

// Owners lists every owner with at least one reminder, ascending.
func (e *Engine) Owners() []int64 {
	e.mu.Lock()
	seen := map[int64]struct{}{}
	for k := range e.table {
		seen[k.Owner] = struct{}{}
	}
	e.mu.Unlock()
	out := make([]int64, 0, len(seen))
	for o := range seen {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	n := len(e.table)
	e.mu.Unlock()
	return Stats{
		Reminders:       n,
		Queued:          e.queued.Load(),
		Dropped:         e.dropped.Load(),
		Suppressed:      e.suppressed.Load(),
		Saves:           e.saves.Load(),
		PersistFailures: e.persistFailures.Load(),
	}
}

func (e *Engine) viewLocked(k Key, ent *entry) Reminder {
	next, _ := e.jobs.Next(primaryID(k))
	return Reminder{Owner: k.Owner, Name: k.Name, Time: ent.tod, Acknowledged: ent.ack, Next: next}
}

// armPrimaryLocked registers (or replaces) the primary job of key.
func (e *Engine) armPrimaryLocked(key Key, anchor time.Time) (time.Time, error) {
	return e.jobs.Schedule(primaryID(key), scheduler.Every(e.cfg.Cadence, anchor), e.fire)
}

// fire runs on a scheduler goroutine.
func (e *Engine) fire(id scheduler.ID, at time.Time) {
	key := Key{Owner: id.Owner, Name: id.Name}

	e.mu.Lock()
	ent, ok := e.table[key]
	if !ok {
		e.mu.Unlock()
		e.log.Debug("stale job fired", logx.String("job", id.String()))
		return
	}
	if ent.ack && id.Primary() {
		// A flag restored from disk silences exactly one primary firing.
		ent.ack = false
		gen, snap := e.snapshotLocked()
		e.mu.Unlock()
		e.suppressed.Add(1)
		e.log.Info("firing suppressed (acknowledged)", logx.String("job", id.String()))
		e.persist(context.Background(), gen, snap)
		return
	}
	e.mu.Unlock()

	d := Delivery{Key: key, At: at, Snooze: !id.Primary()}
	select {
	case e.out <- d:
		e.queued.Add(1)
	default:
		e.dropped.Add(1)
		e.log.Warn("delivery dropped (queue full)",
			logx.String("job", id.String()),
			logx.Int("queue_cap", cap(e.out)),
		)
	}
}
