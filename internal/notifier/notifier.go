package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"remindbot/internal/reminder"
	rtsup "remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

var ErrRunning = errors.New("notifier already running")

// Lookup resolves the current state of a reminder.
type Lookup interface {
	Get(key reminder.Key) (reminder.Reminder, bool)
}

// Sender renders and transmits one notification.
type Sender interface {
	SendReminder(ctx context.Context, r reminder.Reminder, d reminder.Delivery) error
}

type Config struct {
	Workers     int
	RatePerSec  int
	SendTimeout time.Duration
}

type Stats struct {
	Delivered  uint64 `json:"delivered"`
	Suppressed uint64 `json:"suppressed"`
	Failed     uint64 `json:"failed"`
	Running    bool   `json:"running"`
}

type Service struct {
	lookup Lookup
	sender Sender
	log    logx.Logger

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	sup     *rtsup.Supervisor

	delivered  atomic.Uint64
	suppressed atomic.Uint64
	failed     atomic.Uint64
}

func New(cfg Config, lookup Lookup, sender Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{lookup: lookup, sender: sender, log: log}
	s.applyLocked(cfg)
	return s
}

// Apply updates the rate limit and send timeout. Worker count changes need a restart.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	s.cfg = cfg
	// Burst equals the per-second rate so a cluster of reminders on the same minute goes out at once.
	if s.limiter == nil {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
		return
	}
	s.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
	s.limiter.SetBurst(cfg.RatePerSec)
}

// Start runs the worker pool until ctx is cancelled or Stop is called.
func (s *Service) Start(ctx context.Context, in <-chan reminder.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return ErrRunning
	}
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		// Delivery is best-effort; a failing worker must not stop the process.
		rtsup.WithCancelOnError(false),
	)
	for i := 0; i < s.cfg.Workers; i++ {
		s.sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			return s.workerLoop(c, in)
		}, rtsup.WithPublishFirstError(true))
	}
	s.log.Info("notifier started", logx.Int("workers", s.cfg.Workers), logx.Int("rate_per_sec", s.cfg.RatePerSec))
	return nil
}

// Stop cancels the workers and waits for in-flight sends until ctx is done.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	err := sup.Stop(ctx)
	s.log.Info("notifier stopped", logx.Uint64("delivered", s.delivered.Load()), logx.Uint64("failed", s.failed.Load()))
	if errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func (s *Service) workerLoop(ctx context.Context, in <-chan reminder.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-in:
			if !ok {
				return nil
			}
			s.mu.Lock()
			lim := s.limiter
			s.mu.Unlock()
			if err := lim.Wait(ctx); err != nil {
				return ctx.Err()
			}
			s.Send(ctx, d)
		}
	}
}

// Send delivers d unless the reminder is gone or acknowledged.
// It returns true only when the Sender succeeded; errors are logged, never retried.
func (s *Service) Send(ctx context.Context, d reminder.Delivery) bool {
	r, ok := s.lookup.Get(d.Key)
	if !ok {
		s.suppressed.Add(1)
		s.log.Debug("delivery skipped (reminder gone)", logx.String("key", d.Key.String()))
		return false
	}
	if r.Acknowledged {
		s.suppressed.Add(1)
		s.log.Debug("delivery skipped (acknowledged)", logx.String("key", d.Key.String()))
		return false
	}

	s.mu.Lock()
	timeout := s.cfg.SendTimeout
	s.mu.Unlock()
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := s.sender.SendReminder(sctx, r, d); err != nil {
		s.failed.Add(1)
		if errors.Is(err, kit.ErrUnreachable) {
			s.log.Info("delivery skipped (chat unreachable)", logx.Owner(r.Owner), logx.Reminder(r.Name), logx.Err(err))
			return false
		}
		s.log.Warn("delivery failed",
			logx.Owner(r.Owner),
			logx.Reminder(r.Name),
			logx.Bool("snooze", d.Snooze),
			logx.Err(err),
		)
		return false
	}
	s.delivered.Add(1)
	s.log.Debug("delivered",
		logx.Owner(r.Owner),
		logx.Reminder(r.Name),
		logx.Bool("snooze", d.Snooze),
		logx.Duration("took", time.Since(start)),
	)
	return true
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	running := s.sup != nil
	s.mu.Unlock()
	return Stats{
		Delivered:  s.delivered.Load(),
		Suppressed: s.suppressed.Load(),
		Failed:     s.failed.Load(),
		Running:    running,
	}
}

// Supervisor exposes worker health for status output (nil when stopped).
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}
