package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/wallclock"
	logx "remindbot/pkg/logx"
)

type fakeLookup map[reminder.Key]reminder.Reminder

func (f fakeLookup) Get(k reminder.Key) (reminder.Reminder, bool) {
	r, ok := f[k]
	return r, ok
}

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []reminder.Reminder
	ch   chan struct{}
}

func (f *fakeSender) SendReminder(_ context.Context, r reminder.Reminder, _ reminder.Delivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ch != nil {
		defer func() { f.ch <- struct{}{} }()
	}
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, r)
	return nil
}

var (
	pending = reminder.Reminder{Owner: 1, Name: "Magnesium", Time: wallclock.MustParse("08:30")}
	acked   = reminder.Reminder{Owner: 1, Name: "Zinc", Time: wallclock.MustParse("09:00"), Acknowledged: true}
)

func lookup() fakeLookup {
	return fakeLookup{pending.Key(): pending, acked.Key(): acked}
}

func TestSendGate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		key  reminder.Key
		want bool
	}{
		{name: "pending", key: pending.Key(), want: true},
		{name: "acknowledged", key: acked.Key(), want: false},
		{name: "absent", key: reminder.Key{Owner: 9, Name: "none"}, want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sender := &fakeSender{}
			s := New(Config{}, lookup(), sender, logx.Nop())
			if got := s.Send(context.Background(), reminder.Delivery{Key: tt.key}); got != tt.want {
				t.Fatalf("Send = %v, want %v", got, tt.want)
			}
			if tt.want != (len(sender.sent) == 1) {
				t.Fatalf("sender calls = %d", len(sender.sent))
			}
		})
	}
}

func TestSendFailureIsSwallowed(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{err: errors.New("chat unreachable")}
	s := New(Config{}, lookup(), sender, logx.Nop())

	if s.Send(context.Background(), reminder.Delivery{Key: pending.Key()}) {
		t.Fatalf("failed send reported success")
	}
	if st := s.Stats(); st.Failed != 1 || st.Delivered != 0 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestWorkersDrainChannel(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{ch: make(chan struct{}, 8)}
	s := New(Config{Workers: 2, RatePerSec: 100}, lookup(), sender, logx.Nop())

	in := make(chan reminder.Delivery, 8)
	if err := s.Start(context.Background(), in); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(context.Background(), in); !errors.Is(err, ErrRunning) {
		t.Fatalf("second Start = %v", err)
	}
	for i := 0; i < 3; i++ {
		in <- reminder.Delivery{Key: pending.Key()}
	}
	in <- reminder.Delivery{Key: acked.Key()}

	for i := 0; i < 3; i++ {
		select {
		case <-sender.ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d deliveries", i)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	deadline := time.Now().Add(2 * time.Second)
	for s.Stats().Suppressed != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	st := s.Stats()
	if st.Delivered != 3 || st.Suppressed != 1 || st.Running {
		t.Fatalf("stats=%+v", st)
	}
}
