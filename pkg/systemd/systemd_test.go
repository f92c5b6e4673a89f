package systemd

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logx "remindbot/pkg/logx"
)

type recorder struct {
	mu     sync.Mutex
	states []string
	err    error
}

func (r *recorder) notify(_ bool, state string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	r.states = append(r.states, state)
	return true, nil
}

func (r *recorder) count(state string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.states {
		if s == state {
			n++
		}
	}
	return n
}

func TestReadyAndStopping(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	n := New(logx.Nop())
	n.notify = rec.notify

	if !n.Ready() || !n.Stopping() || !n.Status("3 reminders") {
		t.Fatalf("expected notifications to be sent")
	}
	if rec.count("READY=1") != 1 || rec.count("STOPPING=1") != 1 || rec.count("STATUS=3 reminders") != 1 {
		t.Fatalf("states=%v", rec.states)
	}

	rec.err = errors.New("socket gone")
	if n.Ready() {
		t.Fatalf("Ready reported success on error")
	}
}

func TestWatchdogDisabledReturns(t *testing.T) {
	t.Parallel()
	n := New(logx.Nop())
	n.watchdog = func(bool) (time.Duration, error) { return 0, nil }

	done := make(chan struct{})
	go func() {
		n.RunWatchdog(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("RunWatchdog blocked with watchdog disabled")
	}
}

func TestWatchdogPings(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	n := New(logx.Nop())
	n.notify = rec.notify
	n.watchdog = func(bool) (time.Duration, error) { return 20 * time.Millisecond, nil }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.RunWatchdog(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for rec.count("WATCHDOG=1") < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("watchdog not pinged")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
}
