package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	logx "remindbot/pkg/logx"
)

var base = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*clock.Mock, *Service) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(base)
	s := New(mock, logx.Nop())
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return mock, s
}

func recorder() (chan time.Time, Func) {
	ch := make(chan time.Time, 16)
	return ch, func(_ ID, at time.Time) { ch <- at }
}

func recvAt(t *testing.T, ch <-chan time.Time) time.Time {
	t.Helper()
	select {
	case at := <-ch:
		return at
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a firing")
		return time.Time{}
	}
}

func expectNone(t *testing.T, ch <-chan time.Time) {
	t.Helper()
	select {
	case at := <-ch:
		t.Fatalf("unexpected firing at %v", at)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEveryFiresAtAnchorThenRepeats(t *testing.T) {
	t.Parallel()
	mock, s := newMock(t)
	ch, fn := recorder()

	id := ID{Owner: 1, Name: "Magnesium"}
	first, err := s.Schedule(id, Every(time.Hour, base.Add(30*time.Minute)), fn)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if want := base.Add(30 * time.Minute); !first.Equal(want) {
		t.Fatalf("first=%v want %v", first, want)
	}

	mock.Add(29 * time.Minute)
	expectNone(t, ch)
	mock.Add(time.Minute)
	if got := recvAt(t, ch); !got.Equal(base.Add(30 * time.Minute)) {
		t.Fatalf("fired at %v", got)
	}
	mock.Add(59 * time.Minute)
	expectNone(t, ch)
	mock.Add(time.Minute)
	if got := recvAt(t, ch); !got.Equal(base.Add(90 * time.Minute)) {
		t.Fatalf("fired at %v", got)
	}
	if next, ok := s.Next(id); !ok || !next.Equal(base.Add(150*time.Minute)) {
		t.Fatalf("next=%v ok=%v", next, ok)
	}
}

func TestScheduleReplacesSameID(t *testing.T) {
	t.Parallel()
	mock, s := newMock(t)
	ch, fn := recorder()

	id := ID{Owner: 1, Name: "a"}
	if _, err := s.Schedule(id, At(base.Add(10*time.Minute)), fn); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if _, err := s.Schedule(id, At(base.Add(20*time.Minute)), fn); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("len=%d want 1", s.Len())
	}

	mock.Add(10 * time.Minute)
	expectNone(t, ch)
	mock.Add(10 * time.Minute)
	if got := recvAt(t, ch); !got.Equal(base.Add(20 * time.Minute)) {
		t.Fatalf("fired at %v", got)
	}
	if s.Len() != 0 {
		t.Fatalf("one-shot job should be gone, len=%d", s.Len())
	}
}

func TestAtNowFiresImmediately(t *testing.T) {
	t.Parallel()
	mock, s := newMock(t)
	ch, fn := recorder()

	if _, err := s.Schedule(ID{Owner: 1, Name: "now"}, At(base), fn); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	mock.Add(0)
	if got := recvAt(t, ch); !got.Equal(base) {
		t.Fatalf("fired at %v", got)
	}
}

func TestPastOneShotRejected(t *testing.T) {
	t.Parallel()
	_, s := newMock(t)
	_, fn := recorder()

	_, err := s.Schedule(ID{Owner: 1, Name: "late"}, At(base.Add(-time.Minute)), fn)
	if !errors.Is(err, ErrNoNextRun) {
		t.Fatalf("expected ErrNoNextRun, got %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("nothing should be registered")
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	t.Parallel()
	mock, s := newMock(t)
	ch, fn := recorder()

	id := ID{Owner: 2, Name: "x"}
	if s.Cancel(id) {
		t.Fatalf("cancel of unknown id reported true")
	}
	if _, err := s.Schedule(id, At(base.Add(time.Minute)), fn); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if !s.Cancel(id) {
		t.Fatalf("cancel of known id reported false")
	}
	if s.Cancel(id) {
		t.Fatalf("second cancel reported true")
	}
	mock.Add(time.Hour)
	expectNone(t, ch)
}

func TestCancelSecondaryAndRelated(t *testing.T) {
	t.Parallel()
	_, s := newMock(t)
	_, fn := recorder()

	primary := ID{Owner: 1, Name: "a"}
	snooze := ID{Owner: 1, Name: "a", Tag: "snooze:1"}
	other := ID{Owner: 1, Name: "b"}
	for _, id := range []ID{primary, snooze, other} {
		if _, err := s.Schedule(id, Every(time.Hour, base.Add(time.Hour)), fn); err != nil {
			t.Fatalf("Schedule(%s): %v", id, err)
		}
	}

	if n := s.CancelSecondary(1, "a"); n != 1 {
		t.Fatalf("CancelSecondary=%d want 1", n)
	}
	if _, ok := s.Next(primary); !ok {
		t.Fatalf("primary must survive CancelSecondary")
	}
	if _, err := s.Schedule(snooze, At(base.Add(time.Minute)), fn); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if got := s.Related(1, "a"); len(got) != 2 || !got[0].ID.Primary() {
		t.Fatalf("related=%v", got)
	}
	if n := s.CancelRelated(1, "a"); n != 2 {
		t.Fatalf("CancelRelated=%d want 2", n)
	}
	st := s.Stats()
	if st.Primary != 1 || st.Secondary != 0 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestStatsCountsProcessJobsSeparately(t *testing.T) {
	t.Parallel()
	_, s := newMock(t)
	_, fn := recorder()

	for _, id := range []ID{
		{Tag: "app:heartbeat"},
		{Owner: 1, Name: "a"},
		{Owner: 1, Name: "a", Tag: "snooze:1"},
	} {
		if _, err := s.Schedule(id, Every(time.Hour, base.Add(time.Hour)), fn); err != nil {
			t.Fatalf("Schedule(%s): %v", id, err)
		}
	}
	st := s.Stats()
	if st.System != 1 || st.Primary != 1 || st.Secondary != 1 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestPanicIsRecoveredAndJobRearmed(t *testing.T) {
	t.Parallel()
	mock, s := newMock(t)

	calls := make(chan struct{}, 4)
	id := ID{Owner: 1, Name: "boom"}
	_, err := s.Schedule(id, Every(time.Hour, base.Add(time.Hour)), func(ID, time.Time) {
		calls <- struct{}{}
		panic("boom")
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	mock.Add(time.Hour)
	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatalf("job did not run")
	}
	if next, ok := s.Next(id); !ok || !next.Equal(base.Add(2*time.Hour)) {
		t.Fatalf("next=%v ok=%v", next, ok)
	}
	deadline := time.Now().Add(2 * time.Second)
	for s.Stats().Panics == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("panic not counted")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStopRejectsNewJobs(t *testing.T) {
	t.Parallel()
	_, s := newMock(t)
	_, fn := recorder()

	if _, err := s.Schedule(ID{Owner: 1, Name: "a"}, Every(time.Hour, base), fn); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("jobs remain after stop")
	}
	if _, err := s.Schedule(ID{Owner: 1, Name: "b"}, Every(time.Hour, base), fn); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}
