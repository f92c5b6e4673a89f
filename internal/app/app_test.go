package app

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/reminder"
)

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		in      config.StorageConfig
		driver  string
		path    string
		busy    time.Duration
		wantErr bool
	}{
		{name: "empty is memory", in: config.StorageConfig{}, driver: "memory"},
		{name: "none", in: config.StorageConfig{Driver: "none"}, driver: "memory"},
		{name: "file default path", in: config.StorageConfig{Driver: "file"}, driver: "file", path: config.DefaultStorePath},
		{name: "file", in: config.StorageConfig{Driver: " FILE ", Path: "/var/lib/r.json"}, driver: "file", path: "/var/lib/r.json"},
		{name: "sqlite default busy", in: config.StorageConfig{Driver: "sqlite3", Path: "r.db"}, driver: "sqlite", path: "r.db", busy: time.Second},
		{name: "sqlite busy", in: config.StorageConfig{Driver: "sqlite", Path: "r.db", BusyTimeout: "3s"}, driver: "sqlite", path: "r.db", busy: 3 * time.Second},
		{name: "sqlite needs path", in: config.StorageConfig{Driver: "sqlite"}, wantErr: true},
		{name: "sqlite bad busy", in: config.StorageConfig{Driver: "sqlite", Path: "r.db", BusyTimeout: "soon"}, wantErr: true},
		{name: "unknown", in: config.StorageConfig{Driver: "redis"}, wantErr: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := mapStorageConfig(&config.Config{Storage: tc.in})
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Driver != tc.driver || got.Path != tc.path || got.BusyTimeout != tc.busy {
				t.Fatalf("got %+v, want driver=%s path=%s busy=%s", got, tc.driver, tc.path, tc.busy)
			}
		})
	}

	if got, err := mapStorageConfig(nil); err != nil || got.Driver != "memory" {
		t.Fatalf("nil config: got %+v err=%v", got, err)
	}
}

func TestValidateReload(t *testing.T) {
	t.Parallel()

	ok := &config.Config{}
	ok.Reminders.SnoozeOptions = []int{15, reminder.MaxSnoozeMinutes}
	if err := validateReload(context.Background(), ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	long := &config.Config{}
	long.Reminders.SnoozeOptions = []int{reminder.MaxSnoozeMinutes + 1}
	if err := validateReload(context.Background(), long); err == nil {
		t.Fatalf("expected error for snooze option beyond limit")
	}

	neg := &config.Config{}
	neg.Delivery.Workers = -1
	if err := validateReload(context.Background(), neg); err == nil {
		t.Fatalf("expected error for negative workers")
	}
}

func TestReasonFromSignal(t *testing.T) {
	t.Parallel()
	cases := map[os.Signal]StopReason{
		os.Interrupt:    StopSIGINT,
		syscall.SIGTERM: StopSIGTERM,
		syscall.SIGHUP:  StopReason("signal:hangup"),
	}
	for sig, want := range cases {
		if got := ReasonFromSignal(sig); got != want {
			t.Fatalf("%v: got %q want %q", sig, got, want)
		}
	}
	if got := ReasonFromSignal(nil); got != StopUnknown {
		t.Fatalf("nil: got %q", got)
	}
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	t.Parallel()
	a := &App{}
	if err := a.Stop(context.Background(), StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-a.Done():
	default:
		t.Fatalf("Done should be closed before Start")
	}
	if a.Err() != nil {
		t.Fatalf("Err: %v", a.Err())
	}
}
