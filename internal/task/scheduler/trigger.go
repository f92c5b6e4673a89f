package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// parser accepts 5-field and 6-field (with seconds) specs plus descriptors.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// At fires once at t.
func At(t time.Time) cron.Schedule { return onceSchedule{at: t} }

type onceSchedule struct{ at time.Time }

func (s onceSchedule) Next(t time.Time) time.Time {
	if t.Before(s.at) {
		return s.at
	}
	return time.Time{}
}

// Every fires at start and then every interval, keeping the start as phase.
// A missed firing is skipped rather than replayed.
func Every(interval time.Duration, start time.Time) cron.Schedule {
	return anchoredSchedule{every: interval, start: start}
}

type anchoredSchedule struct {
	every time.Duration
	start time.Time
}

func (s anchoredSchedule) Next(t time.Time) time.Time {
	if t.Before(s.start) {
		return s.start
	}
	if s.every <= 0 {
		return time.Time{}
	}
	n := t.Sub(s.start)/s.every + 1
	return s.start.Add(n * s.every)
}

// Cron parses spec. Specs without CRON_TZ= are evaluated in loc.
func Cron(spec string, loc *time.Location) (cron.Schedule, error) {
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("cron spec %q: %w", spec, err)
	}
	if ss, ok := sched.(*cron.SpecSchedule); ok && loc != nil && ss.Location == time.Local {
		ss.Location = loc
	}
	return sched, nil
}
