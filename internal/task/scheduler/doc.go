// Package scheduler registers, replaces and cancels timed callbacks.
//
// Jobs are keyed by a structured ID and driven by cron.Schedule triggers
// (one-shot, anchored interval or cron spec). Timers run on an injectable
// clock so time can be simulated in tests.
//
// Replacing a job cancels the previous one under the same lock that
// registers the new one. Cancelling never interrupts a callback that is
// already running; it only prevents future firings.
package scheduler
