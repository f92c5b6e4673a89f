// Package reminder owns the reminder table and the jobs that drive it.
//
// Every reminder has exactly one primary job that repeats at a fixed cadence
// (hourly by default) from its next wall-clock occurrence. Acknowledging moves
// the anchor to the same time tomorrow. Snoozing adds a one-shot secondary job
// next to the primary. Deleting removes the reminder and all of its jobs.
//
// Job firings are handed to the dispatcher over the Deliveries channel; the
// engine never performs I/O towards the user itself. A firing that is already
// in flight when Acknowledge runs may still be delivered once. That race is
// accepted.
package reminder
