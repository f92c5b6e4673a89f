package reminder

import (
	"errors"
	"fmt"
	"time"

	"remindbot/internal/wallclock"
)

var (
	ErrNotFound     = errors.New("reminder not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidDelay = fmt.Errorf("%w: delay must be a positive number of minutes", ErrInvalidInput)
)

const (
	MaxNameLen       = 64
	MaxSnoozeMinutes = 7 * 24 * 60
)

// Key identifies a reminder: names are unique per owner.
type Key struct {
	Owner int64  `json:"owner_id"`
	Name  string `json:"name"`
}

func (k Key) String() string { return fmt.Sprintf("%d/%q", k.Owner, k.Name) }

// Reminder is a read-only view of one table entry.
type Reminder struct {
	Owner        int64               `json:"owner_id"`
	Name         string              `json:"name"`
	Time         wallclock.TimeOfDay `json:"time"`
	Acknowledged bool                `json:"acknowledged"`
	// Next is the primary job's next planned firing.
	Next time.Time `json:"next"`
}

func (r Reminder) Key() Key { return Key{Owner: r.Owner, Name: r.Name} }

// Delivery asks the dispatcher to notify the owner about a reminder.
type Delivery struct {
	Key    Key       `json:"key"`
	At     time.Time `json:"at"`
	Snooze bool      `json:"snooze"`
}

type Config struct {
	// Cadence is the repeat interval of primary jobs.
	Cadence time.Duration
	// QueueSize bounds the Deliveries channel.
	QueueSize int
}

type Stats struct {
	Reminders       int    `json:"reminders"`
	Queued          uint64 `json:"queued"`
	Dropped         uint64 `json:"dropped"`
	Suppressed      uint64 `json:"suppressed"`
	Saves           uint64 `json:"saves"`
	PersistFailures uint64 `json:"persist_failures"`
}
