package storage

import (
	"context"
	"time"
)

// Record is the persisted form of one reminder.
// Unknown fields are ignored on load; a missing acknowledged flag reads as false.
type Record struct {
	OwnerID      int64  `json:"owner_id"`
	Name         string `json:"name"`
	Time         string `json:"time"` // HH:MM
	Acknowledged bool   `json:"acknowledged"`
}

// Store loads and saves full snapshots.
type Store interface {
	// Load returns the last saved snapshot. A store that was never written loads as empty.
	Load(ctx context.Context) ([]Record, error)
	// Save replaces the snapshot.
	Save(ctx context.Context, records []Record) error
	Close() error
}

// Config configures storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
