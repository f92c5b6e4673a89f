package scheduler

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrStopped   = errors.New("scheduler: stopped")
	ErrNoNextRun = errors.New("scheduler: trigger has no future run")
)

// ID identifies a job. An empty Tag marks the primary job of (Owner, Name).
// Jobs with an empty Name belong to the process, not to a reminder.
type ID struct {
	Owner int64
	Name  string
	Tag   string
}

func (id ID) Primary() bool { return id.Tag == "" }

func (id ID) System() bool { return id.Name == "" }

// Related reports whether id belongs to the same (owner, name) pair.
func (id ID) Related(owner int64, name string) bool {
	return id.Owner == owner && id.Name == name
}

func (id ID) String() string {
	if id.Tag == "" {
		return fmt.Sprintf("%d/%q", id.Owner, id.Name)
	}
	return fmt.Sprintf("%d/%q#%s", id.Owner, id.Name, id.Tag)
}

// Func runs when a job fires. at is the planned fire time, not the wall time.
type Func func(id ID, at time.Time)

// Info describes a registered job.
type Info struct {
	ID   ID        `json:"id"`
	Next time.Time `json:"next"`
}

// Stats counts registered jobs and firings.
type Stats struct {
	Primary   int    `json:"primary"`
	Secondary int    `json:"secondary"`
	System    int    `json:"system"`
	Fired     uint64 `json:"fired"`
	Panics    uint64 `json:"panics"`
}
