package storage

import (
	"context"
	"sync"
)

// Memory keeps the snapshot in process. Saves counts successful writes.
type Memory struct {
	mu      sync.Mutex
	records []Record
	saves   int
	failErr error
}

func NewMemory(initial ...Record) *Memory {
	return &Memory{records: append([]Record(nil), initial...)}
}

func (m *Memory) Load(context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...), nil
}

func (m *Memory) Save(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.records = append([]Record(nil), records...)
	m.saves++
	return nil
}

// Saves returns how many snapshots were written.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// SetFailure makes subsequent saves fail with err (nil restores normal saves).
func (m *Memory) SetFailure(err error) {
	m.mu.Lock()
	m.failErr = err
	m.mu.Unlock()
}

func (m *Memory) Close() error { return nil }
