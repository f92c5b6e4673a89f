package reminder

import (
	"context"
	"sort"
	"time"

	"remindbot/internal/storage"
	"remindbot/internal/wallclock"
	logx "remindbot/pkg/logx"
)

const saveTimeout = 10 * time.Second

// snapshotLocked bumps the generation and copies the table in stable order.
func (e *Engine) snapshotLocked() (uint64, []storage.Record) {
	e.gen++
	recs := make([]storage.Record, 0, len(e.table))
	for k, ent := range e.table {
		recs = append(recs, storage.Record{OwnerID: k.Owner, Name: k.Name, Time: ent.tod.String(), Acknowledged: ent.ack})
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].OwnerID != recs[j].OwnerID {
			return recs[i].OwnerID < recs[j].OwnerID
		}
		return recs[i].Name < recs[j].Name
	})
	return e.gen, recs
}

// persist writes snap unless a newer generation is already on disk. A newer
// snapshot whose save failed is written in place of snap.
// Failures are logged and counted; the in-memory table stays authoritative.
func (e *Engine) persist(ctx context.Context, gen uint64, snap []storage.Record) {
	if e.store == nil {
		return
	}
	e.persistMu.Lock()
	defer e.persistMu.Unlock()
	if gen <= e.persisted {
		return
	}
	if gen < e.retryGen {
		gen, snap = e.retryGen, e.retrySnap
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := e.store.Save(ctx, snap); err != nil {
		e.persistFailures.Add(1)
		e.log.Error("snapshot save failed", logx.Uint64("gen", gen), logx.Int("records", len(snap)), logx.Err(err))
		if gen > e.retryGen {
			e.retryGen, e.retrySnap = gen, snap
		}
		return
	}
	e.markPersistedLocked(gen)
}

func (e *Engine) markPersistedLocked(gen uint64) {
	if gen > e.persisted {
		e.persisted = gen
	}
	if gen >= e.retryGen {
		e.retryGen, e.retrySnap = 0, nil
	}
	e.saves.Add(1)
}

// Flush writes the current table unconditionally, returning any error.
func (e *Engine) Flush(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	e.mu.Lock()
	gen, snap := e.snapshotLocked()
	e.mu.Unlock()

	e.persistMu.Lock()
	defer e.persistMu.Unlock()
	if err := e.store.Save(ctx, snap); err != nil {
		e.persistFailures.Add(1)
		return err
	}
	e.markPersistedLocked(gen)
	return nil
}

// Restore loads the snapshot and re-arms every primary job exactly as Create
// would, keeping the stored acknowledged flag. Malformed records are skipped.
// It returns the number of reminders restored.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	if e.store == nil {
		return 0, nil
	}
	recs, err := e.store.Load(ctx)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	skipped := 0
	for _, r := range recs {
		tod, err := wallclock.ParseTimeOfDay(r.Time)
		if err != nil {
			skipped++
			e.log.Warn("skipping stored reminder", logx.Owner(r.OwnerID), logx.Reminder(r.Name), logx.Err(err))
			continue
		}
		name, err := normalizeName(r.Name)
		if err != nil {
			skipped++
			e.log.Warn("skipping stored reminder", logx.Owner(r.OwnerID), logx.Err(err))
			continue
		}
		key := Key{Owner: r.OwnerID, Name: name}
		if _, err := e.armPrimaryLocked(key, e.clock.Next(tod)); err != nil {
			return len(e.table), err
		}
		e.table[key] = &entry{tod: tod, ack: r.Acknowledged}
	}
	e.log.Info("reminders restored", logx.Int("count", len(e.table)), logx.Int("skipped", skipped))
	return len(e.table), nil
}
