// Package storage persists the reminder table as a full snapshot.
//
// Every save replaces the whole snapshot atomically: a failed write leaves
// the previous snapshot intact. Drivers:
//   - "file": JSON array, written to a temp file and renamed into place
//   - "sqlite": one table, replaced inside a transaction
//   - "memory": process-local copy, for tests and ephemeral runs
package storage
