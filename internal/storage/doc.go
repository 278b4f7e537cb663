// Package storage persists reminder collections and the alarm history.
//
// A Snapshot is one owner's complete state: every reminder with its progress
// counters and skip dates, plus whether the owner is paused. Drivers:
//   - "file": one JSON snapshot per owner plus an append-only history journal
//   - "sqlite": embedded database file (modernc.org/sqlite, no cgo)
//   - "postgres": shared server database through a pgx connection pool
//
// An empty driver or "none" disables persistence.
package storage
