// Package storage is the recipient directory: it maps recipient names to
// chat addresses.
//
// Drivers:
//   - "memory": process-local map (default)
//   - "file": JSON Lines journal compacted into a snapshot
//   - "sqlite": SQLite database file (pure-Go driver)
//
// Names are normalized before every lookup: surrounding space and a leading
// "@" are dropped and the name is lowercased.
package storage
