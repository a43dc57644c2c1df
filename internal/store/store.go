// Package store persists the dispatcher's diagnostics journal.
package store

import "errors"

// ErrNotFound is returned when a requested entity does not exist in the store.
var ErrNotFound = errors.New("not found")

// Journal records dispatcher diagnostics and per-kind counters.
type Journal interface {
	// Append stores e, assigning its sequence number, and bumps the counter
	// of e.Kind. The oldest entries beyond the journal limit are pruned.
	Append(e *Entry) error
	// Get returns the entry with sequence number seq.
	Get(seq uint64) (*Entry, error)
	// Recent returns up to n entries, newest first.
	Recent(n int) ([]*Entry, error)
	// Counters returns the number of entries ever appended, per kind.
	Counters() (map[string]uint64, error)

	// Close the store
	Close() error
}
