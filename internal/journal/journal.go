// Package journal keeps an append-only trace of every processed turn in a
// local BadgerDB. It is diagnostics only: the pipeline never reads it to
// answer a query, so it is not a results cache.
package journal

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Entry is one recorded turn.
type Entry struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Utterance string        `json:"utterance"`
	Intention string        `json:"intention"`
	Action    string        `json:"action"`
	RowCount  int           `json:"row_count"`
	Pushed    bool          `json:"pushed"`
	Awaiting  string        `json:"awaiting,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Journal is a badger-backed turn log.
type Journal struct {
	db *badger.DB
}

// Open opens (or creates) the journal at path.
func Open(path string) (*Journal, error) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("journal: open badger: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record appends one entry. Failures are returned but callers treat them as
// non-fatal; a lost trace never fails a turn.
func (j *Journal) Record(e *Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.ID == "" {
		e.ID = fmt.Sprintf("%d", e.Timestamp.UnixNano())
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("journal: marshal entry: %w", err)
	}

	// Keys sort by timestamp so Recent can walk backwards; the caller's
	// turn id travels inside the payload.
	key := fmt.Sprintf("turn:%020d", e.Timestamp.UnixNano())
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// Recent returns up to n entries, newest first.
func (j *Journal) Recent(n int) ([]*Entry, error) {
	var out []*Entry

	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte("turn:\xff")); it.ValidForPrefix([]byte("turn:")) && len(out) < n; it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var e Entry
				if err := json.Unmarshal(val, &e); err != nil {
					return err
				}
				out = append(out, &e)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("journal: read entries: %w", err)
	}
	return out, nil
}

// Close releases the store.
func (j *Journal) Close() error {
	return j.db.Close()
}
