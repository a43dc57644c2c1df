package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketJournal  = []byte("journal")
	bucketCounters = []byte("counters")
)

// DefaultJournalLimit bounds the journal when no limit is configured.
const DefaultJournalLimit = 1000

// BoltJournal implements Journal using BoltDB.
type BoltJournal struct {
	db    *bolt.DB
	limit uint64
	now   func() time.Time
}

// NewBoltJournal opens or creates a BoltDB database keeping at most limit
// entries.
func NewBoltJournal(path string, limit int) (*BoltJournal, error) {
	if limit <= 0 {
		limit = DefaultJournalLimit
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketJournal, bucketCounters} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltJournal{db: db, limit: uint64(limit), now: time.Now}, nil
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

func (s *BoltJournal) Append(e *Entry) error {
	if e.Time.IsZero() {
		e.Time = s.now()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJournal)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketJournal)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		e.Seq = seq
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if err := b.Put(seqKey(seq), data); err != nil {
			return err
		}

		// Keys are sequential, so everything at or below seq-limit is stale.
		if seq > s.limit {
			cutoff := seq - s.limit
			c := b.Cursor()
			for k, _ := c.First(); k != nil && binary.BigEndian.Uint64(k) <= cutoff; k, _ = c.First() {
				if err := c.Delete(); err != nil {
					return err
				}
			}
		}

		return bumpCounter(tx.Bucket(bucketCounters), e.Kind)
	})
}

func bumpCounter(b *bolt.Bucket, kind string) error {
	if b == nil {
		return fmt.Errorf("bucket %q not found", bucketCounters)
	}
	var n uint64
	if v := b.Get([]byte(kind)); len(v) == 8 {
		n = binary.BigEndian.Uint64(v)
	}
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, n+1)
	return b.Put([]byte(kind), v)
}

func (s *BoltJournal) Get(seq uint64) (*Entry, error) {
	var e Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJournal)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketJournal)
		}
		data := b.Get(seqKey(seq))
		if data == nil {
			return fmt.Errorf("journal entry %d: %w", seq, ErrNotFound)
		}
		return json.Unmarshal(data, &e)
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *BoltJournal) Recent(n int) ([]*Entry, error) {
	var entries []*Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJournal)
		if b == nil {
			return nil // no bucket = no entries
		}
		entries = make([]*Entry, 0, n)
		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(entries) < n; k, v = c.Prev() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, &e)
		}
		return nil
	})
	return entries, err
}

func (s *BoltJournal) Counters() (map[string]uint64, error) {
	counters := make(map[string]uint64)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCounters)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if len(v) == 8 {
				counters[string(k)] = binary.BigEndian.Uint64(v)
			}
			return nil
		})
	})
	return counters, err
}

func (s *BoltJournal) Close() error {
	return s.db.Close()
}
