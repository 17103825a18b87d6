// Package journal keeps an append-only record of fuzz runs in a badger
// database: epoch folds, issued intents, and violations, so a failed soak can
// be reconstructed after the fact.
package journal

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

// Record kinds.
const (
	KindRunStart    = "run_start"
	KindEpochFold   = "epoch_fold"
	KindJoinIssued  = "join_issued"
	KindLeaveIssued = "leave_issued"
	KindViolation   = "violation"
	KindRunEnd      = "run_end"
)

// Record is one journal entry of a fuzz run. Seq is assigned by Append, in
// strictly increasing order per run.
type Record struct {
	Seq    uint64    `json:"seq"`
	Time   time.Time `json:"time"`
	Kind   string    `json:"kind"`
	Epoch  uint64    `json:"epoch"`
	Node   string    `json:"node,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// Journal is an append-only store of fuzz run records.
type Journal struct {
	mu   sync.Mutex
	db   *badger.DB
	seqs map[string]uint64
}

// Open opens or creates the journal database under dir. Badger's own logging
// is routed through the given logger.
func Open(dir string, logger *logrus.Entry) (*Journal, error) {
	opts := badger.DefaultOptions(dir).
		WithSyncWrites(false).
		WithLogger(logger)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Journal{
		db:   db,
		seqs: map[string]uint64{},
	}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// recordKey builds run/<id>/seq/<n> with a fixed-width sequence number, so
// badger's key order is the append order.
func recordKey(runID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("run/%s/seq/%020d", runID, seq))
}

func runPrefix(runID string) []byte {
	return []byte(fmt.Sprintf("run/%s/seq/", runID))
}

// Append writes a record to a run's journal, assigning the next sequence
// number. The passed record's Seq field is ignored.
func (j *Journal) Append(runID string, rec Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	rec.Seq = j.seqs[runID]
	if rec.Time.IsZero() {
		rec.Time = time.Now().UTC()
	}

	jh := new(codec.JsonHandle)
	jh.Canonical = true

	var buf []byte
	if err := codec.NewEncoderBytes(&buf, jh).Encode(rec); err != nil {
		return err
	}

	err := j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(runID, rec.Seq), buf)
	})
	if err != nil {
		return err
	}

	j.seqs[runID] = rec.Seq + 1

	return nil
}

// Records returns a run's records in sequence order. A run with no records
// reports a not-found error.
func (j *Journal) Records(runID string) ([]Record, error) {
	records := []Record{}
	prefix := runPrefix(runID)

	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			buf, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}

			var rec Record
			if err := codec.NewDecoderBytes(buf, new(codec.JsonHandle)).Decode(&rec); err != nil {
				return err
			}

			records = append(records, rec)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, badger.ErrKeyNotFound
	}

	return records, nil
}

// Runs returns the ids of every recorded run, sorted.
func (j *Journal) Runs() ([]string, error) {
	seen := map[string]bool{}

	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte("run/")

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix([]byte("run/")); it.Next() {
			key := string(it.Item().Key())
			parts := strings.SplitN(key, "/", 3)
			if len(parts) == 3 {
				seen[parts[1]] = true
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	runs := make([]string, 0, len(seen))
	for id := range seen {
		runs = append(runs, id)
	}
	sort.Strings(runs)

	return runs, nil
}

// IsNotFound reports whether an error is the journal's not-found condition.
func IsNotFound(err error) bool {
	return err == badger.ErrKeyNotFound
}
