package storage

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

type PebbleJournal struct {
	db  *pebble.DB
	seq atomic.Uint64
}

func NewPebbleJournal(path string) (*PebbleJournal, error) {
	return openPebbleJournal(path, &pebble.Options{})
}

// NewMemJournal opens a journal on an in-memory filesystem.
func NewMemJournal() (*PebbleJournal, error) {
	return openPebbleJournal("", &pebble.Options{FS: vfs.NewMem()})
}

func openPebbleJournal(path string, opts *pebble.Options) (*PebbleJournal, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open journal: %w", err)
	}
	return &PebbleJournal{db: db}, nil
}

func (j *PebbleJournal) Close() error { return j.db.Close() }

// RecordOrder persists an accepted order. Order records use NoSync; a
// crash may lose the tail of the journal but never corrupts it.
func (j *PebbleJournal) RecordOrder(rec OrderRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}
	key := orderKey(rec.Wallet, rec.At.UnixNano(), rec.OrderID)
	if err := j.db.Set(key, data, pebble.NoSync); err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

func (j *PebbleJournal) RecordError(rec ErrorRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal error: %w", err)
	}
	key := errorKey(rec.At.UnixNano(), j.seq.Add(1))
	if err := j.db.Set(key, data, pebble.NoSync); err != nil {
		return fmt.Errorf("failed to save error: %w", err)
	}
	return nil
}

// RecentOrders returns up to limit orders of a wallet, newest first.
func (j *PebbleJournal) RecentOrders(wallet string, limit int) ([]OrderRecord, error) {
	prefix := orderPrefix(wallet)
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []OrderRecord
	for iter.Last(); iter.Valid() && len(out) < limit; iter.Prev() {
		var rec OrderRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue // skip invalid entries
		}
		out = append(out, rec)
	}
	return out, iter.Error()
}

// RecentErrors returns up to limit errors across all wallets, newest first.
func (j *PebbleJournal) RecentErrors(limit int) ([]ErrorRecord, error) {
	prefix := []byte(prefixError)
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []ErrorRecord
	for iter.Last(); iter.Valid() && len(out) < limit; iter.Prev() {
		var rec ErrorRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, iter.Error()
}
