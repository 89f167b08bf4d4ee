// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package override

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const recordPrefix = "ovr:"

// BadgerStore is the durable Store. SyncWrites keeps the
// record-precedes-artifact invariant honest: Persist does not return until
// the record is on disk.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the override record database at path.
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil).WithSyncWrites(true)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open override store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }

// Persist appends the record under a timestamp-ordered key. Any failure is
// returned as a PersistError so callers abort the guarded mutation.
func (s *BadgerStore) Persist(_ context.Context, rec Record) error {
	buf, err := json.Marshal(rec)
	if err != nil {
		return &PersistError{err: err}
	}
	key := []byte(fmt.Sprintf("%s%016x:%s", recordPrefix, uint64(rec.CreatedUTCMS), uuid.NewString()))
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, buf)
	})
	if err != nil {
		return &PersistError{err: err}
	}
	return nil
}

func (s *BadgerStore) List(ctx context.Context, layer Layer) ([]Record, error) {
	prefix := []byte(recordPrefix)
	var out []Record
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			if layer == "" || rec.Layer == layer {
				out = append(out, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

var _ Store = (*BadgerStore)(nil)
var _ Store = (*Memory)(nil)
