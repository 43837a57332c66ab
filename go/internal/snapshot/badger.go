package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/vmihailenco/msgpack/v5"
)

var documentKey = []byte("racetrack/snapshot")

// BadgerStore keeps the document as one msgpack value in Badger.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a Badger directory. An empty dir keeps the
// database in memory.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %q: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) buildValue(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *BadgerStore) Load(_ context.Context) (*Document, error) {
	var doc *Document
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(documentKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			dec := msgpack.NewDecoder(bytes.NewReader(val))
			dec.SetCustomStructTag("json")
			var d Document
			if err := dec.Decode(&d); err != nil {
				return err
			}
			doc = &d
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if doc == nil {
		return nil, nil
	}
	if err := checkVersion(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *BadgerStore) Save(_ context.Context, doc *Document) error {
	buf, err := s.buildValue(doc)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(documentKey, buf)
	})
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
