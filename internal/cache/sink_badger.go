package cache

import (
	"time"

	badger "github.com/dgraph-io/badger"
)

// BadgerSink is a Sink backed by a BadgerDB key-value store, grounded on
// trickster's BadgerCacheConfig (Directory, ValueDirectory). Badger has
// native per-key TTL support, so no manual envelope is needed here (unlike
// BBoltSink, which lacks one).
type BadgerSink struct {
	db *badger.DB
}

// NewBadgerSink opens (creating if absent) a Badger database rooted at dir,
// storing large values under valueDir when it differs from dir.
func NewBadgerSink(dir, valueDir string) (*BadgerSink, error) {
	opts := badger.DefaultOptions(dir)
	if valueDir != "" {
		opts = opts.WithValueDir(valueDir)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerSink{db: db}, nil
}

// Get implements Sink.
func (s *BadgerSink) Get(key string) ([]byte, bool) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			value = append([]byte(nil), v...)
			return nil
		})
	})
	if err != nil {
		return nil, false
	}
	return value, true
}

// Set implements Sink.
func (s *BadgerSink) Set(key string, value []byte, ttl time.Duration) {
	s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value).WithTTL(ttl)
		return txn.SetEntry(e)
	})
}

// Del implements Sink.
func (s *BadgerSink) Del(key string) {
	s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Close releases the underlying database handles.
func (s *BadgerSink) Close() error {
	return s.db.Close()
}
