package stats

import (
	"time"

	bolt "github.com/coreos/bbolt"
)

var (
	outcomesBucket   = []byte("outcomes")
	aggregatesBucket = []byte("aggregates")
	statusesBucket   = []byte("statuses")
)

// BBoltSink is a Sink backed by an on-disk BoltDB file, grounded on
// internal/cache.BBoltSink's file-open/bucket-ensure pattern. Outcomes are
// retained keyed by source_id|started_at so a operator can page through a
// source's recent history after a process restart; aggregates and source
// statuses are upserted in place under their own buckets.
type BBoltSink struct {
	db       *bolt.DB
	rootName []byte
}

// NewBBoltSink opens (creating if absent) a BoltDB file with the three
// buckets this sink needs, all nested under the given top-level bucket name.
func NewBBoltSink(filename, bucket string) (*BBoltSink, error) {
	db, err := bolt.Open(filename, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	root := []byte(bucket)
	if len(root) == 0 {
		root = []byte("heatlink-stats")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		rb, err := tx.CreateBucketIfNotExists(root)
		if err != nil {
			return err
		}
		for _, name := range [][]byte{outcomesBucket, aggregatesBucket, statusesBucket} {
			if _, err := rb.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BBoltSink{db: db, rootName: root}, nil
}

// AppendStatsOutcome implements Sink.
func (s *BBoltSink) AppendStatsOutcome(o Outcome) {
	key := outcomeKey(o.SourceID, o.StartedAt)
	raw := encodeOutcome(o)
	s.db.Update(func(tx *bolt.Tx) error {
		return s.bucket(tx, outcomesBucket).Put([]byte(key), raw)
	})
}

// UpsertAggregate implements Sink.
func (s *BBoltSink) UpsertAggregate(sourceID string, callType CallType, snapshot Aggregate) {
	key := aggregateKey(sourceID, callType)
	raw := encodeAggregate(snapshot)
	s.db.Update(func(tx *bolt.Tx) error {
		return s.bucket(tx, aggregatesBucket).Put([]byte(key), raw)
	})
}

// UpsertSourceStatus implements Sink.
func (s *BBoltSink) UpsertSourceStatus(sourceID string, status SourceStatus) {
	raw := encodeSourceStatus(status)
	s.db.Update(func(tx *bolt.Tx) error {
		return s.bucket(tx, statusesBucket).Put([]byte(sourceID), raw)
	})
}

func (s *BBoltSink) bucket(tx *bolt.Tx, name []byte) *bolt.Bucket {
	return tx.Bucket(s.rootName).Bucket(name)
}

// Aggregate returns the last flushed aggregate for (sourceID, callType), if any.
func (s *BBoltSink) Aggregate(sourceID string, callType CallType) (Aggregate, bool) {
	var a Aggregate
	var found bool
	s.db.View(func(tx *bolt.Tx) error {
		raw := s.bucket(tx, aggregatesBucket).Get([]byte(aggregateKey(sourceID, callType)))
		if raw == nil {
			return nil
		}
		var err error
		a, err = decodeAggregate(raw)
		found = err == nil
		return nil
	})
	return a, found
}

// Status returns the last upserted SourceStatus for sourceID, if any.
func (s *BBoltSink) Status(sourceID string) (SourceStatus, bool) {
	var st SourceStatus
	var found bool
	s.db.View(func(tx *bolt.Tx) error {
		raw := s.bucket(tx, statusesBucket).Get([]byte(sourceID))
		if raw == nil {
			return nil
		}
		var err error
		st, err = decodeSourceStatus(raw)
		found = err == nil
		return nil
	})
	return st, found
}

// Outcomes returns every retained outcome for sourceID, oldest first.
func (s *BBoltSink) Outcomes(sourceID string) []Outcome {
	var out []Outcome
	prefix := []byte(sourceID + "|")
	s.db.View(func(tx *bolt.Tx) error {
		c := s.bucket(tx, outcomesBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			if o, err := decodeOutcome(v); err == nil {
				out = append(out, o)
			}
		}
		return nil
	})
	return out
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Close releases the underlying file handle.
func (s *BBoltSink) Close() error {
	return s.db.Close()
}
