package cache

import (
	"time"

	bolt "github.com/coreos/bbolt"
)

var bboltBucketName = []byte("heatlink")

// BBoltSink is a Sink backed by an on-disk BoltDB file, grounded on
// trickster's BBoltCacheConfig (Filename, Bucket). Expired reads are purged
// lazily on Get, matching the TTL-on-read pattern the in-memory Cache also
// uses for its own entries.
type BBoltSink struct {
	db     *bolt.DB
	bucket []byte
}

// NewBBoltSink opens (creating if absent) a BoltDB file and bucket.
func NewBBoltSink(filename, bucket string) (*BBoltSink, error) {
	db, err := bolt.Open(filename, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	b := []byte(bucket)
	if len(b) == 0 {
		b = bboltBucketName
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(b)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BBoltSink{db: db, bucket: b}, nil
}

// Get implements Sink. Values are stored as expiresUnixNano(8 bytes) || payload.
func (s *BBoltSink) Get(key string) ([]byte, bool) {
	var value []byte
	var expired bool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(s.bucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		expiresAt, payload := decodeTTLEnvelope(raw)
		if time.Now().UnixNano() > expiresAt {
			expired = true
			return nil
		}
		value = append([]byte(nil), payload...)
		return nil
	})
	if err != nil || value == nil {
		if expired {
			s.Del(key)
		}
		return nil, false
	}
	return value, true
}

// Set implements Sink.
func (s *BBoltSink) Set(key string, value []byte, ttl time.Duration) {
	raw := encodeTTLEnvelope(time.Now().Add(ttl).UnixNano(), value)
	s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), raw)
	})
}

// Del implements Sink.
func (s *BBoltSink) Del(key string) {
	s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
}

// Close releases the underlying file handle.
func (s *BBoltSink) Close() error {
	return s.db.Close()
}

func encodeTTLEnvelope(expiresAtUnixNano int64, payload []byte) []byte {
	out := make([]byte, 8+len(payload))
	for i := 0; i < 8; i++ {
		out[i] = byte(expiresAtUnixNano >> (8 * (7 - i)))
	}
	copy(out[8:], payload)
	return out
}

func decodeTTLEnvelope(raw []byte) (int64, []byte) {
	if len(raw) < 8 {
		return 0, nil
	}
	var expires int64
	for i := 0; i < 8; i++ {
		expires = expires<<8 | int64(raw[i])
	}
	return expires, raw[8:]
}
