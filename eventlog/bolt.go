package eventlog

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var eventsBucket = []byte("events")

// BoltStore implements Store with single-file persistence, suitable for
// single-node deployments that need the log to survive restarts without
// running a database.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates the event log at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(eventsBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating events bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Append persists an event under the next sequence number.
func (s *BoltStore) Append(ctx context.Context, event *Event) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(eventsBucket)

		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		event.Seq = seq

		value, err := json.Marshal(event)
		if err != nil {
			return err
		}
		return bucket.Put(seqKey(seq), value)
	})
}

// List returns events after afterSeq, at most limit of them.
func (s *BoltStore) List(ctx context.Context, afterSeq uint64, limit int) ([]*Event, error) {
	var result []*Event

	err := s.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(eventsBucket).Cursor()

		for key, value := cursor.Seek(seqKey(afterSeq + 1)); key != nil; key, value = cursor.Next() {
			var event Event
			if err := json.Unmarshal(value, &event); err != nil {
				return fmt.Errorf("decoding event %d: %w", binary.BigEndian.Uint64(key), err)
			}
			result = append(result, &event)

			if limit > 0 && len(result) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Close closes the underlying database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// seqKey encodes a sequence number big-endian so byte order matches
// numeric order.
func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
