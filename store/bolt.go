package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

type boltStore struct {
	mu sync.RWMutex
	db *bolt.DB
}

func openBolt(filename string) (*boltStore, error) {
	if filename == "" {
		filename = "contact.db"
	}
	db, err := bolt.Open(filename, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db %q: %w", filename, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(table))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) CreateContactMessage(_ context.Context, m *ContactMessage) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}
	created := now()
	var id uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		rec := *m
		rec.ID = strconv.FormatUint(seq, 10)
		rec.CreatedAt = created
		val, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		id = seq
		return b.Put(itob(seq), val)
	})
	if err != nil {
		return fmt.Errorf("bolt insert: %w", err)
	}
	m.ID = strconv.FormatUint(id, 10)
	m.CreatedAt = created
	return nil
}

func (s *boltStore) ContactMessages(_ context.Context) ([]ContactMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}
	var out []ContactMessage
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(table)).ForEach(func(_, v []byte) error {
			var m ContactMessage
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			out = append(out, m)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("bolt scan: %w", err)
	}
	return out, nil
}

func (s *boltStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(table)) == nil {
			return fmt.Errorf("bucket %s missing", table)
		}
		return nil
	})
}

func (s *boltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// keys sort in insertion order
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
