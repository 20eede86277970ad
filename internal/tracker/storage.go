package tracker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

// Persisted keys. Everything the tracker stores shares the em_ prefix.
const (
	KeyChallengeDay   = "em_challenge_day"
	KeyChallengeStart = "em_challenge_start"
	KeyReminder       = "em_reminder"
)

const localStorageBucket = "local_storage"

// Storage is a string key/value store with browser local-storage semantics.
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(keys ...string) error
	// Apply deletes remove and then writes set as one atomic step: either
	// every change lands or none does.
	Apply(set map[string]string, remove ...string) error
}

// MemoryStorage keeps values for the life of the process.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStorage creates an empty store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

// Get returns the value for key.
func (m *MemoryStorage) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set stores value under key.
func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Remove deletes keys. Missing keys are ignored.
func (m *MemoryStorage) Remove(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

// Apply deletes remove and writes set under one lock.
func (m *MemoryStorage) Apply(set map[string]string, remove ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range remove {
		delete(m.values, k)
	}
	for k, v := range set {
		m.values[k] = v
	}
	return nil
}

// BoltStorage persists values in a single bbolt bucket.
type BoltStorage struct {
	db *bbolt.DB
}

// OpenBolt opens or creates the state file at path.
func OpenBolt(path string) (*BoltStorage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("state path is required")
	}

	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(localStorageBucket)); err != nil {
			return fmt.Errorf("create %s bucket: %w", localStorageBucket, err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltStorage{db: db}, nil
}

// Close closes the state file.
func (s *BoltStorage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the value for key.
func (s *BoltStorage) Get(key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(localStorageBucket))
		if bucket == nil {
			return fmt.Errorf("%s bucket is missing", localStorageBucket)
		}
		if raw := bucket.Get([]byte(key)); raw != nil {
			value = string(raw)
			found = true
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, found, nil
}

// Set stores value under key.
func (s *BoltStorage) Set(key, value string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(localStorageBucket))
		if bucket == nil {
			return fmt.Errorf("%s bucket is missing", localStorageBucket)
		}
		return bucket.Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Remove deletes keys in one transaction.
func (s *BoltStorage) Remove(keys ...string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(localStorageBucket))
		if bucket == nil {
			return fmt.Errorf("%s bucket is missing", localStorageBucket)
		}
		for _, k := range keys {
			if err := bucket.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove %v: %w", keys, err)
	}
	return nil
}

// Apply deletes remove and writes set in one transaction.
func (s *BoltStorage) Apply(set map[string]string, remove ...string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(localStorageBucket))
		if bucket == nil {
			return fmt.Errorf("%s bucket is missing", localStorageBucket)
		}
		for _, k := range remove {
			if err := bucket.Delete([]byte(k)); err != nil {
				return err
			}
		}
		for k, v := range set {
			if err := bucket.Put([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply storage changes: %w", err)
	}
	return nil
}
