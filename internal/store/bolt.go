package store

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/nacl/secretbox"
)

var bucketName = []byte("1paying")

// BoltStore persists entries in a local bbolt file, encrypted at rest
// with a caller-supplied secret via NaCl secretbox.
type BoltStore struct {
	db  *bolt.DB
	key [32]byte
}

// OpenBolt opens (creating if needed) the store file at path. The secret
// may be any length; it is stretched to the secretbox key by SHA-256.
func OpenBolt(path string, secret []byte) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	s := &BoltStore{db: db, key: sha256.Sum256(secret)}
	return s, nil
}

// Close releases the underlying database file.
func (s *BoltStore) Close() error { return s.db.Close() }

// Get returns the decrypted value for key, or (nil, nil) when absent.
// An entry that fails to decrypt is removed and reported as absent.
func (s *BoltStore) Get(key string) ([]byte, error) {
	var sealed []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketName).Get([]byte(key)); v != nil {
			sealed = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if sealed == nil {
		return nil, nil
	}

	value, ok := s.open(sealed)
	if !ok {
		// Undecryptable entries behave as absent.
		_ = s.Remove(key)
		return nil, nil
	}
	return value, nil
}

// Set encrypts and stores the value for key.
func (s *BoltStore) Set(key string, value []byte) error {
	sealed, err := s.seal(value)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), sealed)
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Remove deletes the entry for key.
func (s *BoltStore) Remove(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

func (s *BoltStore) seal(value []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], value, &nonce, &s.key), nil
}

func (s *BoltStore) open(sealed []byte) ([]byte, bool) {
	if len(sealed) < 24 {
		return nil, false
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	return secretbox.Open(nil, sealed[24:], &nonce, &s.key)
}

// Memory is an in-memory Store for tests.
type Memory struct {
	m map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory { return &Memory{m: make(map[string][]byte)} }

func (s *Memory) Get(key string) ([]byte, error) {
	if v, ok := s.m[key]; ok {
		return append([]byte(nil), v...), nil
	}
	return nil, nil
}

func (s *Memory) Set(key string, value []byte) error {
	s.m[key] = append([]byte(nil), value...)
	return nil
}

func (s *Memory) Remove(key string) error {
	delete(s.m, key)
	return nil
}
