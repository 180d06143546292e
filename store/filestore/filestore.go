// Package filestore is a YAML-backed LockableStore reference
// implementation, grounded on the teacher's internal/production
// YAMLPersister (one file per key, directory-backed, mkdir-on-construct).
// Locking is delegated to an in-process mutex table, since a single
// filesystem directory has no native distributed-lock primitive; real
// deployments should pair filestore's storage shape with an external
// LockingManager (etcd, Redis, ...) instead of its bundled Lock/Unlock.
package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Store persists each key as a YAML document in dir, one file per key.
type Store struct {
	dir string

	lockMu sync.Mutex
	locks  map[string]time.Time
	ttl    time.Duration
}

// New creates a Store rooted at dir, creating it if necessary.
func New(dir string, ttl time.Duration) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: mkdir %s: %w", dir, err)
	}
	if ttl <= 0 {
		ttl = 900 * time.Second
	}
	return &Store{dir: dir, locks: make(map[string]time.Time), ttl: ttl}, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, url(key)+".yaml")
}

// url turns a key (which may itself contain "/" from a base64 subject)
// into a filesystem-safe basename.
func url(key string) string {
	out := make([]rune, 0, len(key))
	for _, r := range key {
		if r == '/' || r == '\\' {
			r = '_'
		}
		out = append(out, r)
	}
	return string(out)
}

func (s *Store) Read(ctx context.Context, key string) ([]byte, error) {
	raw, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("filestore: read %s: %w", key, err)
	}
	// Stored as a YAML wrapper around the raw JSON bytes so arbitrary
	// snapshot payloads round-trip without YAML reinterpreting embedded
	// JSON punctuation.
	var wrapper struct {
		Data []byte `yaml:"data"`
	}
	if err := yaml.Unmarshal(raw, &wrapper); err != nil {
		return nil, fmt.Errorf("filestore: yaml unmarshal %s: %w", key, err)
	}
	return wrapper.Data, nil
}

func (s *Store) Write(ctx context.Context, key string, data []byte) error {
	wrapper := struct {
		Data []byte `yaml:"data"`
	}{Data: data}
	out, err := yaml.Marshal(wrapper)
	if err != nil {
		return fmt.Errorf("filestore: yaml marshal %s: %w", key, err)
	}
	if err := os.WriteFile(s.path(key), out, 0o644); err != nil {
		return fmt.Errorf("filestore: write %s: %w", key, err)
	}
	return nil
}

func (s *Store) Lock(ctx context.Context, key string) (bool, error) {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	now := time.Now()
	if expiry, held := s.locks[key]; held && now.Before(expiry) {
		return false, nil
	}
	s.locks[key] = now.Add(s.ttl)
	return true, nil
}

func (s *Store) Unlock(ctx context.Context, key string) (bool, error) {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if _, held := s.locks[key]; !held {
		return false, nil
	}
	delete(s.locks, key)
	return true, nil
}
