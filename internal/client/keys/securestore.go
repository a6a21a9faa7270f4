package keys

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// SecureStore is the platform keystore: small named secrets that survive
// restarts and are not part of the database.
type SecureStore interface {
	Get(ctx context.Context, name string) ([]byte, bool, error)
	Set(ctx context.Context, name string, value []byte) error
	Delete(ctx context.Context, name string) error
}

// MemorySecureStore keeps secrets in process memory.
type MemorySecureStore struct {
	mu sync.Mutex
	m  map[string][]byte
}

func NewMemorySecureStore() *MemorySecureStore {
	return &MemorySecureStore{m: make(map[string][]byte)}
}

func (s *MemorySecureStore) Get(_ context.Context, name string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[name]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *MemorySecureStore) Set(_ context.Context, name string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[name] = append([]byte(nil), value...)
	return nil
}

func (s *MemorySecureStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, name)
	return nil
}

// FileSecureStore keeps secrets in a 0600 JSON file. It stands in for an OS
// keychain on systems without one.
type FileSecureStore struct {
	mu   sync.Mutex
	path string
}

func NewFileSecureStore(path string) *FileSecureStore {
	return &FileSecureStore{path: path}
}

func (s *FileSecureStore) load() (map[string][]byte, error) {
	m := make(map[string][]byte)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read secure store: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse secure store: %w", err)
	}
	return m, nil
}

func (s *FileSecureStore) save(m map[string][]byte) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write secure store: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *FileSecureStore) Get(_ context.Context, name string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.load()
	if err != nil {
		return nil, false, err
	}
	v, ok := m[name]
	return v, ok, nil
}

func (s *FileSecureStore) Set(_ context.Context, name string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.load()
	if err != nil {
		return err
	}
	m[name] = value
	return s.save(m)
}

func (s *FileSecureStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := m[name]; !ok {
		return nil
	}
	delete(m, name)
	return s.save(m)
}
