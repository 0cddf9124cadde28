// Package localstate persists the account-scoped facts the session layer
// caches between runs: the connected flag, the verified override and the
// username. Facts never expire; they are cleared together when the account
// goes away so nothing leaks across accounts.
package localstate

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Well-known fact keys.
const (
	KeyConnected = "connected"
	KeyVerified  = "verified"
	KeyUsername  = "username"
)

// Store abstracts fact persistence. Accounts are case-insensitive addresses.
type Store interface {
	Get(ctx context.Context, account, key string) (string, bool, error)
	Set(ctx context.Context, account, key, value string) error
	// ClearAccount removes every fact recorded for one account.
	ClearAccount(ctx context.Context, account string) error
}

func normalize(account string) string {
	return strings.ToLower(strings.TrimSpace(account))
}

// MemoryStore is mostly for testing.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, account, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	facts, ok := m.data[normalize(account)]
	if !ok {
		return "", false, nil
	}
	val, ok := facts[key]
	return val, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, account, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct := normalize(account)
	if m.data[acct] == nil {
		m.data[acct] = make(map[string]string)
	}
	m.data[acct][key] = value
	return nil
}

func (m *MemoryStore) ClearAccount(_ context.Context, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, normalize(account))
	return nil
}

// FileStore persists facts to disk. Suitable for local dev; the Postgres
// store covers hosted deployments.
type FileStore struct {
	path string
	mu   sync.Mutex
	data map[string]map[string]string
}

func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{
		path: path,
		data: make(map[string]map[string]string),
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileStore) load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	blob, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(blob) == 0 {
		return nil
	}
	return json.Unmarshal(blob, &f.data)
}

func (f *FileStore) persist() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	blob, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, blob, 0o600)
}

func (f *FileStore) Get(_ context.Context, account, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	facts, ok := f.data[normalize(account)]
	if !ok {
		return "", false, nil
	}
	val, ok := facts[key]
	return val, ok, nil
}

func (f *FileStore) Set(_ context.Context, account, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct := normalize(account)
	if f.data[acct] == nil {
		f.data[acct] = make(map[string]string)
	}
	f.data[acct][key] = value
	return f.persist()
}

func (f *FileStore) ClearAccount(_ context.Context, account string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, normalize(account))
	return f.persist()
}
