package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/paygate-network/paygate-daemon/internal/core/domain"
)

// registryStore is the file-backed implementation of the index registry:
// a single JSON document mapping lowercased 0x addresses to derivation
// indexes. Every write goes through a temp file followed by an atomic
// rename, so a concurrent reader never observes a partial document.
type registryStore struct {
	path string

	mtx     sync.RWMutex
	entries map[string]uint32
}

// NewRegistryStore opens (or creates if not exists) the registry document
// at the given path and loads it in memory
func NewRegistryStore(path string) (domain.IndexRegistry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	entries := make(map[string]uint32)
	buf, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(buf, &entries); err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}

	return &registryStore{path: path, entries: entries}, nil
}

func (s *registryStore) Lookup(_ context.Context, address string) (uint32, bool, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	index, ok := s.entries[strings.ToLower(address)]
	return index, ok, nil
}

func (s *registryStore) Put(_ context.Context, address string, index uint32) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.entries[strings.ToLower(address)] = index
	return s.flush()
}

func (s *registryStore) Merge(_ context.Context, mappings map[string]uint32) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	changed := false
	for address, index := range mappings {
		address = strings.ToLower(address)
		if _, ok := s.entries[address]; ok {
			continue
		}
		s.entries[address] = index
		changed = true
	}
	if !changed {
		return nil
	}
	return s.flush()
}

func (s *registryStore) MaxIndex(_ context.Context) (uint32, bool, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	var max uint32
	found := false
	for _, index := range s.entries {
		if !found || index > max {
			max = index
			found = true
		}
	}
	return max, found, nil
}

func (s *registryStore) All(_ context.Context) (map[string]uint32, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	all := make(map[string]uint32, len(s.entries))
	for address, index := range s.entries {
		all[address] = index
	}
	return all, nil
}

// flush writes the whole document to a temp file and atomically replaces
// the registry with it. Must be called with the mutex held.
func (s *registryStore) flush() error {
	buf, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".registry-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
