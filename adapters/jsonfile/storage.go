package jsonfile

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"

	"appraisekit/core"
)

// Store persists the state of any number of installations to a single JSON
// file keyed by installation ID. Suitable for demos and small deployments.
type Store struct {
	path         string
	installation string
	mu           sync.Mutex
	// records as of the last read of the file
	data map[string]core.State
}

// New opens path, reading existing records. A missing file is not an error.
func New(path, installation string) (*Store, error) {
	s := &Store{path: path, installation: installation, data: map[string]core.State{}}
	if err := s.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, core.Err(core.ErrStorage, err, "open %s", path)
		}
	}
	return s, nil
}

// For returns a view of the same file for another installation.
func (s *Store) For(installation string) *Store {
	return &Store{path: s.path, installation: installation, data: map[string]core.State{}}
}

// load replaces the cached records with the file contents. A missing file
// leaves no records and still returns fs.ErrNotExist.
func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.data = map[string]core.State{}
		}
		return err
	}
	data := map[string]core.State{}
	if err := json.Unmarshal(b, &data); err != nil {
		return err
	}
	s.data = data
	return nil
}

func (s *Store) persist() error {
	tmp := s.path + ".tmp"
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) Load(_ context.Context) (core.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// other processes may have written since the last read
	if err := s.load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return core.State{}, core.Err(core.ErrStorage, err, "read %s", s.path)
	}
	st, ok := s.data[s.installation]
	if !ok {
		return core.State{}, core.ErrNotFound
	}
	if st.Version != core.FormatVersion {
		return core.State{}, core.Err(core.ErrStorage, core.ErrUnknownVersion, "installation %q has version %d", s.installation, st.Version)
	}
	return st, nil
}

func (s *Store) Save(_ context.Context, st core.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return core.Err(core.ErrStorage, err, "read %s", s.path)
	}
	st.Version = core.FormatVersion
	s.data[s.installation] = st
	if err := s.persist(); err != nil {
		return core.Err(core.ErrStorage, err, "write %s", s.path)
	}
	return nil
}
