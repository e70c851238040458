// Package statefile persists the reminder state in a dot file under the
// user's home directory, one whitespace separated record per file.
package statefile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"appraisekit/core"
)

// Store reads and writes "<home>/.<product>". The home directory is resolved
// on every access so an unset HOME surfaces as a storage error.
type Store struct {
	mu      sync.Mutex
	product string
	path    string
	home    func() (string, error)
}

// New returns a store for the given product name, e.g. "appraiseme".
func New(product string) *Store {
	return &Store{product: product, home: os.UserHomeDir}
}

// NewAt returns a store writing to an explicit path.
func NewAt(path string) *Store {
	return &Store{path: path}
}

// Path resolves the state file location.
func (s *Store) Path() (string, error) {
	if s.path != "" {
		return s.path, nil
	}
	if strings.TrimSpace(s.product) == "" {
		return "", core.Err(core.ErrStorage, errors.New("product name is empty"), "resolve state file")
	}
	home, err := s.home()
	if err != nil || home == "" {
		if err == nil {
			err = errors.New("home directory is not defined")
		}
		return "", core.Err(core.ErrStorage, err, "resolve state file")
	}
	return filepath.Join(home, "."+s.product), nil
}

func (s *Store) Load(_ context.Context) (core.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path, err := s.Path()
	if err != nil {
		return core.State{}, err
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return core.State{}, core.ErrNotFound
	}
	if err != nil {
		return core.State{}, core.Err(core.ErrStorage, err, "read %s", path)
	}
	st, err := Decode(string(b))
	if err != nil {
		return core.State{}, core.Err(core.ErrStorage, err, "parse %s", path)
	}
	return st, nil
}

func (s *Store) Save(_ context.Context, st core.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path, err := s.Path()
	if err != nil {
		return err
	}
	if err := writeAtomic(path, []byte(Encode(st))); err != nil {
		return core.Err(core.ErrStorage, err, "write %s", path)
	}
	return nil
}

// Encode renders st in the current layout:
// "version rated postponed first_launch postpone_time launches sig_events".
func Encode(st core.State) string {
	return fmt.Sprintf("%d %d %d %d %d %d %d",
		core.FormatVersion, b2i(st.Rated), b2i(st.Postponed),
		st.FirstLaunch, st.PostponeTime, st.LaunchCount, st.SigEventCount)
}

// Decode parses a state record. Six fields are the unversioned legacy layout
// and decode as version 0; seven fields start with the format version.
func Decode(s string) (core.State, error) {
	fields := strings.Fields(s)
	var st core.State
	switch len(fields) {
	case 6:
		st.Version = 0
	case 7:
		v, err := strconv.Atoi(fields[0])
		if err != nil {
			return core.State{}, fmt.Errorf("version %q: %w", fields[0], err)
		}
		if v != core.FormatVersion {
			return core.State{}, fmt.Errorf("%w: %d", core.ErrUnknownVersion, v)
		}
		st.Version = v
		fields = fields[1:]
	default:
		return core.State{}, fmt.Errorf("expected 6 or 7 fields, got %d", len(fields))
	}

	var err error
	if st.Rated, err = parseBool("rated", fields[0]); err != nil {
		return core.State{}, err
	}
	if st.Postponed, err = parseBool("postponed", fields[1]); err != nil {
		return core.State{}, err
	}
	ints := []*int64{&st.FirstLaunch, &st.PostponeTime, &st.LaunchCount, &st.SigEventCount}
	names := []string{"first_launch", "postpone_time", "launch_count", "sig_event_count"}
	for i, dst := range ints {
		n, err := strconv.ParseInt(fields[i+2], 10, 64)
		if err != nil {
			return core.State{}, fmt.Errorf("%s %q: %w", names[i], fields[i+2], err)
		}
		*dst = n
	}
	// NeverTime is the only sentinel and it is positive
	if st.FirstLaunch < 0 {
		return core.State{}, fmt.Errorf("first_launch %d is negative", st.FirstLaunch)
	}
	if st.PostponeTime < 0 {
		return core.State{}, fmt.Errorf("postpone_time %d is negative", st.PostponeTime)
	}
	return st, nil
}

func parseBool(name, f string) (bool, error) {
	switch f {
	case "0":
		return false, nil
	case "1":
		return true, nil
	}
	return false, fmt.Errorf("%s must be 0 or 1, got %q", name, f)
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

// writeAtomic replaces path through a synced temp file in the same directory.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	name := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			_ = os.Remove(name)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(name, 0o600); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		return fmt.Errorf("replace file: %w", err)
	}
	ok = true
	return nil
}
