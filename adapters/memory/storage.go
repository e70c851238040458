package memory

import (
	"context"
	"sync"

	"appraisekit/core"
)

// Store keeps the reminder state in memory. It is lost with the process.
type Store struct {
	mu    sync.Mutex
	state *core.State
	saves int
}

func New() *Store { return &Store{} }

// NewWithState returns a Store that already holds st.
func NewWithState(st core.State) *Store { return &Store{state: &st} }

func (s *Store) Load(_ context.Context) (core.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return core.State{}, core.ErrNotFound
	}
	return *s.state, nil
}

func (s *Store) Save(_ context.Context, st core.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.Version = core.FormatVersion
	s.state = &st
	s.saves++
	return nil
}

// Saves returns how many times Save was called.
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

var _ interface {
	Load(context.Context) (core.State, error)
	Save(context.Context, core.State) error
} = (*Store)(nil)
