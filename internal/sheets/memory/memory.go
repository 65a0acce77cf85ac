package memory

import (
	"context"
	"fmt"
	"sync"

	"duchybank/internal/core"
)

// Store is an in-memory SessionAppender for tests and local development.
type Store struct {
	mu    sync.Mutex
	items []core.SessionRecord
	err   error
}

func New() *Store {
	return &Store{}
}

// Fail makes every subsequent append return err.
func (s *Store) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// AppendSession stores the record and returns a synthetic row reference.
func (s *Store) AppendSession(_ context.Context, rec core.SessionRecord) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.items = append(s.items, rec)
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

// Sessions returns a copy of everything appended so far.
func (s *Store) Sessions() []core.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.SessionRecord(nil), s.items...)
}
