// Package history keeps a capped, ordered position log per aircraft for
// path rendering, together with the per-aircraft subscription flag.
package history

import (
	"sync"

	"github.com/mikemorandi/flightradar/internal/wire"
	"github.com/mikemorandi/flightradar/pkg/logger"
)

// DefaultLimit is the per-aircraft position cap.
const DefaultLimit = 1000

type entry struct {
	positions  []wire.HistoryPosition
	subscribed bool
}

// Store holds per-aircraft position windows. The window is a rendering
// aid, not a full history: once the cap is reached the oldest positions
// are dropped.
type Store struct {
	mu      sync.RWMutex
	flights map[string]*entry
	limit   int
	log     *logger.Logger
}

// New creates a history store. A limit of 0 or less uses DefaultLimit.
func New(log *logger.Logger, limit int) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{
		flights: make(map[string]*entry),
		limit:   limit,
		log:     log.Named("history"),
	}
}

// Replace installs a full path snapshot for an aircraft, trimming to the
// cap from the front so the most recent samples survive.
func (s *Store) Replace(id string, positions []wire.HistoryPosition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.ensure(id)
	if len(positions) > s.limit {
		positions = positions[len(positions)-s.limit:]
	}
	e.positions = append([]wire.HistoryPosition(nil), positions...)
}

// Append adds one sample to the end of an aircraft's window, dropping the
// oldest sample when the cap is reached.
func (s *Store) Append(id string, pos wire.HistoryPosition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.ensure(id)
	e.positions = append(e.positions, pos)
	if len(e.positions) > s.limit {
		e.positions = e.positions[1:]
	}
}

// Positions returns a copy of the aircraft's window in arrival order.
func (s *Store) Positions(id string) []wire.HistoryPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.flights[id]
	if !ok {
		return nil
	}
	return append([]wire.HistoryPosition(nil), e.positions...)
}

// SetSubscribed flags whether the aircraft has a live path feed attached.
func (s *Store) SetSubscribed(id string, subscribed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure(id).subscribed = subscribed
}

// Subscribed reports whether the aircraft has a live path feed attached.
func (s *Store) Subscribed(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.flights[id]
	return ok && e.subscribed
}

// Purge drops an aircraft's window and subscription flag entirely.
func (s *Store) Purge(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flights, id)
}

// Len returns the number of samples held for an aircraft.
func (s *Store) Len(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.flights[id]
	if !ok {
		return 0
	}
	return len(e.positions)
}

// caller holds the write lock
func (s *Store) ensure(id string) *entry {
	e, ok := s.flights[id]
	if !ok {
		e = &entry{}
		s.flights[id] = e
	}
	return e
}
