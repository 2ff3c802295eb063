// Package store holds the canonical per-aircraft state and owns the
// merge, staleness, and selection rules that every downstream consumer
// relies on.
package store

import (
	"math"
	"sync"
	"time"

	"github.com/mikemorandi/flightradar/internal/geo"
	"github.com/mikemorandi/flightradar/internal/wire"
	"github.com/mikemorandi/flightradar/pkg/logger"
)

// AircraftState is the canonical record for one tracked aircraft.
// Position fields are jointly present (HasPosition) or jointly absent.
type AircraftState struct {
	ID     string
	ICAO24 string

	HasPosition bool
	Lat         float64
	Lon         float64

	Altitude    *float64
	GroundSpeed *float64
	Track       *float64
	Callsign    *string
	Category    *int

	// Static metadata, back-filled on demand from the enrichment backend
	AircraftType string
	ICAOType     string
	Registration string
	Operator     string
	Military     bool

	FirstSeen  time.Time
	LastUpdate time.Time

	// Heading bookkeeping. ResolvedHeading caches the last orientation we
	// could determine; PreviousLat/Lon hold the prior coordinates and are
	// snapshotted only when the position actually moved, so a bearing can
	// be derived when no authoritative track is reported.
	ResolvedHeading *float64
	PreviousLat     *float64
	PreviousLon     *float64
}

// Details carries static metadata fetched from the enrichment backend.
type Details struct {
	ID           string
	ICAO24       string
	AircraftType string
	ICAOType     string
	Registration string
	Operator     string
	Military     bool
}

// Store is the canonical aircraft state map. All methods are safe for
// concurrent use.
type Store struct {
	mu       sync.RWMutex
	aircraft map[string]*AircraftState
	selected string

	staleThreshold time.Duration

	version   uint64
	subs      map[uint64]chan struct{}
	nextSubID uint64

	now func() time.Time
	log *logger.Logger
}

// New creates an empty store. staleThreshold controls which aircraft the
// renderable view includes; it does not delete anything (see PurgeStale).
func New(log *logger.Logger, staleThreshold time.Duration) *Store {
	return &Store{
		aircraft:       make(map[string]*AircraftState),
		staleThreshold: staleThreshold,
		subs:           make(map[uint64]chan struct{}),
		now:            func() time.Time { return time.Now().UTC() },
		log:            log.Named("store"),
	}
}

// ApplyPositions merges a batch of position updates. An initial batch
// replaces the whole map (first snapshot after a connect); an update batch
// merges per aircraft, keeping any field absent from the update.
func (s *Store) ApplyPositions(updates map[string]wire.PositionUpdate, initial bool) {
	now := s.now()

	s.mu.Lock()
	if initial {
		s.aircraft = make(map[string]*AircraftState, len(updates))
	}

	changed := initial
	for id, upd := range updates {
		if s.mergePosition(id, upd, now) {
			changed = true
		}
	}
	s.mu.Unlock()

	if changed {
		s.notify()
	}
}

// mergePosition applies one update into existing state, creating it on
// first sight. Caller holds the write lock.
func (s *Store) mergePosition(id string, upd wire.PositionUpdate, now time.Time) bool {
	st, ok := s.aircraft[id]
	if !ok {
		st = &AircraftState{ID: id, FirstSeen: now}
		s.aircraft[id] = st
	}

	if upd.ICAO24 != "" {
		st.ICAO24 = upd.ICAO24
	}

	if st.HasPosition && (st.Lat != upd.Lat || st.Lon != upd.Lon) {
		prevLat, prevLon := st.Lat, st.Lon
		st.PreviousLat = &prevLat
		st.PreviousLon = &prevLon
	}
	st.HasPosition = true
	st.Lat = upd.Lat
	st.Lon = upd.Lon

	if upd.Altitude != nil {
		st.Altitude = upd.Altitude
	}
	if upd.GroundSpeed != nil {
		st.GroundSpeed = upd.GroundSpeed
	}
	if upd.Track != nil {
		st.Track = upd.Track
	}
	if upd.Callsign != nil && *upd.Callsign != "" {
		st.Callsign = upd.Callsign
	}
	if upd.Category != nil {
		st.Category = upd.Category
	}

	if now.After(st.LastUpdate) {
		st.LastUpdate = now
	}

	s.resolveHeading(st)
	return true
}

// resolveHeading picks the best available orientation. An authoritative
// track wins; otherwise the last resolved heading is kept for stability
// across gaps; otherwise a great-circle bearing is derived from the
// previous position. Caller holds the write lock.
func (s *Store) resolveHeading(st *AircraftState) {
	switch {
	case st.Track != nil:
		h := geo.NormalizeDegrees(math.Round(*st.Track))
		st.ResolvedHeading = &h
	case st.ResolvedHeading != nil:
		// keep cached heading
	case st.PreviousLat != nil && st.PreviousLon != nil &&
		(*st.PreviousLat != st.Lat || *st.PreviousLon != st.Lon):
		b := geo.InitialBearing(*st.PreviousLat, *st.PreviousLon, st.Lat, st.Lon)
		st.ResolvedHeading = &b
	}
}

// ApplyCallsigns merges sparse callsign updates. Unknown ids are ignored
// and unchanged values are skipped without touching LastUpdate. Returns
// the number of aircraft actually modified.
func (s *Store) ApplyCallsigns(callsigns map[string]string) int {
	now := s.now()
	applied := 0

	s.mu.Lock()
	for id, cs := range callsigns {
		st, ok := s.aircraft[id]
		if !ok {
			continue
		}
		if st.Callsign != nil && *st.Callsign == cs {
			continue
		}
		v := cs
		st.Callsign = &v
		if now.After(st.LastUpdate) {
			st.LastUpdate = now
		}
		applied++
	}
	s.mu.Unlock()

	if applied > 0 {
		s.notify()
	}
	return applied
}

// ApplyCategories merges sparse classification updates with the same
// unknown-id and unchanged-value semantics as ApplyCallsigns.
func (s *Store) ApplyCategories(categories map[string]int) int {
	now := s.now()
	applied := 0

	s.mu.Lock()
	for id, cat := range categories {
		st, ok := s.aircraft[id]
		if !ok {
			continue
		}
		if st.Category != nil && *st.Category == cat {
			continue
		}
		v := cat
		st.Category = &v
		if now.After(st.LastUpdate) {
			st.LastUpdate = now
		}
		applied++
	}
	s.mu.Unlock()

	if applied > 0 {
		s.notify()
	}
	return applied
}

// CacheDetails back-fills static metadata onto the matching live aircraft,
// found by id or, failing that, by ICAO24.
func (s *Store) CacheDetails(d Details) bool {
	s.mu.Lock()
	st, ok := s.aircraft[d.ID]
	if !ok && d.ICAO24 != "" {
		for _, candidate := range s.aircraft {
			if candidate.ICAO24 == d.ICAO24 {
				st = candidate
				ok = true
				break
			}
		}
	}
	if !ok {
		s.mu.Unlock()
		return false
	}

	if d.ICAO24 != "" {
		st.ICAO24 = d.ICAO24
	}
	if d.AircraftType != "" {
		st.AircraftType = d.AircraftType
	}
	if d.ICAOType != "" {
		st.ICAOType = d.ICAOType
	}
	if d.Registration != "" {
		st.Registration = d.Registration
	}
	if d.Operator != "" {
		st.Operator = d.Operator
	}
	if d.Military {
		st.Military = true
	}
	s.mu.Unlock()

	s.notify()
	return true
}

// PurgeStale removes aircraft whose LastUpdate is older than the given
// threshold and returns how many were removed. Staleness alone never
// deletes; this must be called explicitly, typically from a housekeeping
// timer.
func (s *Store) PurgeStale(threshold time.Duration) int {
	now := s.now()
	removed := 0

	s.mu.Lock()
	for id, st := range s.aircraft {
		if now.Sub(st.LastUpdate) > threshold {
			delete(s.aircraft, id)
			if s.selected == id {
				s.selected = ""
			}
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		s.log.Debug("purged stale aircraft", logger.Int("removed", removed))
		s.notify()
	}
	return removed
}

// Select marks an aircraft as the current selection. Returns false for an
// unknown id, leaving any prior selection in place.
func (s *Store) Select(id string) bool {
	s.mu.Lock()
	_, ok := s.aircraft[id]
	if ok {
		s.selected = id
	}
	s.mu.Unlock()

	if ok {
		s.notify()
	}
	return ok
}

// ClearSelection drops the current selection if any.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	had := s.selected != ""
	s.selected = ""
	s.mu.Unlock()

	if had {
		s.notify()
	}
}

// Selected returns the currently selected aircraft id, or "".
func (s *Store) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// Get returns a copy of one aircraft's state.
func (s *Store) Get(id string) (AircraftState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.aircraft[id]
	if !ok {
		return AircraftState{}, false
	}
	return *st, true
}

// All returns copies of every aircraft in the store, stale ones included.
func (s *Store) All() []AircraftState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AircraftState, 0, len(s.aircraft))
	for _, st := range s.aircraft {
		out = append(out, *st)
	}
	return out
}

// Len returns how many aircraft the store holds, stale ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.aircraft)
}

// Version returns the current change counter.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Subscribe registers for change notifications. The returned channel gets
// a non-blocking signal on every state change; a slow consumer sees
// coalesced signals, never a backlog. The cancel func releases the
// subscription.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Store) notify() {
	s.mu.Lock()
	s.version++
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	s.mu.Unlock()
}
