// Package render watches the canonical state and keeps the renderable
// scene in step with it: interpolator tracks, icon resources, and the
// frame broadcasts the map UIs consume.
package render

import (
	"context"
	"sync"
	"time"

	"github.com/mikemorandi/flightradar/internal/icons"
	"github.com/mikemorandi/flightradar/internal/interp"
	"github.com/mikemorandi/flightradar/internal/store"
	"github.com/mikemorandi/flightradar/internal/websocket"
	"github.com/mikemorandi/flightradar/pkg/logger"
)

// Broadcaster pushes messages to connected map clients.
type Broadcaster interface {
	Broadcast(msg *websocket.Message)
}

// Manager diffs the renderable view against the currently rendered set
// and drives the scene accordingly.
type Manager struct {
	store     *store.Store
	pool      *icons.Pool
	hub       Broadcaster
	scheduler *interp.Scheduler

	mu       sync.Mutex
	rendered map[string]bool

	stopCh chan struct{}
	wg     sync.WaitGroup
	now    func() time.Time
	logger *logger.Logger
}

// NewManager creates a render manager with its own frame scheduler.
func NewManager(st *store.Store, pool *icons.Pool, hub Broadcaster, opts interp.Options, log *logger.Logger) *Manager {
	m := &Manager{
		store:    st,
		pool:     pool,
		hub:      hub,
		rendered: make(map[string]bool),
		stopCh:   make(chan struct{}),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   log.Named("render"),
	}
	m.scheduler = interp.New(log, m.onFrame, opts)
	return m
}

// Scheduler exposes the frame scheduler, mainly for status reporting.
func (m *Manager) Scheduler() *interp.Scheduler { return m.scheduler }

// Start begins watching the store for changes.
func (m *Manager) Start(ctx context.Context) error {
	changes, cancel := m.store.Subscribe()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-changes:
				m.Sync()
			}
		}
	}()

	m.logger.Info("Render manager started")
	return nil
}

// Stop halts the change watcher and the frame scheduler.
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	m.scheduler.Close()
	m.logger.Info("Render manager stopped")
}

// Sync reconciles the rendered set with the current renderable view:
// new aircraft get a track and an icon, known ones get the fresh sample
// and paint, vanished ones are detached. Detach keeps the icon resource
// pooled so an aircraft that merely went stale reappears cheaply.
func (m *Manager) Sync() {
	now := m.now()
	view := m.store.MapView(now)

	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool, len(view))
	for _, entry := range view {
		seen[entry.ID] = true
		sample := sampleFrom(entry)

		if m.rendered[entry.ID] {
			m.scheduler.Push(entry.ID, sample)
			m.paint(entry)
			m.hub.Broadcast(&websocket.Message{Type: websocket.MessageTypeAircraftUpdate, Data: entry})
			continue
		}

		m.rendered[entry.ID] = true
		m.scheduler.StartTrack(entry.ID, sample)
		res := m.pool.Acquire(entry.ID, icons.Resolve(categoryPtr(entry), entry.AircraftType))
		res.SetColorState(colorFor(entry))
		res.SetRotation(entry.Heading)
		m.hub.Broadcast(&websocket.Message{Type: websocket.MessageTypeAircraftAdded, Data: entry})
	}

	for id := range m.rendered {
		if seen[id] {
			continue
		}
		delete(m.rendered, id)
		m.scheduler.StopTrack(id)
		m.pool.Detach(id)
		m.hub.Broadcast(&websocket.Message{Type: websocket.MessageTypeAircraftRemoved, Data: map[string]string{"id": id}})
	}
}

// ReleaseEntity tears down everything rendered for an aircraft: its
// track, its icon resource, and its place in the rendered set. Used when
// the aircraft is purged or unsubscribed, where detach would keep state
// alive for nothing.
func (m *Manager) ReleaseEntity(id string) {
	m.mu.Lock()
	wasRendered := m.rendered[id]
	delete(m.rendered, id)
	m.mu.Unlock()

	m.scheduler.StopTrack(id)
	m.pool.Release(id)
	if wasRendered {
		m.hub.Broadcast(&websocket.Message{Type: websocket.MessageTypeAircraftRemoved, Data: map[string]string{"id": id}})
	}
}

// RenderedCount returns the size of the currently rendered set.
func (m *Manager) RenderedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rendered)
}

// paint refreshes an already-acquired icon's color state and rotation.
func (m *Manager) paint(entry store.MapAircraft) {
	res, ok := m.pool.Get(entry.ID)
	if !ok {
		res = m.pool.Acquire(entry.ID, icons.Resolve(categoryPtr(entry), entry.AircraftType))
	}
	res.SetColorState(colorFor(entry))
	res.SetRotation(entry.Heading)
}

// onFrame runs on every scheduler tick with the interpolated positions.
func (m *Manager) onFrame(positions []interp.Position) {
	m.hub.Broadcast(&websocket.Message{Type: websocket.MessageTypeFrame, Data: positions})
}

func colorFor(entry store.MapAircraft) icons.ColorState {
	switch {
	case entry.Selected:
		return icons.StateSelected
	case entry.Military:
		return icons.StateMilitary
	default:
		return icons.StateDefault
	}
}

func sampleFrom(entry store.MapAircraft) interp.Sample {
	var gs float64
	if entry.GroundSpeed != nil {
		gs = *entry.GroundSpeed
	}
	return interp.Sample{
		Lat:         entry.Lat,
		Lon:         entry.Lon,
		GroundSpeed: gs,
		Heading:     entry.Heading,
		Time:        entry.LastUpdate,
	}
}

func categoryPtr(entry store.MapAircraft) *int {
	c := entry.Category
	return &c
}
