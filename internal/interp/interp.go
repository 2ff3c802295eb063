// Package interp turns sparse position samples into smooth per-frame
// positions. A single scheduler tick drives every active track so the
// number of aircraft never multiplies goroutines or timers.
package interp

import (
	"sort"
	"sync"
	"time"

	"github.com/mikemorandi/flightradar/internal/geo"
	"github.com/mikemorandi/flightradar/pkg/logger"
)

const (
	// DefaultFrameInterval is the render cadence, roughly 25 fps.
	DefaultFrameInterval = 40 * time.Millisecond

	// DefaultMaxExtrapolation caps how far a track keeps moving on dead
	// reckoning alone without a fresh sample.
	DefaultMaxExtrapolation = 10 * time.Second

	// DefaultConvergeFactor is the fraction of the remaining distance to
	// the projected target covered each frame.
	DefaultConvergeFactor = 0.25
)

// Sample is one accepted position report for a track. A zero GroundSpeed
// disables forward projection for that track.
type Sample struct {
	Lat         float64
	Lon         float64
	GroundSpeed float64 // knots
	Heading     float64 // degrees true
	Time        time.Time
}

// Position is one track's displayed state for a frame.
type Position struct {
	ID      string
	Lat     float64
	Lon     float64
	Heading float64
}

// FrameFunc receives every active track's displayed position once per
// frame tick. It must not block.
type FrameFunc func(positions []Position)

type track struct {
	sample Sample

	displayed bool
	lat, lon  float64
}

// Scheduler drives all active tracks from one frame ticker. The ticker
// runs only while at least one track exists.
type Scheduler struct {
	mu     sync.Mutex
	tracks map[string]*track

	interval time.Duration
	maxExtra time.Duration
	converge float64

	frameFn FrameFunc

	running bool
	closed  bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	now func() time.Time
	log *logger.Logger
}

// Options tunes the scheduler. Zero values fall back to the defaults.
type Options struct {
	FrameInterval    time.Duration
	MaxExtrapolation time.Duration
	ConvergeFactor   float64
}

// New creates a scheduler delivering frames to fn.
func New(log *logger.Logger, fn FrameFunc, opts Options) *Scheduler {
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultFrameInterval
	}
	if opts.MaxExtrapolation <= 0 {
		opts.MaxExtrapolation = DefaultMaxExtrapolation
	}
	if opts.ConvergeFactor <= 0 || opts.ConvergeFactor > 1 {
		opts.ConvergeFactor = DefaultConvergeFactor
	}
	return &Scheduler{
		tracks:   make(map[string]*track),
		interval: opts.FrameInterval,
		maxExtra: opts.MaxExtrapolation,
		converge: opts.ConvergeFactor,
		frameFn:  fn,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log.Named("interp"),
	}
}

// StartTrack registers a track with its first sample. The first frame
// snaps to the sample; later samples converge. Starting an existing track
// resets it.
func (s *Scheduler) StartTrack(id string, sample Sample) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.tracks[id] = &track{sample: sample}
	if !s.running {
		s.running = true
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go s.run(s.stopCh)
	}
	s.mu.Unlock()
}

// Push updates a track's accepted sample. Unknown tracks are ignored; the
// caller decides when a track should exist.
func (s *Scheduler) Push(id string, sample Sample) {
	s.mu.Lock()
	if tr, ok := s.tracks[id]; ok {
		tr.sample = sample
	}
	s.mu.Unlock()
}

// StopTrack removes a track and all of its state. Removing the last track
// stops the frame ticker.
func (s *Scheduler) StopTrack(id string) {
	s.mu.Lock()
	delete(s.tracks, id)
	s.stopTickerLocked()
	s.mu.Unlock()
}

// Active reports whether a track exists.
func (s *Scheduler) Active(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tracks[id]
	return ok
}

// Len returns the number of active tracks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracks)
}

// Snapshot returns the current displayed position of every track, sorted
// by id.
func (s *Scheduler) Snapshot() []Position {
	s.mu.Lock()
	out := make([]Position, 0, len(s.tracks))
	for id, tr := range s.tracks {
		if !tr.displayed {
			continue
		}
		out = append(out, Position{ID: id, Lat: tr.lat, Lon: tr.lon, Heading: tr.sample.Heading})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close stops all tracks and the ticker and waits for the frame goroutine
// to exit.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.tracks = make(map[string]*track)
	s.stopTickerLocked()
	s.mu.Unlock()
	s.wg.Wait()
}

// caller holds the lock
func (s *Scheduler) stopTickerLocked() {
	if s.running && len(s.tracks) == 0 {
		close(s.stopCh)
		s.running = false
	}
}

func (s *Scheduler) run(stopCh chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			positions := s.step(s.now())
			if s.frameFn != nil && len(positions) > 0 {
				s.frameFn(positions)
			}
		}
	}
}

// step advances every track one frame and returns the displayed
// positions. Each track's target is its sample projected forward by the
// elapsed time, capped at the extrapolation limit; the displayed position
// moves a fixed fraction toward the target so inconsistent samples slide
// into place rather than snapping.
func (s *Scheduler) step(now time.Time) []Position {
	s.mu.Lock()
	out := make([]Position, 0, len(s.tracks))
	for id, tr := range s.tracks {
		elapsed := now.Sub(tr.sample.Time)
		if elapsed < 0 {
			elapsed = 0
		}
		if elapsed > s.maxExtra {
			elapsed = s.maxExtra
		}

		targetLat, targetLon := geo.Project(tr.sample.Lat, tr.sample.Lon, tr.sample.Heading, tr.sample.GroundSpeed, elapsed)

		if !tr.displayed {
			tr.lat = targetLat
			tr.lon = targetLon
			tr.displayed = true
		} else {
			tr.lat += s.converge * (targetLat - tr.lat)
			tr.lon += s.converge * (targetLon - tr.lon)
		}

		out = append(out, Position{ID: id, Lat: tr.lat, Lon: tr.lon, Heading: tr.sample.Heading})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
