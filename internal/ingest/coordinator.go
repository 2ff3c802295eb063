// Package ingest owns the upstream feed channels: the long-lived primary
// channel carrying all aircraft, the per-flight path channels, and the
// housekeeping pass that bounds memory.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mikemorandi/flightradar/internal/config"
	"github.com/mikemorandi/flightradar/internal/history"
	"github.com/mikemorandi/flightradar/internal/store"
	"github.com/mikemorandi/flightradar/internal/wire"
	"github.com/mikemorandi/flightradar/pkg/logger"
)

// Status is the primary channel's connection state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Cleaner releases everything rendered for an aircraft. Satisfied by the
// render manager.
type Cleaner interface {
	ReleaseEntity(id string)
}

// Coordinator consumes the upstream feed and keeps the store, the
// history store, and the rendered resources in sync with it.
type Coordinator struct {
	cfg            config.FeedConfig
	staleThreshold time.Duration

	store   *store.Store
	history *history.Store
	cleaner Cleaner
	dialer  *websocket.Dialer

	mu            sync.Mutex
	status        Status
	lastHeartbeat time.Time
	lastSeen      map[string]time.Time
	flights       map[string]*flightChannel

	stopCh chan struct{}
	wg     sync.WaitGroup
	now    func() time.Time
	logger *logger.Logger
}

// flightChannel is one per-flight path feed.
type flightChannel struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a coordinator. staleThreshold is the store's purge
// threshold applied on each housekeeping pass.
func New(cfg config.FeedConfig, staleThreshold time.Duration, st *store.Store, hist *history.Store, cleaner Cleaner, log *logger.Logger) *Coordinator {
	return &Coordinator{
		cfg:            cfg,
		staleThreshold: staleThreshold,
		store:          st,
		history:        hist,
		cleaner:        cleaner,
		dialer: &websocket.Dialer{
			HandshakeTimeout: time.Duration(cfg.HandshakeTimeoutSecs) * time.Second,
		},
		status:   StatusDisconnected,
		lastSeen: make(map[string]time.Time),
		flights:  make(map[string]*flightChannel),
		stopCh:   make(chan struct{}),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   log.Named("ingest"),
	}
}

// Start launches the primary channel loop and the housekeeping pass.
func (c *Coordinator) Start(ctx context.Context) error {
	c.wg.Add(2)
	go c.runPrimary(ctx)
	go c.runHousekeeping(ctx)

	c.logger.Info("Ingestion coordinator started",
		logger.String("feed_url", c.cfg.URL))
	return nil
}

// Stop closes every channel and waits for the goroutines to exit.
func (c *Coordinator) Stop() {
	close(c.stopCh)

	c.mu.Lock()
	channels := make([]*flightChannel, 0, len(c.flights))
	for _, fc := range c.flights {
		channels = append(channels, fc)
	}
	c.mu.Unlock()
	for _, fc := range channels {
		fc.cancel()
		<-fc.done
	}

	c.wg.Wait()
	c.logger.Info("Ingestion coordinator stopped")
}

// Status returns the primary channel's connection state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastHeartbeat returns the time of the last feed heartbeat.
func (c *Coordinator) LastHeartbeat() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHeartbeat
}

// SubscribedFlights returns the ids with an open path channel.
func (c *Coordinator) SubscribedFlights() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.flights))
	for id := range c.flights {
		out = append(out, id)
	}
	return out
}

func (c *Coordinator) setStatus(status Status) {
	c.mu.Lock()
	changed := c.status != status
	c.status = status
	c.mu.Unlock()
	if changed {
		c.logger.Info("Feed status changed", logger.String("status", string(status)))
	}
}

// runPrimary keeps the primary channel alive, reconnecting with
// exponential backoff. The backoff doubles up to the configured cap,
// carries 20 percent jitter, and resets after a successful connect.
func (c *Coordinator) runPrimary(ctx context.Context) {
	defer c.wg.Done()

	delay := time.Duration(c.cfg.ReconnectInitialMs) * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
		}

		c.setStatus(StatusConnecting)
		conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			c.setStatus(StatusError)
			c.logger.Warn("Feed dial failed",
				logger.Error(err),
				logger.Duration("retry_in", delay))
			if !c.sleep(ctx, jitter(delay)) {
				return
			}
			delay = nextDelay(delay, time.Duration(c.cfg.ReconnectMaxMs)*time.Millisecond)
			continue
		}

		c.setStatus(StatusConnected)
		delay = time.Duration(c.cfg.ReconnectInitialMs) * time.Millisecond

		err = c.readPrimary(ctx, conn)
		conn.Close()
		if err != nil {
			c.setStatus(StatusError)
			c.logger.Warn("Feed channel closed", logger.Error(err))
		} else {
			c.setStatus(StatusDisconnected)
			return
		}

		if !c.sleep(ctx, jitter(delay)) {
			return
		}
		delay = nextDelay(delay, time.Duration(c.cfg.ReconnectMaxMs)*time.Millisecond)
	}
}

// readPrimary drains one connection until it fails or the coordinator
// stops. A nil return means a deliberate shutdown.
func (c *Coordinator) readPrimary(ctx context.Context, conn *websocket.Conn) error {
	msgCh := make(chan []byte)
	errCh := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			select {
			case msgCh <- data:
			case <-c.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.stopCh:
			return nil
		case err := <-errCh:
			return fmt.Errorf("feed read failed: %w", err)
		case data := <-msgCh:
			c.dispatch(data)
		}
	}
}

// dispatch routes one primary channel message. A message that fails to
// parse is logged and dropped; the channel stays open.
func (c *Coordinator) dispatch(data []byte) {
	env, err := wire.ParseEnvelope(data)
	if err != nil {
		c.logger.Warn("Dropped unparseable feed message", logger.Error(err))
		return
	}

	switch env.Event {
	case wire.EventPositions:
		msg, skipped, err := wire.ParsePositions(env.Data)
		if err != nil {
			c.logger.Warn("Dropped positions message", logger.Error(err))
			return
		}
		if skipped > 0 {
			c.logger.Debug("Skipped invalid position entries", logger.Int("skipped", skipped))
		}
		c.store.ApplyPositions(msg.Positions, msg.Initial())
		c.recordSeen(msg)

	case wire.EventCallsigns:
		callsigns, err := wire.ParseCallsigns(env.Data)
		if err != nil {
			c.logger.Warn("Dropped callsigns message", logger.Error(err))
			return
		}
		c.store.ApplyCallsigns(callsigns)

	case wire.EventCategories:
		categories, err := wire.ParseCategories(env.Data)
		if err != nil {
			c.logger.Warn("Dropped categories message", logger.Error(err))
			return
		}
		c.store.ApplyCategories(categories)

	case wire.EventHeartbeat:
		if _, err := wire.ParseHeartbeat(env.Data); err != nil {
			c.logger.Warn("Dropped heartbeat message", logger.Error(err))
			return
		}
		c.mu.Lock()
		c.lastHeartbeat = c.now()
		c.mu.Unlock()

	default:
		c.logger.Debug("Ignored unknown feed event", logger.String("event", env.Event))
	}
}

func (c *Coordinator) recordSeen(msg *wire.PositionsMessage) {
	now := c.now()
	c.mu.Lock()
	if msg.Initial() {
		c.lastSeen = make(map[string]time.Time, len(msg.Positions))
	}
	for id := range msg.Positions {
		c.lastSeen[id] = now
	}
	c.mu.Unlock()
}

// Subscribe opens the per-flight path channel for an aircraft and marks
// it subscribed in the history store. Subscribing twice is a warn-level
// no-op. Subscribing after Stop returns an error so no flight channel
// outlives the coordinator.
func (c *Coordinator) Subscribe(id string) error {
	c.mu.Lock()
	select {
	case <-c.stopCh:
		c.mu.Unlock()
		return errors.New("ingest: coordinator stopped")
	default:
	}
	if _, ok := c.flights[id]; ok {
		c.mu.Unlock()
		c.logger.Warn("Duplicate subscribe ignored", logger.String("flight_id", id))
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	fc := &flightChannel{id: id, cancel: cancel, done: make(chan struct{})}
	c.flights[id] = fc
	c.wg.Add(1)
	c.mu.Unlock()

	c.history.SetSubscribed(id, true)

	go func() {
		defer c.wg.Done()
		defer close(fc.done)
		c.runFlight(ctx, id)
	}()

	c.logger.Info("Subscribed to flight path feed", logger.String("flight_id", id))
	return nil
}

// Unsubscribe closes the per-flight channel, stops the interpolation
// track, and releases the icon resource, all together. History is kept
// unless clearHistory is set. Unsubscribing an unknown id is a
// warn-level no-op.
func (c *Coordinator) Unsubscribe(id string, clearHistory bool) {
	c.mu.Lock()
	fc, ok := c.flights[id]
	if ok {
		delete(c.flights, id)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("Duplicate unsubscribe ignored", logger.String("flight_id", id))
		return
	}

	fc.cancel()
	<-fc.done

	c.history.SetSubscribed(id, false)
	if clearHistory {
		c.history.Purge(id)
	}
	c.cleaner.ReleaseEntity(id)

	c.logger.Info("Unsubscribed from flight path feed",
		logger.String("flight_id", id),
		logger.Bool("cleared_history", clearHistory))
}

// runFlight reads one flight's path channel until it fails or the
// subscription is cancelled.
func (c *Coordinator) runFlight(ctx context.Context, id string) {
	url := fmt.Sprintf(c.cfg.FlightURLTemplate, id)
	conn, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		c.logger.Warn("Flight path dial failed",
			logger.String("flight_id", id), logger.Error(err))
		return
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("Flight path channel closed",
					logger.String("flight_id", id), logger.Error(err))
			}
			return
		}

		env, err := wire.ParseEnvelope(data)
		if err != nil {
			c.logger.Warn("Dropped unparseable flight path message",
				logger.String("flight_id", id), logger.Error(err))
			continue
		}
		if env.Event != wire.EventFlightPosition {
			continue
		}

		msg, err := wire.ParseFlightPosition(env.Data)
		if err != nil {
			c.logger.Warn("Dropped flight path message",
				logger.String("flight_id", id), logger.Error(err))
			continue
		}

		if msg.Type == wire.TypeInitial {
			c.history.Replace(id, msg.Positions)
		} else {
			for _, pos := range msg.Positions {
				c.history.Append(id, pos)
			}
		}
	}
}

// runHousekeeping periodically prunes the last-seen ledger and triggers
// the store's stale purge. The ledger keeps ids twice as long as the
// purge threshold; only ids silent past the longer window get their
// rendered resources released.
func (c *Coordinator) runHousekeeping(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(time.Duration(c.cfg.HousekeepingMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.housekeep()
		}
	}
}

func (c *Coordinator) housekeep() {
	now := c.now()
	window := time.Duration(c.cfg.LastSeenWindowMs) * time.Millisecond

	var expired []string
	c.mu.Lock()
	for id, seen := range c.lastSeen {
		if now.Sub(seen) > window {
			delete(c.lastSeen, id)
			expired = append(expired, id)
		}
	}
	c.mu.Unlock()

	for _, id := range expired {
		if c.history.Subscribed(id) {
			c.Unsubscribe(id, true)
		} else {
			c.cleaner.ReleaseEntity(id)
			c.history.Purge(id)
		}
	}

	purged := c.store.PurgeStale(c.staleThreshold)
	if purged > 0 || len(expired) > 0 {
		c.logger.Debug("Housekeeping pass",
			logger.Int("purged", purged),
			logger.Int("ledger_expired", len(expired)))
	}
}

// nextDelay doubles the backoff up to the cap.
func nextDelay(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		next = max
	}
	return next
}

// jitter spreads a delay by up to 20 percent either way so reconnecting
// clients do not stampede the feed.
func jitter(d time.Duration) time.Duration {
	spread := float64(d) * 0.2
	offset := (rand.Float64()*2 - 1) * spread
	return time.Duration(float64(d) + offset)
}

// sleep waits for the given duration, returning false if the coordinator
// is stopping.
func (c *Coordinator) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-c.stopCh:
		return false
	case <-timer.C:
		return true
	}
}
