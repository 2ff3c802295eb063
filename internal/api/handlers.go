// Package api exposes the REST and WebSocket surface that map UIs talk
// to.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mikemorandi/flightradar/internal/history"
	"github.com/mikemorandi/flightradar/internal/ingest"
	"github.com/mikemorandi/flightradar/internal/metadata"
	"github.com/mikemorandi/flightradar/internal/render"
	"github.com/mikemorandi/flightradar/internal/store"
	"github.com/mikemorandi/flightradar/internal/websocket"
	"github.com/mikemorandi/flightradar/pkg/logger"
)

// Handler bundles the services the API serves from.
type Handler struct {
	store       *store.Store
	history     *history.Store
	metadata    *metadata.Client
	coordinator *ingest.Coordinator
	render      *render.Manager
	hub         *websocket.Server
	started     time.Time
	logger      *logger.Logger
}

// NewHandler creates the API handler.
func NewHandler(st *store.Store, hist *history.Store, md *metadata.Client, coord *ingest.Coordinator, rm *render.Manager, hub *websocket.Server, log *logger.Logger) *Handler {
	return &Handler{
		store:       st,
		history:     hist,
		metadata:    md,
		coordinator: coord,
		render:      rm,
		hub:         hub,
		started:     time.Now().UTC(),
		logger:      log.Named("api"),
	}
}

// writeJSON writes a JSON response with the given status code
func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", logger.Error(err))
	}
}

// writeError writes a JSON error response
func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

// GetAircraft returns the current renderable view.
func (h *Handler) GetAircraft(w http.ResponseWriter, r *http.Request) {
	view := h.store.MapView(time.Now().UTC())
	h.writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(view),
		"aircraft": view,
	})
}

// aircraftDetail is the full per-aircraft answer, staleness included.
type aircraftDetail struct {
	store.AircraftState
	Subscribed   bool `json:"subscribed"`
	HistoryCount int  `json:"history_count"`
}

// GetAircraftByID returns one aircraft's canonical state, backfilling
// static metadata from the enrichment backend when it is missing.
func (h *Handler) GetAircraftByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	st, ok := h.store.Get(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, "aircraft not found")
		return
	}

	if st.AircraftType == "" && st.ICAO24 != "" && h.metadata != nil {
		h.backfill(r.Context(), id, st.ICAO24)
		st, _ = h.store.Get(id)
	}

	h.writeJSON(w, http.StatusOK, aircraftDetail{
		AircraftState: st,
		Subscribed:    h.history.Subscribed(id),
		HistoryCount:  h.history.Len(id),
	})
}

// backfill fetches static metadata and caches it onto the live aircraft.
// A negative answer is fine; errors only log.
func (h *Handler) backfill(ctx context.Context, id, icao24 string) {
	ac, err := h.metadata.FetchAircraft(ctx, icao24)
	if err != nil {
		h.logger.Warn("Metadata backfill failed",
			logger.String("icao24", icao24), logger.Error(err))
		return
	}
	if ac == nil {
		return
	}
	h.store.CacheDetails(store.Details{
		ID:           id,
		ICAO24:       ac.ICAO24,
		AircraftType: ac.AircraftType,
		ICAOType:     ac.ICAOType,
		Registration: ac.Registration,
		Operator:     ac.Operator,
		Military:     ac.Military,
	})
}

// trackPoint is one position in a track response.
type trackPoint struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Altitude  *float64  `json:"altitude,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// GetAircraftTrack returns the aircraft's path: the capped live window
// when one is accumulating, otherwise the backend's historical path.
func (h *Handler) GetAircraftTrack(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	live := h.history.Positions(id)
	points := make([]trackPoint, 0, len(live))
	for _, p := range live {
		points = append(points, trackPoint{Lat: p.Lat, Lon: p.Lon, Altitude: p.Altitude, Timestamp: p.Timestamp})
	}

	if len(points) == 0 && h.metadata != nil {
		fetched, err := h.metadata.FetchTrack(r.Context(), id)
		if errors.Is(err, metadata.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "track not found")
			return
		}
		if err != nil {
			h.logger.Warn("Track fetch failed", logger.String("flight_id", id), logger.Error(err))
			h.writeError(w, http.StatusBadGateway, "track lookup failed")
			return
		}
		for _, p := range fetched {
			points = append(points, trackPoint{Lat: p.Lat, Lon: p.Lon, Altitude: p.Altitude, Timestamp: p.Timestamp})
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"flight_id": id,
		"count":     len(points),
		"positions": points,
	})
}

// SelectAircraft marks an aircraft selected and opens its path feed.
func (h *Handler) SelectAircraft(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !h.store.Select(id) {
		h.writeError(w, http.StatusNotFound, "aircraft not found")
		return
	}
	if h.coordinator != nil {
		if err := h.coordinator.Subscribe(id); err != nil {
			h.logger.Warn("Path feed subscribe failed",
				logger.String("flight_id", id), logger.Error(err))
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"selected": id})
}

// DeselectAircraft clears the selection and closes the path feed. The
// accumulated history is kept unless clear_history=true is passed.
func (h *Handler) DeselectAircraft(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	clear := r.URL.Query().Get("clear_history") == "true"

	if h.store.Selected() == id {
		h.store.ClearSelection()
	}
	if h.coordinator != nil {
		h.coordinator.Unsubscribe(id, clear)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"deselected":      id,
		"cleared_history": clear,
	})
}

// GetStatus reports feed and pipeline health.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"aircraft_count": h.store.Len(),
		"store_version":  h.store.Version(),
	}
	if h.coordinator != nil {
		status["feed_status"] = h.coordinator.Status()
		status["subscribed_flights"] = h.coordinator.SubscribedFlights()
		if hb := h.coordinator.LastHeartbeat(); !hb.IsZero() {
			status["last_heartbeat"] = hb
		}
	}
	if h.render != nil {
		status["rendered_count"] = h.render.RenderedCount()
		status["active_tracks"] = h.render.Scheduler().Len()
	}
	if h.hub != nil {
		status["clients"] = h.hub.ClientCount()
	}
	h.writeJSON(w, http.StatusOK, status)
}

// HandleWebSocket upgrades the connection and hands it to the hub.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.hub.HandleConnection(w, r)
}
