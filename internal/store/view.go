package store

import (
	"sort"
	"time"

	"github.com/mikemorandi/flightradar/internal/geo"
)

// MapAircraft is one renderable entry derived from the canonical state.
// It is recomputed on demand and never stored.
type MapAircraft struct {
	ID              string    `json:"id"`
	ICAO24          string    `json:"icao24,omitempty"`
	Lat             float64   `json:"lat"`
	Lon             float64   `json:"lon"`
	Altitude        *float64  `json:"altitude,omitempty"`
	GroundSpeed     *float64  `json:"ground_speed,omitempty"`
	Heading         float64   `json:"heading"`
	MagneticHeading float64   `json:"magnetic_heading"`
	Callsign        string    `json:"callsign,omitempty"`
	Category        int       `json:"category"`
	AircraftType    string    `json:"aircraft_type,omitempty"`
	Registration    string    `json:"registration,omitempty"`
	Operator        string    `json:"operator,omitempty"`
	Military        bool      `json:"military"`
	Selected        bool      `json:"selected"`
	LastUpdate      time.Time `json:"last_update"`
}

// MapView builds the renderable subset of the store as of now: aircraft
// with a position and a resolved heading whose last update is within the
// staleness threshold. Results are sorted by id for stable output.
func (s *Store) MapView(now time.Time) []MapAircraft {
	s.mu.RLock()
	out := make([]MapAircraft, 0, len(s.aircraft))
	for _, st := range s.aircraft {
		if !st.HasPosition || st.ResolvedHeading == nil {
			continue
		}
		if now.Sub(st.LastUpdate) > s.staleThreshold {
			continue
		}

		entry := MapAircraft{
			ID:           st.ID,
			ICAO24:       st.ICAO24,
			Lat:          st.Lat,
			Lon:          st.Lon,
			Altitude:     st.Altitude,
			GroundSpeed:  st.GroundSpeed,
			Heading:      *st.ResolvedHeading,
			AircraftType: st.AircraftType,
			Registration: st.Registration,
			Operator:     st.Operator,
			Military:     st.Military,
			Selected:     st.ID == s.selected,
			LastUpdate:   st.LastUpdate,
		}

		altFt := 0.0
		if st.Altitude != nil {
			altFt = *st.Altitude
		}
		entry.MagneticHeading = geo.TrueToMagnetic(entry.Heading, st.Lat, st.Lon, altFt, now)

		if st.Callsign != nil {
			entry.Callsign = *st.Callsign
		}
		if st.Category != nil {
			entry.Category = *st.Category
		}
		out = append(out, entry)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
