package wire

import (
	"encoding/json"
	"time"
)

// Event names carried on the primary feed channel
const (
	EventPositions      = "positions"
	EventCallsigns      = "callsigns"
	EventCategories     = "categories"
	EventHeartbeat      = "heartbeat"
	EventFlightPosition = "flight_position"
)

// Message types inside positions / flight_position payloads
const (
	TypeInitial = "initial"
	TypeUpdate  = "update"
)

// Aircraft classification codes as carried on the categories channel.
// 0 and 1 carry no usable category; 2..20 are specific.
const (
	CategoryUnknown = 0
	CategoryNoInfo  = 1
	CategoryMax     = 20
)

// Envelope is the outer frame of every feed message
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// PositionUpdate is the normalized shape of a single aircraft update,
// regardless of which upstream wire variant delivered it. Optional fields
// are nil when the update did not carry them.
type PositionUpdate struct {
	ID          string
	ICAO24      string
	Lat         float64
	Lon         float64
	Altitude    *float64
	GroundSpeed *float64
	Track       *float64
	Callsign    *string
	Category    *int
}

// PositionsMessage is a decoded positions event
type PositionsMessage struct {
	Type      string
	Positions map[string]PositionUpdate
}

// Initial reports whether this message replaces the full aircraft set
func (m *PositionsMessage) Initial() bool {
	return m.Type == TypeInitial
}

// HistoryPosition is one sample of a flight's path feed
type HistoryPosition struct {
	Lat       float64
	Lon       float64
	Altitude  *float64
	Timestamp time.Time
}

// FlightPositionMessage is a decoded flight_position event. Initial messages
// carry the accumulated path; updates carry exactly one sample.
type FlightPositionMessage struct {
	Type      string
	FlightID  string
	Positions []HistoryPosition
}

// Heartbeat is a liveness signal with no state effect
type Heartbeat struct {
	Timestamp float64 `json:"timestamp"`
}
