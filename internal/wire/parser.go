package wire

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// FlexNumber decodes a JSON value that some upstream builds emit as a number
// and others as a string. Null and absent both decode to "not present".
type FlexNumber struct {
	value   float64
	present bool
}

// UnmarshalJSON implements custom JSON unmarshaling for FlexNumber
func (f *FlexNumber) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}

	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		f.value = num
		f.present = true
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		if str == "" {
			return nil
		}
		num, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return fmt.Errorf("cannot parse %q as number", str)
		}
		f.value = num
		f.present = true
		return nil
	}

	return fmt.Errorf("cannot unmarshal %s into FlexNumber", data)
}

// Float64 returns the value and whether it was present
func (f FlexNumber) Float64() (float64, bool) {
	return f.value, f.present
}

// ptr returns a pointer to the value, nil when absent
func (f FlexNumber) ptr() *float64 {
	if !f.present {
		return nil
	}
	v := f.value
	return &v
}

// rawPosition matches the on-wire shape of one aircraft entry
type rawPosition struct {
	ICAO     string     `json:"icao"`
	Lat      FlexNumber `json:"lat"`
	Lon      FlexNumber `json:"lon"`
	Alt      FlexNumber `json:"alt"`
	GS       FlexNumber `json:"gs"`
	Track    FlexNumber `json:"track"`
	Callsign *string    `json:"callsign"`
	Cat      FlexNumber `json:"cat"`
}

// rawPositionsMessage matches the on-wire positions event payload
type rawPositionsMessage struct {
	Type      string                 `json:"type"`
	Positions map[string]rawPosition `json:"positions"`
}

// ParseEnvelope decodes the outer frame of a feed message
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse envelope: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("envelope has no event type")
	}
	return &env, nil
}

// ParsePositions decodes a positions event payload. Entries with unusable
// coordinates or category codes are skipped rather than failing the whole
// message; the skipped count is returned so callers can log it.
func ParsePositions(data []byte) (*PositionsMessage, int, error) {
	var raw rawPositionsMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, fmt.Errorf("failed to parse positions payload: %w", err)
	}
	if raw.Type != TypeInitial && raw.Type != TypeUpdate {
		return nil, 0, fmt.Errorf("unknown positions message type %q", raw.Type)
	}

	msg := &PositionsMessage{
		Type:      raw.Type,
		Positions: make(map[string]PositionUpdate, len(raw.Positions)),
	}

	skipped := 0
	for id, rp := range raw.Positions {
		upd, ok := normalizePosition(id, rp)
		if !ok {
			skipped++
			continue
		}
		msg.Positions[id] = upd
	}

	return msg, skipped, nil
}

// normalizePosition validates and converts one wire entry
func normalizePosition(id string, rp rawPosition) (PositionUpdate, bool) {
	lat, latOK := rp.Lat.Float64()
	lon, lonOK := rp.Lon.Float64()
	// Position fields are jointly present or the entry is unusable
	if !latOK || !lonOK {
		return PositionUpdate{}, false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return PositionUpdate{}, false
	}

	upd := PositionUpdate{
		ID:          id,
		ICAO24:      rp.ICAO,
		Lat:         lat,
		Lon:         lon,
		Altitude:    rp.Alt.ptr(),
		GroundSpeed: rp.GS.ptr(),
		Track:       rp.Track.ptr(),
		Callsign:    rp.Callsign,
	}

	if cat, ok := rp.Cat.Float64(); ok {
		c := int(cat)
		if c < CategoryUnknown || c > CategoryMax {
			return PositionUpdate{}, false
		}
		upd.Category = &c
	}

	return upd, true
}

// ParseCallsigns decodes a callsigns event payload (id -> callsign)
func ParseCallsigns(data []byte) (map[string]string, error) {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse callsigns payload: %w", err)
	}
	return m, nil
}

// ParseCategories decodes a categories event payload (id -> classification
// code). Codes outside the defined range fail the message.
func ParseCategories(data []byte) (map[string]int, error) {
	var m map[string]int
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse categories payload: %w", err)
	}
	for id, c := range m {
		if c < CategoryUnknown || c > CategoryMax {
			return nil, fmt.Errorf("category code %d for %s out of range", c, id)
		}
	}
	return m, nil
}

// ParseHeartbeat decodes a heartbeat event payload
func ParseHeartbeat(data []byte) (*Heartbeat, error) {
	var hb Heartbeat
	if err := json.Unmarshal(data, &hb); err != nil {
		return nil, fmt.Errorf("failed to parse heartbeat payload: %w", err)
	}
	return &hb, nil
}

// flexTime decodes a timestamp that arrives either as epoch seconds
// (possibly fractional) or as an RFC 3339 string
type flexTime struct {
	t time.Time
}

func (ft *flexTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}

	var epoch float64
	if err := json.Unmarshal(data, &epoch); err == nil {
		sec := int64(epoch)
		nsec := int64((epoch - float64(sec)) * 1e9)
		ft.t = time.Unix(sec, nsec).UTC()
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("cannot unmarshal %s into timestamp", data)
	}
	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return fmt.Errorf("cannot parse timestamp %q: %w", str, err)
	}
	ft.t = t.UTC()
	return nil
}

// rawHistoryPosition matches one sample on the flight path feed
type rawHistoryPosition struct {
	Lat       FlexNumber `json:"lat"`
	Lon       FlexNumber `json:"lon"`
	Alt       FlexNumber `json:"alt"`
	Timestamp flexTime   `json:"timestamp"`
}

// rawFlightPositionMessage matches the flight_position event payload.
// Initial messages carry the path under positions[flight_id]; update
// messages carry a single sample's fields at the message root.
type rawFlightPositionMessage struct {
	Type      string                            `json:"type"`
	FlightID  string                            `json:"flight_id"`
	Positions map[string][]rawHistoryPosition   `json:"positions"`
	rawHistoryPosition                          // update fields at root
}

// ParseFlightPosition decodes a flight_position event payload
func ParseFlightPosition(data []byte) (*FlightPositionMessage, error) {
	var raw rawFlightPositionMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse flight_position payload: %w", err)
	}

	switch raw.Type {
	case TypeInitial:
		msg := &FlightPositionMessage{Type: raw.Type}
		for id, samples := range raw.Positions {
			msg.FlightID = id
			for _, rp := range samples {
				hp, ok := normalizeHistory(rp)
				if !ok {
					continue
				}
				msg.Positions = append(msg.Positions, hp)
			}
			break // one flight per channel
		}
		return msg, nil

	case TypeUpdate:
		hp, ok := normalizeHistory(raw.rawHistoryPosition)
		if !ok {
			return nil, fmt.Errorf("flight_position update has no usable coordinates")
		}
		return &FlightPositionMessage{
			Type:      raw.Type,
			FlightID:  raw.FlightID,
			Positions: []HistoryPosition{hp},
		}, nil

	default:
		return nil, fmt.Errorf("unknown flight_position message type %q", raw.Type)
	}
}

func normalizeHistory(rp rawHistoryPosition) (HistoryPosition, bool) {
	lat, latOK := rp.Lat.Float64()
	lon, lonOK := rp.Lon.Float64()
	if !latOK || !lonOK || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return HistoryPosition{}, false
	}
	return HistoryPosition{
		Lat:       lat,
		Lon:       lon,
		Altitude:  rp.Alt.ptr(),
		Timestamp: rp.Timestamp.t,
	}, true
}
