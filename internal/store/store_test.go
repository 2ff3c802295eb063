package store

import (
	"testing"
	"time"

	"github.com/mikemorandi/flightradar/internal/wire"
	"github.com/mikemorandi/flightradar/pkg/logger"
)

func f64(v float64) *float64 { return &v }
func str(v string) *string   { return &v }
func intp(v int) *int        { return &v }

func newTestStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	s := New(logger.NewNop(), 15*time.Second)
	now := time.Date(2024, 7, 3, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestApplyPositionsInitialReplaces(t *testing.T) {
	s, _ := newTestStore(t)

	s.ApplyPositions(map[string]wire.PositionUpdate{
		"f1": {ID: "f1", ICAO24: "aaaaaa", Lat: 43.0, Lon: -79.0},
		"f2": {ID: "f2", ICAO24: "bbbbbb", Lat: 44.0, Lon: -78.0},
	}, true)
	if s.Len() != 2 {
		t.Fatalf("len = %d, want 2", s.Len())
	}

	// A fresh initial snapshot replaces everything
	s.ApplyPositions(map[string]wire.PositionUpdate{
		"f3": {ID: "f3", ICAO24: "cccccc", Lat: 45.0, Lon: -77.0},
	}, true)
	if s.Len() != 1 {
		t.Fatalf("len after second initial = %d, want 1", s.Len())
	}
	if _, ok := s.Get("f1"); ok {
		t.Error("f1 survived an initial snapshot that did not include it")
	}
	if _, ok := s.Get("f3"); !ok {
		t.Error("f3 missing after initial snapshot")
	}
}

func TestApplyPositionsUpdateMerges(t *testing.T) {
	s, _ := newTestStore(t)

	s.ApplyPositions(map[string]wire.PositionUpdate{
		"f1": {ID: "f1", ICAO24: "aaaaaa", Lat: 43.0, Lon: -79.0, Altitude: f64(30000), Callsign: str("ACA123")},
		"f2": {ID: "f2", ICAO24: "bbbbbb", Lat: 44.0, Lon: -78.0},
	}, true)

	// Update touching only f1 leaves f2 alone and keeps f1's absent fields
	s.ApplyPositions(map[string]wire.PositionUpdate{
		"f1": {ID: "f1", Lat: 43.1, Lon: -79.1, GroundSpeed: f64(420)},
	}, false)

	if s.Len() != 2 {
		t.Fatalf("len = %d, want 2", s.Len())
	}
	f1, _ := s.Get("f1")
	if f1.Lat != 43.1 || f1.Lon != -79.1 {
		t.Errorf("f1 position = %v,%v, want 43.1,-79.1", f1.Lat, f1.Lon)
	}
	if f1.Altitude == nil || *f1.Altitude != 30000 {
		t.Errorf("f1 altitude lost in merge: %v", f1.Altitude)
	}
	if f1.Callsign == nil || *f1.Callsign != "ACA123" {
		t.Errorf("f1 callsign lost in merge: %v", f1.Callsign)
	}
	if f1.GroundSpeed == nil || *f1.GroundSpeed != 420 {
		t.Errorf("f1 ground speed not merged: %v", f1.GroundSpeed)
	}
	if f1.ICAO24 != "aaaaaa" {
		t.Errorf("f1 icao24 = %q, want aaaaaa", f1.ICAO24)
	}
	if _, ok := s.Get("f2"); !ok {
		t.Error("f2 removed by a delta update that did not mention it")
	}
}

func TestMergeIdempotence(t *testing.T) {
	s, now := newTestStore(t)

	upd := map[string]wire.PositionUpdate{
		"f1": {ID: "f1", ICAO24: "aaaaaa", Lat: 43.0, Lon: -79.0, Altitude: f64(30000), Track: f64(180), Category: intp(6)},
	}
	s.ApplyPositions(upd, false)
	first, _ := s.Get("f1")

	*now = now.Add(2 * time.Second)
	s.ApplyPositions(upd, false)
	second, _ := s.Get("f1")

	if !second.LastUpdate.After(first.LastUpdate) {
		t.Error("LastUpdate did not advance on repeated update")
	}
	if second.Lat != first.Lat || second.Lon != first.Lon {
		t.Error("position changed on identical update")
	}
	if *second.Altitude != *first.Altitude || *second.Track != *first.Track || *second.Category != *first.Category {
		t.Error("fields changed on identical update")
	}
	if second.PreviousLat != nil {
		t.Error("previous coordinates snapshotted although position did not move")
	}
	if *second.ResolvedHeading != *first.ResolvedHeading {
		t.Error("resolved heading changed on identical update")
	}
}

func TestHeadingTrackWins(t *testing.T) {
	s, _ := newTestStore(t)

	// Build up a cached heading and a position history first
	s.ApplyPositions(map[string]wire.PositionUpdate{
		"f1": {ID: "f1", Lat: 43.0, Lon: -79.0, Track: f64(270.4)},
	}, false)
	s.ApplyPositions(map[string]wire.PositionUpdate{
		"f1": {ID: "f1", Lat: 43.1, Lon: -79.0, Track: f64(90.0)},
	}, false)

	f1, _ := s.Get("f1")
	if f1.ResolvedHeading == nil || *f1.ResolvedHeading != 90 {
		t.Errorf("resolved heading = %v, want 90 (authoritative track wins)", f1.ResolvedHeading)
	}
}

func TestHeadingFromBearingAfterSecondPosition(t *testing.T) {
	s, now := newTestStore(t)

	// First position, no track, no history: heading unresolved, hidden
	s.ApplyPositions(map[string]wire.PositionUpdate{
		"x": {ID: "x", Lat: 43.0, Lon: -79.0},
	}, false)
	if view := s.MapView(*now); len(view) != 0 {
		t.Fatalf("aircraft without resolvable heading appeared in view: %v", view)
	}

	// One second later it moved 0.01 degrees north-east
	*now = now.Add(time.Second)
	s.ApplyPositions(map[string]wire.PositionUpdate{
		"x": {ID: "x", Lat: 43.01, Lon: -78.99},
	}, false)

	view := s.MapView(*now)
	if len(view) != 1 {
		t.Fatalf("aircraft missing from view after heading resolved")
	}
	if view[0].Heading < 42 || view[0].Heading > 48 {
		t.Errorf("derived heading = %v, want ~45", view[0].Heading)
	}
}

func TestHeadingCachedDuringGap(t *testing.T) {
	s, _ := newTestStore(t)

	s.ApplyPositions(map[string]wire.PositionUpdate{
		"f1": {ID: "f1", Lat: 43.0, Lon: -79.0, Track: f64(200)},
	}, false)
	// Later update without a track keeps the cached heading
	s.ApplyPositions(map[string]wire.PositionUpdate{
		"f1": {ID: "f1", Lat: 43.0, Lon: -79.0},
	}, false)

	f1, _ := s.Get("f1")
	if f1.ResolvedHeading == nil || *f1.ResolvedHeading != 200 {
		t.Errorf("cached heading lost: %v", f1.ResolvedHeading)
	}
}

func TestStalenessHidesButRetains(t *testing.T) {
	s, now := newTestStore(t)

	s.ApplyPositions(map[string]wire.PositionUpdate{
		"f1": {ID: "f1", Lat: 43.0, Lon: -79.0, Track: f64(90)},
	}, false)

	*now = now.Add(16 * time.Second)
	if view := s.MapView(*now); len(view) != 0 {
		t.Errorf("stale aircraft still in view: %v", view)
	}
	if s.Len() != 1 {
		t.Error("stale aircraft deleted without an explicit purge")
	}

	if removed := s.PurgeStale(15 * time.Second); removed != 1 {
		t.Errorf("PurgeStale removed %d, want 1", removed)
	}
	if s.Len() != 0 {
		t.Error("aircraft survived purge")
	}
}

func TestApplyCallsignsUnknownIDNoOp(t *testing.T) {
	s, _ := newTestStore(t)

	if applied := s.ApplyCallsigns(map[string]string{"ghost": "ACA123"}); applied != 0 {
		t.Errorf("applied = %d, want 0 for unknown id", applied)
	}
	if s.Len() != 0 {
		t.Error("callsign update for unknown id created state")
	}
}

func TestApplyCallsignsSkipsUnchanged(t *testing.T) {
	s, now := newTestStore(t)

	s.ApplyPositions(map[string]wire.PositionUpdate{
		"f1": {ID: "f1", Lat: 43.0, Lon: -79.0, Callsign: str("ACA123")},
	}, false)
	before, _ := s.Get("f1")

	*now = now.Add(3 * time.Second)
	if applied := s.ApplyCallsigns(map[string]string{"f1": "ACA123"}); applied != 0 {
		t.Errorf("applied = %d, want 0 for unchanged callsign", applied)
	}
	after, _ := s.Get("f1")
	if !after.LastUpdate.Equal(before.LastUpdate) {
		t.Error("LastUpdate bumped by an unchanged callsign")
	}

	if applied := s.ApplyCallsigns(map[string]string{"f1": "ACA456"}); applied != 1 {
		t.Errorf("applied = %d, want 1 for changed callsign", applied)
	}
	after, _ = s.Get("f1")
	if after.Callsign == nil || *after.Callsign != "ACA456" {
		t.Errorf("callsign = %v, want ACA456", after.Callsign)
	}
	if !after.LastUpdate.After(before.LastUpdate) {
		t.Error("LastUpdate not bumped by a real callsign change")
	}
}

func TestApplyCategories(t *testing.T) {
	s, _ := newTestStore(t)

	s.ApplyPositions(map[string]wire.PositionUpdate{
		"f1": {ID: "f1", Lat: 43.0, Lon: -79.0},
	}, false)

	if applied := s.ApplyCategories(map[string]int{"f1": 8, "ghost": 5}); applied != 1 {
		t.Errorf("applied = %d, want 1", applied)
	}
	f1, _ := s.Get("f1")
	if f1.Category == nil || *f1.Category != 8 {
		t.Errorf("category = %v, want 8", f1.Category)
	}
	if applied := s.ApplyCategories(map[string]int{"f1": 8}); applied != 0 {
		t.Errorf("applied = %d, want 0 for unchanged category", applied)
	}
}

func TestCacheDetails(t *testing.T) {
	s, _ := newTestStore(t)

	s.ApplyPositions(map[string]wire.PositionUpdate{
		"f1": {ID: "f1", ICAO24: "aaaaaa", Lat: 43.0, Lon: -79.0},
	}, false)

	if !s.CacheDetails(Details{ID: "f1", AircraftType: "Boeing 777-300ER", ICAOType: "B77W", Registration: "C-FIVS", Operator: "Air Canada"}) {
		t.Fatal("CacheDetails by id failed")
	}
	f1, _ := s.Get("f1")
	if f1.ICAOType != "B77W" || f1.Registration != "C-FIVS" {
		t.Errorf("details not merged: %+v", f1)
	}

	// Lookup by ICAO24 when the id does not match
	if !s.CacheDetails(Details{ID: "other", ICAO24: "aaaaaa", Military: true}) {
		t.Fatal("CacheDetails by icao24 failed")
	}
	f1, _ = s.Get("f1")
	if !f1.Military {
		t.Error("military flag not set via icao24 lookup")
	}
	if f1.ICAOType != "B77W" {
		t.Error("existing details overwritten by empty fields")
	}

	if s.CacheDetails(Details{ID: "ghost", ICAO24: "ffffff"}) {
		t.Error("CacheDetails reported success for unknown aircraft")
	}
}

func TestSelection(t *testing.T) {
	s, now := newTestStore(t)

	s.ApplyPositions(map[string]wire.PositionUpdate{
		"f1": {ID: "f1", Lat: 43.0, Lon: -79.0, Track: f64(90)},
	}, false)

	if s.Select("ghost") {
		t.Error("Select succeeded for unknown id")
	}
	if !s.Select("f1") {
		t.Fatal("Select failed for known id")
	}
	if s.Selected() != "f1" {
		t.Errorf("selected = %q, want f1", s.Selected())
	}

	view := s.MapView(*now)
	if len(view) != 1 || !view[0].Selected {
		t.Error("selection not reflected in view")
	}

	s.ClearSelection()
	if s.Selected() != "" {
		t.Error("selection not cleared")
	}
}

func TestPurgeStaleClearsSelection(t *testing.T) {
	s, now := newTestStore(t)

	s.ApplyPositions(map[string]wire.PositionUpdate{
		"f1": {ID: "f1", Lat: 43.0, Lon: -79.0, Track: f64(90)},
		"f2": {ID: "f2", Lat: 44.0, Lon: -78.0, Track: f64(180)},
	}, false)
	if !s.Select("f1") {
		t.Fatal("Select failed for known id")
	}

	// Only f2 stays fresh.
	*now = now.Add(16 * time.Second)
	s.ApplyPositions(map[string]wire.PositionUpdate{
		"f2": {ID: "f2", Lat: 44.1, Lon: -78.0},
	}, false)

	if removed := s.PurgeStale(15 * time.Second); removed != 1 {
		t.Fatalf("PurgeStale removed %d, want 1", removed)
	}
	if s.Selected() != "" {
		t.Errorf("selected = %q after purging the selected aircraft, want empty", s.Selected())
	}
}

func TestSubscribeCoalesces(t *testing.T) {
	s, _ := newTestStore(t)
	ch, cancel := s.Subscribe()
	defer cancel()

	v0 := s.Version()
	for i := 0; i < 5; i++ {
		s.ApplyPositions(map[string]wire.PositionUpdate{
			"f1": {ID: "f1", Lat: 43.0 + float64(i)*0.01, Lon: -79.0},
		}, false)
	}

	select {
	case <-ch:
	default:
		t.Fatal("no change signal delivered")
	}
	// Signals coalesce; at most one more may be pending
	select {
	case <-ch:
	default:
	}
	select {
	case <-ch:
		t.Error("subscription accumulated a backlog")
	default:
	}

	if s.Version() <= v0 {
		t.Error("version did not advance")
	}
}
