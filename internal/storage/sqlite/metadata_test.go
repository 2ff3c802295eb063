package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mikemorandi/flightradar/pkg/logger"
)

func newTestStorage(t *testing.T) *MetadataStorage {
	t.Helper()
	s, err := NewMetadataStorage(filepath.Join(t.TempDir(), "metadata.db"), logger.NewNop())
	if err != nil {
		t.Fatalf("NewMetadataStorage failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStorage(t)

	if rec, err := s.Get("c01234"); err != nil || rec != nil {
		t.Fatalf("Get on empty cache = (%v, %v), want (nil, nil)", rec, err)
	}

	want := MetadataRecord{
		ICAO24:       "c01234",
		Registration: "C-FIVS",
		ICAOType:     "B77W",
		AircraftType: "Boeing 777-300ER",
		Operator:     "Air Canada",
	}
	if err := s.Put(want); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	rec, err := s.Get("c01234")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec == nil || rec.Registration != want.Registration || rec.ICAOType != want.ICAOType {
		t.Errorf("got %+v, want %+v", rec, want)
	}
	if rec.NotFound {
		t.Error("positive record flagged not_found")
	}
	if rec.FetchedAt.IsZero() {
		t.Error("FetchedAt not defaulted")
	}
}

func TestNegativeEntryAndUpgrade(t *testing.T) {
	s := newTestStorage(t)

	if err := s.PutNegative("abcdef"); err != nil {
		t.Fatalf("PutNegative failed: %v", err)
	}
	rec, err := s.Get("abcdef")
	if err != nil || rec == nil {
		t.Fatalf("Get after PutNegative = (%v, %v)", rec, err)
	}
	if !rec.NotFound {
		t.Error("negative entry not flagged")
	}

	// A later successful fetch upgrades the entry in place
	if err := s.Put(MetadataRecord{ICAO24: "abcdef", Registration: "N12345"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	rec, _ = s.Get("abcdef")
	if rec.NotFound || rec.Registration != "N12345" {
		t.Errorf("upgrade left %+v", rec)
	}
}

func TestPruneOlderThan(t *testing.T) {
	s := newTestStorage(t)

	old := time.Now().UTC().Add(-200 * 24 * time.Hour)
	if err := s.Put(MetadataRecord{ICAO24: "old001", FetchedAt: old}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put(MetadataRecord{ICAO24: "new001"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	removed, err := s.PruneOlderThan(time.Now().UTC().Add(-120 * 24 * time.Hour))
	if err != nil {
		t.Fatalf("PruneOlderThan failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if rec, _ := s.Get("old001"); rec != nil {
		t.Error("expired entry survived prune")
	}
	if rec, _ := s.Get("new001"); rec == nil {
		t.Error("fresh entry pruned")
	}
}
