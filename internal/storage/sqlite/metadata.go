// Package sqlite persists the aircraft metadata cache so positive and
// negative lookups survive restarts.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mikemorandi/flightradar/pkg/logger"
	_ "modernc.org/sqlite"
)

// MetadataRecord is one cached metadata lookup. NotFound marks a
// negative entry: the backend answered 404 and the lookup should not be
// repeated until the entry expires.
type MetadataRecord struct {
	ICAO24       string
	Registration string
	ICAOType     string
	AircraftType string
	Operator     string
	Military     bool
	NotFound     bool
	FetchedAt    time.Time
}

// MetadataStorage is a SQLite-based cache for aircraft metadata
type MetadataStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewMetadataStorage opens (or creates) the cache database at dbPath
func NewMetadataStorage(dbPath string, log *logger.Logger) (*MetadataStorage, error) {
	storageLogger := log.Named("sqlite")

	storageLogger.Info("Initializing metadata cache",
		logger.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Set pragmas for better performance and concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &MetadataStorage{
		db:     db,
		logger: storageLogger,
	}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS aircraft_metadata (
			icao24 TEXT PRIMARY KEY,
			registration TEXT NOT NULL DEFAULT '',
			icao_type TEXT NOT NULL DEFAULT '',
			aircraft_type TEXT NOT NULL DEFAULT '',
			operator TEXT NOT NULL DEFAULT '',
			military INTEGER NOT NULL DEFAULT 0,
			not_found INTEGER NOT NULL DEFAULT 0,
			fetched_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_metadata_fetched_at ON aircraft_metadata(fetched_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *MetadataStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Get returns the cached record for an ICAO24 address, or (nil, nil) on a
// cache miss.
func (s *MetadataStorage) Get(icao24 string) (*MetadataRecord, error) {
	row := s.db.QueryRow(`
		SELECT icao24, registration, icao_type, aircraft_type, operator, military, not_found, fetched_at
		FROM aircraft_metadata WHERE icao24 = ?`, icao24)

	var rec MetadataRecord
	err := row.Scan(&rec.ICAO24, &rec.Registration, &rec.ICAOType, &rec.AircraftType,
		&rec.Operator, &rec.Military, &rec.NotFound, &rec.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata for %s: %w", icao24, err)
	}
	return &rec, nil
}

// Put stores or refreshes a positive record
func (s *MetadataStorage) Put(rec MetadataRecord) error {
	if rec.FetchedAt.IsZero() {
		rec.FetchedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO aircraft_metadata
			(icao24, registration, icao_type, aircraft_type, operator, military, not_found, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(icao24) DO UPDATE SET
			registration = excluded.registration,
			icao_type = excluded.icao_type,
			aircraft_type = excluded.aircraft_type,
			operator = excluded.operator,
			military = excluded.military,
			not_found = 0,
			fetched_at = excluded.fetched_at`,
		rec.ICAO24, rec.Registration, rec.ICAOType, rec.AircraftType,
		rec.Operator, rec.Military, rec.FetchedAt)
	if err != nil {
		return fmt.Errorf("failed to store metadata for %s: %w", rec.ICAO24, err)
	}
	return nil
}

// PutNegative records that the backend does not know this address, so
// repeat lookups can be suppressed until the entry expires.
func (s *MetadataStorage) PutNegative(icao24 string) error {
	_, err := s.db.Exec(`
		INSERT INTO aircraft_metadata (icao24, not_found, fetched_at)
		VALUES (?, 1, ?)
		ON CONFLICT(icao24) DO UPDATE SET
			not_found = 1,
			fetched_at = excluded.fetched_at`,
		icao24, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to store negative entry for %s: %w", icao24, err)
	}
	return nil
}

// PruneOlderThan deletes entries fetched before the cutoff and returns
// how many were removed.
func (s *MetadataStorage) PruneOlderThan(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM aircraft_metadata WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune metadata cache: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned rows: %w", err)
	}
	if removed > 0 {
		s.logger.Info("Pruned expired metadata entries", logger.Int64("removed", removed))
	}
	return removed, nil
}
