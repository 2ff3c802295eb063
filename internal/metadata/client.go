// Package metadata looks up aircraft and flight details from the
// enrichment backend, with rate limiting and a persistent cache in front
// of it. A 404 from the backend is a legitimate "not known" answer, not
// an error, and is cached so the lookup is not repeated.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mikemorandi/flightradar/internal/storage/sqlite"
	"github.com/mikemorandi/flightradar/pkg/logger"
)

// ErrNotFound marks a lookup the backend answered with 404.
var ErrNotFound = errors.New("metadata: not found")

// FlightInfo is the backend's answer for a live flight id.
type FlightInfo struct {
	ID       string `json:"id"`
	ICAO24   string `json:"icao24"`
	Callsign string `json:"callsign,omitempty"`
}

// Aircraft is the backend's static record for an airframe.
type Aircraft struct {
	ICAO24       string `json:"icao24"`
	Registration string `json:"registration,omitempty"`
	ICAOType     string `json:"icao_type,omitempty"`
	AircraftType string `json:"aircraft_type,omitempty"`
	Operator     string `json:"operator,omitempty"`
	Military     bool   `json:"military,omitempty"`
}

// TrackPoint is one sample of a historical flight path.
type TrackPoint struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Altitude  *float64  `json:"alt,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Config holds the client settings.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	CacheExpiry       time.Duration
}

// Client talks to the enrichment backend.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	cache       *sqlite.MetadataStorage
	cacheExpiry time.Duration
	logger      *logger.Logger
}

// NewClient creates a metadata client. cache may be nil, in which case
// every aircraft lookup goes to the backend.
func NewClient(cfg Config, cache *sqlite.MetadataStorage, log *logger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 4
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		limiter:     rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cache:       cache,
		cacheExpiry: cfg.CacheExpiry,
		logger:      log.Named("metadata"),
	}
}

// FetchFlight fetches the flight record for a live flight id. Returns
// ErrNotFound when the backend does not know the id.
func (c *Client) FetchFlight(ctx context.Context, id string) (*FlightInfo, error) {
	var info FlightInfo
	err := c.getJSON(ctx, fmt.Sprintf("%s/flights/%s", c.baseURL, id), &info)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// FetchAircraft fetches static metadata for an ICAO24 address. A cached
// answer, positive or negative, short-circuits the backend. A negative
// answer is (nil, nil): the airframe is legitimately unknown.
func (c *Client) FetchAircraft(ctx context.Context, icao24 string) (*Aircraft, error) {
	if rec, err := c.cached(icao24); err != nil {
		return nil, err
	} else if rec != nil {
		if rec.NotFound {
			return nil, nil
		}
		return &Aircraft{
			ICAO24:       rec.ICAO24,
			Registration: rec.Registration,
			ICAOType:     rec.ICAOType,
			AircraftType: rec.AircraftType,
			Operator:     rec.Operator,
			Military:     rec.Military,
		}, nil
	}

	var ac Aircraft
	err := c.getJSON(ctx, fmt.Sprintf("%s/aircraft/%s", c.baseURL, icao24), &ac)
	if errors.Is(err, ErrNotFound) {
		if c.cache != nil {
			if cerr := c.cache.PutNegative(icao24); cerr != nil {
				c.logger.Warn("Failed to cache negative lookup",
					logger.String("icao24", icao24), logger.Error(cerr))
			}
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if ac.ICAO24 == "" {
		ac.ICAO24 = icao24
	}
	if c.cache != nil {
		if cerr := c.cache.Put(sqlite.MetadataRecord{
			ICAO24:       ac.ICAO24,
			Registration: ac.Registration,
			ICAOType:     ac.ICAOType,
			AircraftType: ac.AircraftType,
			Operator:     ac.Operator,
			Military:     ac.Military,
		}); cerr != nil {
			c.logger.Warn("Failed to cache metadata",
				logger.String("icao24", icao24), logger.Error(cerr))
		}
	}
	return &ac, nil
}

// FetchTrack fetches the historical path for a flight id. Returns
// ErrNotFound when the backend does not know the id.
func (c *Client) FetchTrack(ctx context.Context, id string) ([]TrackPoint, error) {
	var points []TrackPoint
	err := c.getJSON(ctx, fmt.Sprintf("%s/flights/%s/track", c.baseURL, id), &points)
	if err != nil {
		return nil, err
	}
	return points, nil
}

// cached returns the cache entry for an address if it is fresh enough.
func (c *Client) cached(icao24 string) (*sqlite.MetadataRecord, error) {
	if c.cache == nil {
		return nil, nil
	}
	rec, err := c.cache.Get(icao24)
	if err != nil {
		return nil, fmt.Errorf("metadata cache lookup failed: %w", err)
	}
	if rec == nil {
		return nil, nil
	}
	if c.cacheExpiry > 0 && time.Since(rec.FetchedAt) > c.cacheExpiry {
		return nil, nil
	}
	return rec, nil
}

// getJSON performs one rate-limited GET and decodes the body. 404 maps
// to ErrNotFound; every other non-2xx status is an error the caller
// decides how to retry.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("request to %s returned status %d", url, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}
