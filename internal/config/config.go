package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server   ServerConfig   `toml:"server"`   // HTTP server settings
	Feed     FeedConfig     `toml:"feed"`     // Upstream live feed settings
	Map      MapConfig      `toml:"map"`      // View, interpolation and history settings
	Metadata MetadataConfig `toml:"metadata"` // Aircraft metadata lookup settings
	Storage  StorageConfig  `toml:"storage"`  // Data persistence settings
	Logging  LoggingConfig  `toml:"logging"`  // Application logging settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port             int    `toml:"port"`                  // Primary HTTP port for the server
	Host             string `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only)
	ReadTimeoutSecs  int    `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request
	WriteTimeoutSecs int    `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout, needed for streaming)
	IdleTimeoutSecs  int    `toml:"idle_timeout_seconds"`  // Keep-alive idle timeout
	AdditionalPorts  []int  `toml:"additional_ports"`      // Additional HTTP ports to listen on
}

// FeedConfig contains the upstream live feed configuration
type FeedConfig struct {
	URL                  string `toml:"url"`                       // WebSocket URL of the global live feed (positions + callsigns + categories + heartbeat)
	FlightURLTemplate    string `toml:"flight_url_template"`       // URL template for per-flight path feeds, %s replaced by flight id
	HandshakeTimeoutSecs int    `toml:"handshake_timeout_seconds"` // WebSocket dial handshake timeout
	ReconnectInitialMs   int    `toml:"reconnect_initial_ms"`      // Initial reconnect backoff delay
	ReconnectMaxMs       int    `toml:"reconnect_max_ms"`          // Reconnect backoff cap
	HousekeepingMs       int    `toml:"housekeeping_interval_ms"`  // How often the housekeeping pass runs
	LastSeenWindowMs     int    `toml:"last_seen_window_ms"`       // Retention window of the housekeeping last-seen ledger
}

// MapConfig contains renderable-view, interpolation and history settings
type MapConfig struct {
	StaleThresholdMs   int     `toml:"stale_threshold_ms"`   // Silence after which an aircraft is hidden from the view and eligible for purge
	FrameIntervalMs    int     `toml:"frame_interval_ms"`    // Interpolator frame cadence (40 ms = 25 fps)
	MaxExtrapolationMs int     `toml:"max_extrapolation_ms"` // Cap on dead-reckoning past the last sample
	ConvergeFactor     float64 `toml:"converge_factor"`      // Per-frame fraction moved toward the projected target (0..1]
	HistoryLimit       int     `toml:"history_limit"`        // Max retained positions per subscribed flight
	IconTemplateCache  int     `toml:"icon_template_cache"`  // Max compiled icon templates kept in memory
}

// MetadataConfig contains aircraft metadata lookup settings
type MetadataConfig struct {
	BaseURL           string  `toml:"base_url"`            // Base URL of the metadata/enrichment backend
	TimeoutSecs       int     `toml:"timeout_seconds"`     // Per-request timeout
	RequestsPerSecond float64 `toml:"requests_per_second"` // Lookup rate limit against the backend
	Burst             int     `toml:"burst"`               // Rate limiter burst size
	CacheExpiryDays   int     `toml:"cache_expiry_days"`   // Age after which cached metadata (including negative entries) is refetched
}

// CacheExpiry returns the metadata cache expiry as a duration
func (m MetadataConfig) CacheExpiry() time.Duration {
	return time.Duration(m.CacheExpiryDays) * 24 * time.Hour
}

// StorageConfig contains data persistence configuration
type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path"` // Path to the metadata cache database file
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// Default returns a configuration with sensible defaults applied
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             8080,
			Host:             "127.0.0.1",
			ReadTimeoutSecs:  30,
			WriteTimeoutSecs: 0,
			IdleTimeoutSecs:  60,
		},
		Feed: FeedConfig{
			HandshakeTimeoutSecs: 10,
			ReconnectInitialMs:   1000,
			ReconnectMaxMs:       60000,
			HousekeepingMs:       5000,
			LastSeenWindowMs:     30000,
		},
		Map: MapConfig{
			StaleThresholdMs:   15000,
			FrameIntervalMs:    40,
			MaxExtrapolationMs: 10000,
			ConvergeFactor:     0.25,
			HistoryLimit:       1000,
			IconTemplateCache:  64,
		},
		Metadata: MetadataConfig{
			TimeoutSecs:       5,
			RequestsPerSecond: 2,
			Burst:             4,
			CacheExpiryDays:   120,
		},
		Storage: StorageConfig{
			SQLitePath: "data/flightradar.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from the given TOML file, on top of defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}

	return cfg, nil
}

// LoadWithFallback loads the preferred path if given, otherwise searches
// the conventional locations. Defaults alone are not enough (the feed URL
// has no default), so a missing file is an error unless one is found.
func LoadWithFallback(preferredPath string) (*Config, error) {
	if preferredPath != "" {
		return Load(preferredPath)
	}

	for _, candidate := range []string{"configs/flightradar.toml", "flightradar.toml"} {
		if _, err := os.Stat(candidate); err == nil {
			return Load(candidate)
		}
	}

	return nil, fmt.Errorf("no configuration file found (searched configs/flightradar.toml, flightradar.toml)")
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	for _, p := range c.Server.AdditionalPorts {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("additional port must be between 1 and 65535, got %d", p)
		}
	}

	if err := c.ValidateFeed(); err != nil {
		return err
	}
	if err := c.ValidateMap(); err != nil {
		return err
	}
	if err := c.ValidateMetadata(); err != nil {
		return err
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// ValidateFeed validates the feed section
func (c *Config) ValidateFeed() error {
	if c.Feed.URL == "" {
		return fmt.Errorf("feed url must be set")
	}
	if c.Feed.ReconnectInitialMs <= 0 {
		return fmt.Errorf("feed reconnect_initial_ms must be positive, got %d", c.Feed.ReconnectInitialMs)
	}
	if c.Feed.ReconnectMaxMs < c.Feed.ReconnectInitialMs {
		return fmt.Errorf("feed reconnect_max_ms (%d) must not be below reconnect_initial_ms (%d)",
			c.Feed.ReconnectMaxMs, c.Feed.ReconnectInitialMs)
	}
	if c.Feed.HousekeepingMs <= 0 {
		return fmt.Errorf("feed housekeeping_interval_ms must be positive, got %d", c.Feed.HousekeepingMs)
	}
	// The ledger window exceeding the view stale threshold is what guarantees
	// an aircraft leaves the view before the ledger forgets about it.
	if c.Feed.LastSeenWindowMs < c.Map.StaleThresholdMs {
		return fmt.Errorf("feed last_seen_window_ms (%d) must not be below map stale_threshold_ms (%d)",
			c.Feed.LastSeenWindowMs, c.Map.StaleThresholdMs)
	}
	return nil
}

// ValidateMap validates the map section
func (c *Config) ValidateMap() error {
	if c.Map.StaleThresholdMs <= 0 {
		return fmt.Errorf("map stale_threshold_ms must be positive, got %d", c.Map.StaleThresholdMs)
	}
	if c.Map.FrameIntervalMs <= 0 {
		return fmt.Errorf("map frame_interval_ms must be positive, got %d", c.Map.FrameIntervalMs)
	}
	if c.Map.ConvergeFactor <= 0 || c.Map.ConvergeFactor > 1 {
		return fmt.Errorf("map converge_factor must be in (0, 1], got %f", c.Map.ConvergeFactor)
	}
	if c.Map.HistoryLimit <= 0 {
		return fmt.Errorf("map history_limit must be positive, got %d", c.Map.HistoryLimit)
	}
	if c.Map.IconTemplateCache <= 0 {
		return fmt.Errorf("map icon_template_cache must be positive, got %d", c.Map.IconTemplateCache)
	}
	return nil
}

// ValidateMetadata validates the metadata section
func (c *Config) ValidateMetadata() error {
	if c.Metadata.BaseURL == "" {
		return fmt.Errorf("metadata base_url must be set")
	}
	if c.Metadata.RequestsPerSecond <= 0 {
		return fmt.Errorf("metadata requests_per_second must be positive, got %f", c.Metadata.RequestsPerSecond)
	}
	if c.Metadata.Burst <= 0 {
		return fmt.Errorf("metadata burst must be positive, got %d", c.Metadata.Burst)
	}
	return nil
}
