// Package config manages the server configuration stored in
// server_config.json at the root of the data directory.
package config

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/maruel/solardb/internal/records"
)

// FileName is the name of the configuration file within the data directory.
const FileName = "server_config.json"

// ServerConfig stores all server-wide configuration.
// Loaded from server_config.json, created with defaults if missing.
type ServerConfig struct {
	// JWTSecret is the secret used to sign API tokens.
	// Auto-generated if empty on first load.
	JWTSecret []byte `json:"jwt_secret"`

	// Quotas defines server-wide resource limits.
	Quotas Quotas `json:"quotas"`

	// RateLimits defines rate limiting configuration.
	RateLimits RateLimits `json:"rate_limits"`

	// Rates is the tariff used by the summary endpoint.
	Rates records.Rates `json:"rates"`

	// Holidays lists YYYY-MM-DD days billed at weekend rates.
	Holidays []string `json:"holidays,omitempty"`
}

// Quotas defines server-wide resource limits.
type Quotas struct {
	// MaxRequestBodyBytes limits the size of any single HTTP request body.
	MaxRequestBodyBytes int64 `json:"max_request_body_bytes"`

	// MaxBulkEntries limits the number of entries of a saveBulk or syncAll
	// request. 0 means unlimited.
	MaxBulkEntries int `json:"max_bulk_entries"`
}

// Validate checks that quota values are sane.
func (q *Quotas) Validate() error {
	if q.MaxRequestBodyBytes <= 0 {
		return errors.New("max_request_body_bytes must be positive")
	}
	if q.MaxBulkEntries < 0 {
		return errors.New("max_bulk_entries must be non-negative")
	}
	return nil
}

// DefaultQuotas returns the default quotas.
func DefaultQuotas() Quotas {
	return Quotas{
		MaxRequestBodyBytes: 10 * 1024 * 1024, // 10 MiB
		MaxBulkEntries:      100000,
	}
}

// RateLimits defines rate limiting configuration (requests per minute).
type RateLimits struct {
	// WriteRatePerMin limits POST requests. 0 means unlimited.
	WriteRatePerMin int `json:"write_rate_per_min"`

	// ReadRatePerMin limits GET requests. 0 means unlimited.
	ReadRatePerMin int `json:"read_rate_per_min"`
}

// Validate checks that rate limit values are non-negative.
func (r *RateLimits) Validate() error {
	if r.WriteRatePerMin < 0 {
		return errors.New("write_rate_per_min must be non-negative")
	}
	if r.ReadRatePerMin < 0 {
		return errors.New("read_rate_per_min must be non-negative")
	}
	return nil
}

// DefaultRateLimits returns the default rate limits.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		WriteRatePerMin: 600,  // 600 req/min for writes
		ReadRatePerMin:  6000, // 6k req/min for reads
	}
}

// Validate checks that the configuration is valid.
func (c *ServerConfig) Validate() error {
	if len(c.JWTSecret) == 0 {
		return errors.New("jwt_secret is required")
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("jwt_secret must be at least 32 bytes")
	}
	return c.validateSettings()
}

// validateSettings checks everything but the JWT secret.
func (c *ServerConfig) validateSettings() error {
	if err := c.Quotas.Validate(); err != nil {
		return fmt.Errorf("quotas: %w", err)
	}
	if err := c.RateLimits.Validate(); err != nil {
		return fmt.Errorf("rate_limits: %w", err)
	}
	if err := c.Rates.Validate(); err != nil {
		return fmt.Errorf("rates: %w", err)
	}
	for _, h := range c.Holidays {
		if _, err := time.Parse("2006-01-02", h); err != nil {
			return fmt.Errorf("holidays: invalid date %q", h)
		}
	}
	return nil
}

// Read reads dataDir/server_config.json without creating or modifying it.
// A missing file gives the defaults. The JWT secret is not checked, so Read
// suits tools that only need the quotas, rates or holidays.
func Read(dataDir string) (*ServerConfig, error) {
	cfg, _, err := read(dataDir)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateSettings(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", FileName, err)
	}
	return cfg, nil
}

// Load loads configuration from dataDir/server_config.json.
// Creates the file with defaults if it doesn't exist.
// Auto-generates JWTSecret if empty.
func Load(dataDir string) (*ServerConfig, error) {
	cfg, exists, err := read(dataDir)
	if err != nil {
		return nil, err
	}
	modified := !exists
	if len(cfg.JWTSecret) == 0 {
		cfg.JWTSecret = make([]byte, 32)
		if _, err := rand.Read(cfg.JWTSecret); err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		modified = true
	}
	if modified {
		if err := cfg.Save(dataDir); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", FileName, err)
	}
	return cfg, nil
}

// read returns the defaults overlaid with the file, and whether it exists.
func read(dataDir string) (*ServerConfig, bool, error) {
	cfg := &ServerConfig{Quotas: DefaultQuotas(), RateLimits: DefaultRateLimits(), Rates: records.DefaultRates()}
	data, err := os.ReadFile(filepath.Join(dataDir, FileName)) //nolint:gosec // G304: path is constructed from dataDir, not user input
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, false, nil
		}
		return nil, false, fmt.Errorf("failed to read %s: %w", FileName, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, false, fmt.Errorf("failed to parse %s: %w", FileName, err)
	}
	return cfg, true, nil
}

// Save saves configuration to dataDir/server_config.json.
func (c *ServerConfig) Save(dataDir string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')
	if err := os.MkdirAll(dataDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, FileName), data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", FileName, err)
	}
	return nil
}
