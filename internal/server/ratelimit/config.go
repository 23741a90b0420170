// Defines rate limit tiers and routing rules.

package ratelimit

import (
	"net/http"
	"time"
)

// Tier is a named limiter.
type Tier struct {
	Name    string
	Limiter *Limiter
}

// Config holds the read and write tiers. A nil tier is unlimited.
type Config struct {
	Read  *Tier
	Write *Tier
}

// NewConfig creates tiers from per-minute limits. A zero limit disables the
// tier. The burst is a sixth of the per-minute rate, at least one.
func NewConfig(readPerMin, writePerMin int) *Config {
	return &Config{
		Read:  newTier("read", readPerMin),
		Write: newTier("write", writePerMin),
	}
}

func newTier(name string, perMin int) *Tier {
	if perMin <= 0 {
		return nil
	}
	return &Tier{Name: name, Limiter: NewLimiter(perMin, time.Minute, max(perMin/6, 1))}
}

// Match returns the tier for a request, or nil when it is not limited.
func (c *Config) Match(method, path string) *Tier {
	if c == nil || path == "/api/health" {
		return nil
	}
	switch method {
	case http.MethodGet, http.MethodHead:
		return c.Read
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return c.Write
	default:
		return nil
	}
}

// Close stops all limiter cleanup goroutines.
func (c *Config) Close() {
	if c == nil {
		return
	}
	for _, t := range []*Tier{c.Read, c.Write} {
		if t != nil {
			t.Limiter.Close()
		}
	}
}
