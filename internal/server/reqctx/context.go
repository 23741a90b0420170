// Package reqctx provides request context utilities for passing request metadata.
package reqctx

import (
	"context"
	"net/http"
	"strings"

	"github.com/maruel/ksid"
)

// GetClientIP extracts the client IP from an HTTP request,
// checking X-Forwarded-For and X-Real-IP headers for proxied requests.
func GetClientIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs: "client, proxy1, proxy2".
	// The leftmost IP is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	addr := r.RemoteAddr
	// IPv6 addresses look like [::1]:8080.
	if strings.HasPrefix(addr, "[") {
		if host, _, found := strings.Cut(addr, "]:"); found {
			return host[1:]
		}
		return strings.Trim(addr, "[]")
	}
	if host, _, found := strings.Cut(addr, ":"); found {
		return host
	}
	return addr
}

type contextKey string

const (
	keyClientIP  contextKey = "clientIP"
	keyRequestID contextKey = "requestID"
	keySubject   contextKey = "subject"
)

// WithClientIP adds the client IP to the context.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, keyClientIP, ip)
}

// ClientIP extracts the client IP from the context.
func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(keyClientIP).(string); ok {
		return v
	}
	return ""
}

// WithRequestID adds the request ID to the context.
func WithRequestID(ctx context.Context, id ksid.ID) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

// RequestID extracts the request ID from the context.
func RequestID(ctx context.Context) ksid.ID {
	if v, ok := ctx.Value(keyRequestID).(ksid.ID); ok {
		return v
	}
	return 0
}

// WithSubject adds the authenticated token subject to the context.
func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, keySubject, sub)
}

// Subject extracts the authenticated token subject from the context.
func Subject(ctx context.Context) string {
	if v, ok := ctx.Value(keySubject).(string); ok {
		return v
	}
	return ""
}
