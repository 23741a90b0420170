package handlers

import (
	"context"

	"github.com/maruel/solardb/internal/server/dto"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	Svc *Services
}

// Health reports that the server is up.
func (h *HealthHandler) Health(_ context.Context, _ *dto.HealthRequest) (*dto.HealthResponse, error) {
	return &dto.HealthResponse{Status: "ok", Version: h.Svc.Version, Tables: len(h.Svc.Store.Tables())}, nil
}
