package handlers

import (
	"context"
	"errors"

	"github.com/maruel/solardb/internal/jsonldb"
	"github.com/maruel/solardb/internal/records"
	"github.com/maruel/solardb/internal/server/dto"
)

// SummaryHandler serves the usage and cost summary.
type SummaryHandler struct {
	Svc *Services
}

// Summary aggregates the usage and production tables over the requested range.
func (h *SummaryHandler) Summary(_ context.Context, req *dto.SummaryRequest) (*records.Summary, error) {
	usage, err := h.rows(records.TableUsage)
	if err != nil {
		return nil, err
	}
	production, err := h.rows(records.TableProduction)
	if err != nil {
		return nil, err
	}
	rates := h.Svc.rates()
	return records.Summarize(usage, production, &rates, req.From, req.To), nil
}

// rows returns the rows of a table, or none when the layout dropped it.
func (h *SummaryHandler) rows(table string) ([]jsonldb.Row, error) {
	rows, err := h.Svc.Store.ReadAll(table)
	if errors.Is(err, jsonldb.ErrTableNotFound) {
		return nil, nil
	}
	return rows, storeError(err)
}
