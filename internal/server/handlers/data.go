// Serves the whole-store read and the write action dispatch.

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/maruel/solardb/internal/jsonldb"
	"github.com/maruel/solardb/internal/records"
	"github.com/maruel/solardb/internal/server/dto"
)

// ErrUnknownAction is wrapped by the error returned for an unrecognized
// write action.
var ErrUnknownAction = errors.New("unknown action")

// Write actions.
const (
	ActionSaveRecord   = "saveRecord"
	ActionAddRecord    = "addRecord"
	ActionSaveBulk     = "saveBulk"
	ActionDeleteByDate = "deleteByDate"
	ActionSyncAll      = "syncAll"
)

// legacyActions are the table-specific action names of the first clients,
// mapped to the generic action and the table they are bound to.
var legacyActions = map[string]struct{ action, table string }{
	"saveSunrun":     {ActionSaveRecord, records.TableProduction},
	"saveSDGE":       {ActionSaveRecord, records.TableUsage},
	"saveActivity":   {ActionAddRecord, records.TableActivities},
	"saveBulkSunrun": {ActionSaveBulk, records.TableProduction},
	"saveBulkSDGE":   {ActionSaveBulk, records.TableUsage},
}

// DataHandler serves the whole-store endpoints.
type DataHandler struct {
	Svc *Services
}

// ReadAll returns the rows of every table, keyed by table name.
func (h *DataHandler) ReadAll(_ context.Context, _ *dto.ReadAllRequest) (*dto.DataResponse, error) {
	out := make(dto.DataResponse)
	for _, name := range h.Svc.Store.Tables() {
		rows, err := h.Svc.Store.ReadAll(name)
		if err != nil {
			return nil, storeError(err)
		}
		if rows == nil {
			rows = []jsonldb.Row{}
		}
		out[name] = rows
	}
	return &out, nil
}

// Write dispatches a write action.
func (h *DataHandler) Write(ctx context.Context, req *dto.WriteRequest) (*dto.WriteResponse, error) {
	action, table := req.Action, req.Table
	if l, ok := legacyActions[action]; ok {
		action, table = l.action, l.table
	}
	var resp *dto.WriteResponse
	var err error
	switch action {
	case ActionSaveRecord:
		resp, err = h.saveRecord(ctx, table, req.Entry)
	case ActionAddRecord:
		resp, err = h.addRecord(ctx, table, req.Entry)
	case ActionSaveBulk:
		resp, err = h.saveBulk(ctx, table, req.Entries)
	case ActionDeleteByDate:
		resp, err = h.deleteByDate(ctx, req.Date)
	case ActionSyncAll:
		resp, err = h.syncAll(ctx, req.Data)
	default:
		return nil, dto.UnknownAction(req.Action).Wrap(ErrUnknownAction)
	}
	if err != nil {
		return nil, storeError(err)
	}
	return resp, nil
}

func (h *DataHandler) decodeEntry(table string, raw json.RawMessage) (jsonldb.Record, error) {
	if table == "" {
		return nil, dto.MissingField("table")
	}
	if len(raw) == 0 {
		return nil, dto.MissingField("entry")
	}
	rec, err := jsonldb.DecodeRecord(raw)
	if err != nil {
		return nil, err
	}
	h.Svc.fillTOU(table, rec)
	return rec, nil
}

func (h *DataHandler) saveRecord(ctx context.Context, table string, raw json.RawMessage) (*dto.WriteResponse, error) {
	rec, err := h.decodeEntry(table, raw)
	if err != nil {
		return nil, err
	}
	err = h.Svc.mutate(ctx, describe(ActionSaveRecord, table, rec), func() ([]string, error) {
		return []string{table}, h.Svc.Store.Upsert(table, rec, "")
	})
	if err != nil {
		return nil, err
	}
	return &dto.WriteResponse{Applied: 1}, nil
}

func (h *DataHandler) addRecord(ctx context.Context, table string, raw json.RawMessage) (*dto.WriteResponse, error) {
	rec, err := h.decodeEntry(table, raw)
	if err != nil {
		return nil, err
	}
	err = h.Svc.mutate(ctx, describe(ActionAddRecord, table, rec), func() ([]string, error) {
		return []string{table}, h.Svc.Store.Append(table, rec)
	})
	if err != nil {
		return nil, err
	}
	return &dto.WriteResponse{Applied: 1}, nil
}

func (h *DataHandler) saveBulk(ctx context.Context, table string, raw json.RawMessage) (*dto.WriteResponse, error) {
	if table == "" {
		return nil, dto.MissingField("table")
	}
	if len(raw) == 0 {
		return nil, dto.MissingField("entries")
	}
	recs, err := jsonldb.DecodeRecords(raw)
	if err != nil {
		return nil, err
	}
	if err := h.checkBulk(len(recs)); err != nil {
		return nil, err
	}
	for _, rec := range recs {
		h.Svc.fillTOU(table, rec)
	}
	applied := 0
	msg := fmt.Sprintf("%s %s: %d entries", ActionSaveBulk, table, len(recs))
	err = h.Svc.mutate(ctx, msg, func() ([]string, error) {
		var err error
		applied, err = h.Svc.Store.BulkUpsert(table, recs, "")
		return []string{table}, err
	})
	if err != nil {
		var apiErr *dto.APIError
		if errors.As(storeError(err), &apiErr) {
			return nil, apiErr.WithDetail("applied", applied)
		}
		return nil, err
	}
	return &dto.WriteResponse{Applied: applied}, nil
}

func (h *DataHandler) deleteByDate(ctx context.Context, date string) (*dto.WriteResponse, error) {
	if date == "" {
		return nil, dto.MissingField("date")
	}
	var removed map[string]int
	err := h.Svc.mutate(ctx, fmt.Sprintf("%s %s", ActionDeleteByDate, date), func() ([]string, error) {
		var err error
		removed, err = h.Svc.Store.DeleteEverywhere("date", jsonldb.Text(date))
		var touched []string
		for name, n := range removed {
			if n > 0 {
				touched = append(touched, name)
			}
		}
		slices.Sort(touched)
		return touched, err
	})
	if err != nil {
		return nil, err
	}
	return &dto.WriteResponse{Removed: removed}, nil
}

func (h *DataHandler) syncAll(ctx context.Context, data map[string]json.RawMessage) (*dto.WriteResponse, error) {
	if data == nil {
		return nil, dto.MissingField("data")
	}
	// Validate every table and record before touching anything.
	decoded := make(map[string][]jsonldb.Record, len(data))
	for _, name := range slices.Sorted(maps.Keys(data)) {
		raw := data[name]
		if _, err := h.Svc.Store.Table(name); err != nil {
			return nil, dto.TableNotFound(name)
		}
		recs, err := jsonldb.DecodeRecords(raw)
		if err != nil {
			return nil, dto.InvalidRecord(err).WithDetail("table", name)
		}
		if err := h.checkBulk(len(recs)); err != nil {
			return nil, err
		}
		for _, rec := range recs {
			h.Svc.fillTOU(name, rec)
		}
		decoded[name] = recs
	}
	var replaced []string
	err := h.Svc.mutate(ctx, ActionSyncAll, func() ([]string, error) {
		for _, name := range h.Svc.Store.Tables() {
			recs, ok := decoded[name]
			if !ok {
				continue
			}
			done, err := h.Svc.Store.ReplaceAll(name, recs)
			if err != nil {
				return replaced, fmt.Errorf("table %q: %w", name, err)
			}
			if done {
				replaced = append(replaced, name)
			}
		}
		return replaced, nil
	})
	if err != nil {
		return nil, err
	}
	return &dto.WriteResponse{Replaced: replaced}, nil
}

func (h *DataHandler) checkBulk(n int) error {
	if limit := h.Svc.maxBulkEntries(); limit > 0 && n > limit {
		return dto.BadRequest(fmt.Sprintf("too many entries: %d > %d", n, limit)).WithDetail("limit", limit)
	}
	return nil
}

// describe builds the commit message of a single record write.
func describe(action, table string, rec jsonldb.Record) string {
	if d, ok := rec["date"].(string); ok && d != "" {
		return fmt.Sprintf("%s %s %s", action, table, d)
	}
	return action + " " + table
}
