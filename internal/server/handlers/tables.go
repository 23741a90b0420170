// Serves table listings and single-table reads.

package handlers

import (
	"context"

	"github.com/maruel/solardb/internal/jsonldb"
	"github.com/maruel/solardb/internal/server/dto"
)

// TableHandler serves per-table endpoints.
type TableHandler struct {
	Svc *Services
}

// ListTables returns every table with its schema and row count.
func (h *TableHandler) ListTables(_ context.Context, _ *dto.ListTablesRequest) (*dto.ListTablesResponse, error) {
	out := &dto.ListTablesResponse{Tables: []dto.TableInfo{}}
	for _, name := range h.Svc.Store.Tables() {
		t, err := h.Svc.Store.Table(name)
		if err != nil {
			return nil, storeError(err)
		}
		out.Tables = append(out.Tables, tableInfo(t))
	}
	return out, nil
}

// GetTable returns the rows of one table.
func (h *TableHandler) GetTable(_ context.Context, req *dto.GetTableRequest) (*dto.TableResponse, error) {
	t, err := h.Svc.Store.Table(req.Table)
	if err != nil {
		return nil, dto.TableNotFound(req.Table)
	}
	rows := t.ReadAll()
	if rows == nil {
		rows = []jsonldb.Row{}
	}
	return &dto.TableResponse{TableInfo: tableInfo(t), Data: rows}, nil
}

func tableInfo(t *jsonldb.Table) dto.TableInfo {
	s := t.Schema()
	return dto.TableInfo{Name: t.Name(), Key: s.Key, Columns: s.Columns, Rows: t.Len()}
}
