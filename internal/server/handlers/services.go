// Package handlers implements the HTTP handlers of the record store API.
//
// Handlers have the signature func(context.Context, *Req) (*Resp, error) and
// are adapted to http.Handler by server.Wrap. Errors returned are either
// dto.APIError values or storage errors mapped by storeError.
package handlers

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/maruel/solardb/internal/config"
	"github.com/maruel/solardb/internal/history"
	"github.com/maruel/solardb/internal/jsonldb"
	"github.com/maruel/solardb/internal/records"
	"github.com/maruel/solardb/internal/server/reqctx"
)

// Services holds the dependencies shared by handlers.
type Services struct {
	Store *jsonldb.Store
	// History is nil when change tracking is disabled.
	History *history.Repo
	Config  *config.ServerConfig
	Version string
}

// mutate runs fn, which returns the tables it touched, and commits their
// files. The commit happens even when fn fails part way, since bulk
// operations leave their partial changes on disk.
func (s *Services) mutate(ctx context.Context, msg string, fn func() ([]string, error)) error {
	if s.History == nil {
		_, err := fn()
		return err
	}
	var opErr error
	author := history.Author{Name: reqctx.Subject(ctx)}
	err := s.History.CommitTx(ctx, author, func() (string, []string, error) {
		tables, err := fn()
		opErr = err
		return msg, s.files(tables), nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to commit changes", "err", err)
	}
	return opErr
}

// files returns the table files relative to the history repository.
func (s *Services) files(tables []string) []string {
	var out []string
	for _, name := range tables {
		p := s.Store.Path(name)
		if p == "" {
			continue
		}
		rel, err := filepath.Rel(s.History.Dir(), p)
		if err != nil {
			continue
		}
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func (s *Services) rates() records.Rates {
	if s.Config == nil {
		return records.DefaultRates()
	}
	return s.Config.Rates
}

func (s *Services) isHoliday(date string) bool {
	return s.Config != nil && slices.Contains(s.Config.Holidays, date)
}

func (s *Services) maxBulkEntries() int {
	if s.Config == nil {
		return 0
	}
	return s.Config.Quotas.MaxBulkEntries
}

// fillTOU sets the tou_period of an activity record from its date and
// start_time when the caller left it blank.
func (s *Services) fillTOU(table string, rec jsonldb.Record) {
	if table != records.TableActivities {
		return
	}
	if v, ok := rec["tou_period"]; ok && v != nil && v != "" {
		return
	}
	date, _ := rec["date"].(string)
	clock, _ := rec["start_time"].(string)
	if date == "" || clock == "" {
		return
	}
	p, err := records.ClassifyClock(date, clock, s.isHoliday(date))
	if err != nil {
		return
	}
	rec["tou_period"] = string(p)
}
