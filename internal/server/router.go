package server

import (
	"net/http"

	"github.com/maruel/solardb/internal/server/handlers"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(svc *handlers.Services, cfg *Config) http.Handler {
	mux := &http.ServeMux{}
	dh := &handlers.DataHandler{Svc: svc}
	th := &handlers.TableHandler{Svc: svc}
	sh := &handlers.SummaryHandler{Svc: svc}
	hsh := &handlers.HistoryHandler{Svc: svc}
	hh := &handlers.HealthHandler{Svc: svc}

	mux.Handle("/api/health", Wrap(hh.Health, cfg))

	mux.Handle("GET /api/v1/data", Wrap(dh.ReadAll, cfg))
	mux.Handle("POST /api/v1/data", Wrap(dh.Write, cfg))

	mux.Handle("GET /api/v1/tables", Wrap(th.ListTables, cfg))
	mux.Handle("GET /api/v1/tables/{table}", Wrap(th.GetTable, cfg))

	mux.Handle("GET /api/v1/summary", Wrap(sh.Summary, cfg))
	mux.Handle("GET /api/v1/history", Wrap(hsh.History, cfg))

	return logRequests(mux)
}
