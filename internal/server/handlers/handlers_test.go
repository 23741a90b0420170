package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"slices"
	"testing"

	"github.com/maruel/solardb/internal/config"
	"github.com/maruel/solardb/internal/history"
	"github.com/maruel/solardb/internal/jsonldb"
	"github.com/maruel/solardb/internal/records"
	"github.com/maruel/solardb/internal/server/dto"
)

func newServices(t *testing.T, withHistory bool) *Services {
	t.Helper()
	dir := t.TempDir()
	store := jsonldb.Open(filepath.Join(dir, "db"))
	if err := records.DefaultLayout().Ensure(store); err != nil {
		t.Fatal(err)
	}
	svc := &Services{
		Store:   store,
		Config:  &config.ServerConfig{Quotas: config.Quotas{MaxBulkEntries: 3}, Rates: records.DefaultRates(), Holidays: []string{"2026-01-01"}},
		Version: "test",
	}
	if withHistory {
		repo, err := history.Open(dir, "solardb", "solardb@localhost")
		if err != nil {
			t.Fatal(err)
		}
		svc.History = repo
	}
	return svc
}

func write(t *testing.T, h *DataHandler, body string) (*dto.WriteResponse, error) {
	t.Helper()
	var req dto.WriteRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatal(err)
	}
	return h.Write(t.Context(), &req)
}

func mustWrite(t *testing.T, h *DataHandler, body string) *dto.WriteResponse {
	t.Helper()
	resp, err := write(t, h, body)
	if err != nil {
		t.Fatalf("%s: %v", body, err)
	}
	return resp
}

func rows(t *testing.T, svc *Services, table string) []jsonldb.Row {
	t.Helper()
	r, err := svc.Store.ReadAll(table)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func wantAPIError(t *testing.T, err error, status int, code dto.ErrorCode) *dto.APIError {
	t.Helper()
	var apiErr *dto.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want an APIError", err)
	}
	if apiErr.StatusCode() != status || apiErr.Code() != code {
		t.Fatalf("error = %d %s (%v), want %d %s", apiErr.StatusCode(), apiErr.Code(), err, status, code)
	}
	return apiErr
}

func TestReadAll(t *testing.T) {
	svc := newServices(t, false)
	h := &DataHandler{Svc: svc}
	mustWrite(t, h, `{"action":"saveRecord","table":"sunrun","entry":{"date":"2026-01-02","production_kwh":10.7}}`)
	resp, err := h.ReadAll(t.Context(), &dto.ReadAllRequest{})
	if err != nil {
		t.Fatal(err)
	}
	data := *resp
	if len(data) != 3 {
		t.Fatalf("got %d tables, want 3", len(data))
	}
	if len(data["sunrun"]) != 1 || data["sdge"] == nil || len(data["activities"]) != 0 {
		t.Errorf("data = %v", data)
	}
	b, err := json.Marshal(data["sunrun"])
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(b), `[{"date":"2026-01-02","notes":"","production_kwh":10.7}]`; got != want {
		t.Errorf("json = %s, want %s", got, want)
	}
}

func TestWrite(t *testing.T) {
	t.Run("saveRecord is idempotent per key", func(t *testing.T) {
		svc := newServices(t, false)
		h := &DataHandler{Svc: svc}
		mustWrite(t, h, `{"action":"saveRecord","table":"sunrun","entry":{"date":"2026-01-02","production_kwh":10.7}}`)
		mustWrite(t, h, `{"action":"saveSunrun","entry":{"date":"2026-01-02","production_kwh":12.0}}`)
		got := rows(t, svc, "sunrun")
		if len(got) != 1 {
			t.Fatalf("got %d rows, want 1", len(got))
		}
		if f, _ := got[0]["production_kwh"].Float64(); f != 12 {
			t.Errorf("production_kwh = %v, want 12", f)
		}
		if !got[0]["notes"].IsEmpty() {
			t.Errorf("notes = %q, want empty", got[0]["notes"])
		}
	})

	t.Run("addRecord appends and fills tou_period", func(t *testing.T) {
		svc := newServices(t, false)
		h := &DataHandler{Svc: svc}
		mustWrite(t, h, `{"action":"addRecord","table":"activities","entry":{"date":"2026-01-05","start_time":"17:00","activity":"EV charge"}}`)
		mustWrite(t, h, `{"action":"saveActivity","entry":{"date":"2026-01-05","start_time":"17:00","activity":"EV charge"}}`)
		mustWrite(t, h, `{"action":"addRecord","table":"activities","entry":{"date":"2026-01-01","start_time":"09:00","tou_period":"manual"}}`)
		mustWrite(t, h, `{"action":"addRecord","table":"activities","entry":{"date":"2026-01-01","start_time":"09:00"}}`)
		got := rows(t, svc, "activities")
		want := []string{"on_peak", "on_peak", "manual", "super_off_peak"}
		if len(got) != len(want) {
			t.Fatalf("got %d rows, want %d", len(got), len(want))
		}
		for i, w := range want {
			if p := got[i]["tou_period"].String(); p != w {
				t.Errorf("row %d tou_period = %q, want %q", i, p, w)
			}
		}
	})

	t.Run("saveBulk then deleteByDate", func(t *testing.T) {
		svc := newServices(t, false)
		h := &DataHandler{Svc: svc}
		resp := mustWrite(t, h, `{"action":"saveBulk","table":"sdge","entries":[{"date":"d1","net":1},{"date":"d2","net":2}]}`)
		if resp.Applied != 2 {
			t.Errorf("applied = %d, want 2", resp.Applied)
		}
		mustWrite(t, h, `{"action":"saveBulkSunrun","entries":[{"date":"d1"}]}`)
		mustWrite(t, h, `{"action":"addRecord","table":"activities","entry":{"date":"d1"}}`)
		resp = mustWrite(t, h, `{"action":"deleteByDate","date":"d1"}`)
		if resp.Removed["sdge"] != 1 || resp.Removed["sunrun"] != 1 || resp.Removed["activities"] != 1 {
			t.Errorf("removed = %v", resp.Removed)
		}
		got := rows(t, svc, "sdge")
		if len(got) != 1 || got[0]["date"].String() != "d2" {
			t.Errorf("sdge = %v", got)
		}
	})

	t.Run("saveBulk partial failure", func(t *testing.T) {
		svc := newServices(t, false)
		h := &DataHandler{Svc: svc}
		_, err := write(t, h, `{"action":"saveBulkSDGE","entries":[{"date":"d1"},{"net":2},{"date":"d3"}]}`)
		apiErr := wantAPIError(t, err, http.StatusBadRequest, dto.ErrorCodeInvalidKey)
		if apiErr.Details()["applied"] != 1 {
			t.Errorf("details = %v", apiErr.Details())
		}
		if got := rows(t, svc, "sdge"); len(got) != 1 {
			t.Errorf("got %d rows, want the 1 applied before the failure", len(got))
		}
	})

	t.Run("syncAll", func(t *testing.T) {
		svc := newServices(t, false)
		h := &DataHandler{Svc: svc}
		for range 3 {
			mustWrite(t, h, `{"action":"addRecord","table":"activities","entry":{"date":"d1"}}`)
		}
		mustWrite(t, h, `{"action":"saveRecord","table":"sdge","entry":{"date":"d0"}}`)
		resp := mustWrite(t, h, `{"action":"syncAll","data":{"sunrun":[{"date":"d2"},{"date":"d1"}],"activities":[]}}`)
		if !slices.Equal(resp.Replaced, []string{"sunrun"}) {
			t.Errorf("replaced = %v", resp.Replaced)
		}
		if got := rows(t, svc, "activities"); len(got) != 3 {
			t.Errorf("empty sync should keep activities, got %d rows", len(got))
		}
		if got := rows(t, svc, "sdge"); len(got) != 1 {
			t.Errorf("absent table should be untouched, got %d rows", len(got))
		}
		got := rows(t, svc, "sunrun")
		if len(got) != 2 || got[0]["date"].String() != "d2" {
			t.Errorf("sunrun = %v", got)
		}

		_, err := write(t, h, `{"action":"syncAll","data":{"sunrun":[],"weather":[{"date":"d1"}]}}`)
		wantAPIError(t, err, http.StatusNotFound, dto.ErrorCodeTableNotFound)
		_, err = write(t, h, `{"action":"syncAll","data":{"sunrun":[{"date":"d9"}],"sdge":[1]}}`)
		wantAPIError(t, err, http.StatusBadRequest, dto.ErrorCodeInvalidRecord)
		if got := rows(t, svc, "sunrun"); len(got) != 2 {
			t.Errorf("rejected sync should not change sunrun, got %v", got)
		}
	})

	t.Run("errors", func(t *testing.T) {
		svc := newServices(t, false)
		h := &DataHandler{Svc: svc}
		tests := []struct {
			body   string
			status int
			code   dto.ErrorCode
		}{
			{`{"action":"dance"}`, http.StatusBadRequest, dto.ErrorCodeUnknownAction},
			{`{"action":"saveRecord","table":"nope","entry":{"date":"d1"}}`, http.StatusNotFound, dto.ErrorCodeTableNotFound},
			{`{"action":"saveRecord","table":"sunrun","entry":[1]}`, http.StatusBadRequest, dto.ErrorCodeInvalidRecord},
			{`{"action":"saveRecord","table":"sunrun","entry":{"date":""}}`, http.StatusBadRequest, dto.ErrorCodeInvalidKey},
			{`{"action":"saveRecord","table":"activities","entry":{"date":"d1"}}`, http.StatusBadRequest, dto.ErrorCodeInvalidKey},
			{`{"action":"saveRecord","table":"sunrun"}`, http.StatusBadRequest, dto.ErrorCodeMissingField},
			{`{"action":"addRecord","entry":{"date":"d1"}}`, http.StatusBadRequest, dto.ErrorCodeMissingField},
			{`{"action":"saveBulk","table":"sunrun","entries":{"date":"d1"}}`, http.StatusBadRequest, dto.ErrorCodeInvalidRecord},
			{`{"action":"saveBulk","table":"sunrun","entries":[{},{},{},{}]}`, http.StatusBadRequest, dto.ErrorCodeValidationFailed},
			{`{"action":"deleteByDate"}`, http.StatusBadRequest, dto.ErrorCodeMissingField},
			{`{"action":"syncAll"}`, http.StatusBadRequest, dto.ErrorCodeMissingField},
		}
		for _, tt := range tests {
			t.Run(tt.body, func(t *testing.T) {
				_, err := write(t, h, tt.body)
				wantAPIError(t, err, tt.status, tt.code)
			})
		}
		if _, err := write(t, h, `{"action":"dance"}`); !errors.Is(err, ErrUnknownAction) {
			t.Errorf("error = %v, want ErrUnknownAction", err)
		}
	})
}

func TestWriteCommits(t *testing.T) {
	svc := newServices(t, true)
	h := &DataHandler{Svc: svc}
	ctx := t.Context()
	mustWrite(t, h, `{"action":"saveRecord","table":"sunrun","entry":{"date":"2026-01-02","production_kwh":10.7}}`)
	// A failing bulk still commits what it applied.
	_, _ = write(t, h, `{"action":"saveBulk","table":"sdge","entries":[{"date":"d1"},{"net":1}]}`)
	// Deleting a date nobody has changes nothing.
	mustWrite(t, h, `{"action":"deleteByDate","date":"1999-01-01"}`)

	commits, err := svc.History.Log(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(commits) != 2 {
		t.Fatalf("got %d commits, want 2", len(commits))
	}
	if commits[1].Message != "saveRecord sunrun 2026-01-02" {
		t.Errorf("message = %q", commits[1].Message)
	}
	if !slices.Equal(commits[0].Files, []string{"db/sdge.jsonl"}) {
		t.Errorf("files = %v", commits[0].Files)
	}

	hh := &HistoryHandler{Svc: svc}
	resp, err := hh.History(ctx, &dto.HistoryRequest{Table: "sunrun"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Commits) != 1 || resp.Commits[0].Hash != commits[1].Hash {
		t.Errorf("sunrun history = %+v", resp.Commits)
	}
	_, err = hh.History(ctx, &dto.HistoryRequest{Table: "nope"})
	wantAPIError(t, err, http.StatusNotFound, dto.ErrorCodeTableNotFound)

	_, err = (&HistoryHandler{Svc: newServices(t, false)}).History(ctx, &dto.HistoryRequest{})
	wantAPIError(t, err, http.StatusNotImplemented, dto.ErrorCodeNotImplemented)
}

func TestTables(t *testing.T) {
	svc := newServices(t, false)
	mustWrite(t, &DataHandler{Svc: svc}, `{"action":"saveRecord","table":"sdge","entry":{"date":"d1"}}`)
	h := &TableHandler{Svc: svc}
	list, err := h.ListTables(t.Context(), &dto.ListTablesRequest{})
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, ti := range list.Tables {
		names = append(names, ti.Name)
	}
	if !slices.Equal(names, []string{"sunrun", "sdge", "activities"}) {
		t.Errorf("tables = %v", names)
	}
	if list.Tables[1].Rows != 1 || list.Tables[1].Key != "date" || list.Tables[2].Key != "" {
		t.Errorf("sdge info = %+v", list.Tables[1])
	}
	got, err := h.GetTable(t.Context(), &dto.GetTableRequest{Table: "sdge"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Data) != 1 || len(got.Columns) != 7 {
		t.Errorf("table = %+v", got)
	}
	_, err = h.GetTable(t.Context(), &dto.GetTableRequest{Table: "nope"})
	wantAPIError(t, err, http.StatusNotFound, dto.ErrorCodeTableNotFound)
}

func TestSummaryAndHealth(t *testing.T) {
	svc := newServices(t, false)
	d := &DataHandler{Svc: svc}
	mustWrite(t, d, `{"action":"saveBulk","table":"sdge","entries":[{"date":"2026-01-01","consumption":10,"super_off_peak":2},{"date":"2026-02-01","consumption":99}]}`)
	mustWrite(t, d, `{"action":"saveRecord","table":"sunrun","entry":{"date":"2026-01-01","production_kwh":30}}`)
	s, err := (&SummaryHandler{Svc: svc}).Summary(t.Context(), &dto.SummaryRequest{From: "2026-01-01", To: "2026-01-31"})
	if err != nil {
		t.Fatal(err)
	}
	if s.Days != 1 || s.ConsumptionKWh != 10 || s.ProductionKWh != 30 {
		t.Errorf("summary = %+v", s)
	}

	health, err := (&HealthHandler{Svc: svc}).Health(t.Context(), &dto.HealthRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if health.Status != "ok" || health.Version != "test" || health.Tables != 3 {
		t.Errorf("health = %+v", health)
	}
}
