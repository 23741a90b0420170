package records

import (
	"math"
	"testing"

	"github.com/maruel/solardb/internal/jsonldb"
)

func row(kv ...any) jsonldb.Row {
	r := jsonldb.Row{}
	for i := 0; i < len(kv); i += 2 {
		v, err := jsonldb.ParseValue(kv[i+1])
		if err != nil {
			panic(err)
		}
		r[kv[i].(string)] = v
	}
	return r
}

func approx(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

func TestSummarize(t *testing.T) {
	rates := Rates{SuperOffPeak: 0.1, OffPeak: 0.2, OnPeak: 0.5, ExportCredit: 0.05, SolarCapacityKW: 5}
	usage := []jsonldb.Row{
		row("date", "2026-01-01", "consumption", 20, "generation", 4, "net", 6, "super_off_peak", 5, "off_peak", 3, "on_peak", 2),
		row("date", "2026-01-02", "consumption", 10, "generation", 7, "super_off_peak", 1, "off_peak", 1, "on_peak", ""),
		row("date", "2026-02-01", "consumption", 99),
	}
	production := []jsonldb.Row{
		row("date", "2026-01-01", "production_kwh", 24),
		row("date", "2026-01-02", "production_kwh", 36),
		row("date", "2025-12-31", "production_kwh", 1000),
	}
	s := Summarize(usage, production, &rates, "2026-01-01", "2026-01-31")
	if s.Days != 2 {
		t.Fatalf("Days = %d, want 2", s.Days)
	}
	approx(t, "ConsumptionKWh", s.ConsumptionKWh, 30)
	approx(t, "GenerationKWh", s.GenerationKWh, 11)
	approx(t, "ImportKWh", s.ImportKWh, 12)
	// Day one exports import minus net, day two has no net so generation counts.
	approx(t, "ExportKWh", s.ExportKWh, 4+7)
	approx(t, "TOUImportKWh[super_off_peak]", s.TOUImportKWh[SuperOffPeak], 6)
	approx(t, "TOUCost[on_peak]", s.TOUCost[OnPeak], 1)
	approx(t, "ImportCost", s.ImportCost, 0.6+0.8+1)
	approx(t, "ExportCredit", s.ExportCredit, 0.55)
	approx(t, "NetCost", s.NetCost, 2.4-0.55)
	approx(t, "MonthlyEstimate", s.MonthlyEstimate, (2.4-0.55)*15)
	approx(t, "AnnualEstimate", s.AnnualEstimate, (2.4-0.55)*365/2)
	if s.ProductionDays != 2 {
		t.Fatalf("ProductionDays = %d, want 2", s.ProductionDays)
	}
	approx(t, "DailyAvgProduction", s.DailyAvgProduction, 30)
	approx(t, "CapacityFactor", s.CapacityFactor, 30.0/120)
}

func TestSummarizeEmpty(t *testing.T) {
	rates := DefaultRates()
	s := Summarize(nil, nil, &rates, "", "")
	if s.Days != 0 || s.NetCost != 0 || s.MonthlyEstimate != 0 || s.CapacityFactor != 0 {
		t.Errorf("unexpected summary %+v", s)
	}
	if len(s.TOUImportKWh) != len(Periods) {
		t.Errorf("TOUImportKWh should list every period, got %v", s.TOUImportKWh)
	}
}

func TestRates(t *testing.T) {
	r := DefaultRates()
	if err := r.Validate(); err != nil {
		t.Fatal(err)
	}
	approx(t, "SuperOffPeak", r.Rate(SuperOffPeak), 0.133)
	approx(t, "OnPeak", r.Rate(OnPeak), 0.419)
	if r.Rate("bogus") != 0 {
		t.Error("unknown period should cost nothing")
	}
	r.ExportCredit = -1
	if r.Validate() == nil {
		t.Error("negative export credit should fail")
	}
}

func TestValidateRange(t *testing.T) {
	tests := []struct {
		from, to string
		ok       bool
	}{
		{"", "", true},
		{"2026-01-01", "", true},
		{"2026-01-01", "2026-01-01", true},
		{"2026-02-01", "2026-01-01", false},
		{"01/01/2026", "", false},
		{"", "2026-13-01", false},
	}
	for _, tt := range tests {
		err := ValidateRange(tt.from, tt.to)
		if (err == nil) != tt.ok {
			t.Errorf("ValidateRange(%q, %q) = %v, want ok=%t", tt.from, tt.to, err, tt.ok)
		}
	}
}
