// Aggregates stored usage and production rows into a cost summary.

package records

import (
	"errors"
	"fmt"

	"github.com/maruel/solardb/internal/jsonldb"
)

// Rates holds the tariff used to price imported energy, in dollars per kWh.
type Rates struct {
	SuperOffPeak float64 `json:"super_off_peak"`
	OffPeak      float64 `json:"off_peak"`
	OnPeak       float64 `json:"on_peak"`
	// ExportCredit is paid per exported kWh.
	ExportCredit float64 `json:"export_credit"`
	// SolarCapacityKW is the nameplate capacity of the array, used for the
	// capacity factor.
	SolarCapacityKW float64 `json:"solar_capacity_kw"`
}

// DefaultRates returns EV-TOU-5 delivery plus CCA generation charges as of
// January 2026.
func DefaultRates() Rates {
	const generation = 0.09
	return Rates{
		SuperOffPeak:    0.043 + generation,
		OffPeak:         0.329 + generation,
		OnPeak:          0.329 + generation,
		ExportCredit:    0.04,
		SolarCapacityKW: 5.985,
	}
}

// Rate returns the price of p.
func (r *Rates) Rate(p Period) float64 {
	switch p {
	case SuperOffPeak:
		return r.SuperOffPeak
	case OffPeak:
		return r.OffPeak
	case OnPeak:
		return r.OnPeak
	default:
		return 0
	}
}

// Validate checks that rates are non-negative.
func (r *Rates) Validate() error {
	if r.SuperOffPeak < 0 || r.OffPeak < 0 || r.OnPeak < 0 {
		return errors.New("rates must be non-negative")
	}
	if r.ExportCredit < 0 {
		return errors.New("export_credit must be non-negative")
	}
	if r.SolarCapacityKW < 0 {
		return errors.New("solar_capacity_kw must be non-negative")
	}
	return nil
}

// Summary is the energy and cost picture over a date range.
type Summary struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	Days           int                `json:"days"`
	ConsumptionKWh float64            `json:"total_consumption_kwh"`
	GenerationKWh  float64            `json:"total_generation_kwh"`
	ImportKWh      float64            `json:"total_import_kwh"`
	ExportKWh      float64            `json:"total_export_kwh"`
	TOUImportKWh   map[Period]float64 `json:"tou_import_kwh"`
	TOUCost        map[Period]float64 `json:"tou_cost"`
	ImportCost     float64            `json:"import_cost"`
	ExportCredit   float64            `json:"export_credit"`
	NetCost        float64            `json:"net_cost"`

	DailyAvgConsumption float64 `json:"daily_avg_consumption"`
	DailyAvgImport      float64 `json:"daily_avg_import"`
	DailyAvgExport      float64 `json:"daily_avg_export"`
	MonthlyEstimate     float64 `json:"monthly_estimate"`
	AnnualEstimate      float64 `json:"annual_estimate"`

	ProductionDays     int     `json:"production_days"`
	ProductionKWh      float64 `json:"total_production_kwh"`
	DailyAvgProduction float64 `json:"daily_avg_production"`
	// CapacityFactor is production over what the array would make running at
	// nameplate capacity all day.
	CapacityFactor float64 `json:"capacity_factor"`
}

// Summarize aggregates usage and production rows whose date lies in
// [from, to]. Empty bounds are open. Dates compare as YYYY-MM-DD strings.
func Summarize(usage, production []jsonldb.Row, rates *Rates, from, to string) *Summary {
	s := &Summary{
		From:         from,
		To:           to,
		TOUImportKWh: make(map[Period]float64, len(Periods)),
		TOUCost:      make(map[Period]float64, len(Periods)),
	}
	for _, p := range Periods {
		s.TOUImportKWh[p] = 0
	}
	for _, row := range usage {
		if !inRange(row, from, to) {
			continue
		}
		s.Days++
		s.ConsumptionKWh += num(row, "consumption")
		gen := num(row, "generation")
		s.GenerationKWh += gen
		imported := 0.0
		for _, p := range Periods {
			v := num(row, string(p))
			s.TOUImportKWh[p] += v
			imported += v
		}
		s.ImportKWh += imported
		if net, ok := row["net"].Float64(); ok {
			s.ExportKWh += max(imported-net, 0)
		} else {
			s.ExportKWh += gen
		}
	}
	for _, p := range Periods {
		s.TOUCost[p] = s.TOUImportKWh[p] * rates.Rate(p)
		s.ImportCost += s.TOUCost[p]
	}
	s.ExportCredit = s.ExportKWh * rates.ExportCredit
	s.NetCost = s.ImportCost - s.ExportCredit
	if s.Days > 0 {
		d := float64(s.Days)
		s.DailyAvgConsumption = s.ConsumptionKWh / d
		s.DailyAvgImport = s.ImportKWh / d
		s.DailyAvgExport = s.ExportKWh / d
		s.MonthlyEstimate = s.NetCost * 30 / d
		s.AnnualEstimate = s.NetCost * 365 / d
	}

	for _, row := range production {
		if !inRange(row, from, to) {
			continue
		}
		s.ProductionDays++
		s.ProductionKWh += num(row, "production_kwh")
	}
	if s.ProductionDays > 0 {
		s.DailyAvgProduction = s.ProductionKWh / float64(s.ProductionDays)
		if rates.SolarCapacityKW > 0 {
			s.CapacityFactor = s.DailyAvgProduction / (rates.SolarCapacityKW * 24)
		}
	}
	return s
}

// ValidateRange checks that from and to are empty or YYYY-MM-DD and ordered.
func ValidateRange(from, to string) error {
	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, err := parseDay(d); err != nil {
			return fmt.Errorf("invalid date %q: want YYYY-MM-DD", d)
		}
	}
	if from != "" && to != "" && from > to {
		return fmt.Errorf("from %s is after to %s", from, to)
	}
	return nil
}

func inRange(row jsonldb.Row, from, to string) bool {
	d := row["date"].String()
	if d == "" {
		return false
	}
	return (from == "" || d >= from) && (to == "" || d <= to)
}

func num(row jsonldb.Row, col string) float64 {
	f, _ := row[col].Float64()
	return f
}
