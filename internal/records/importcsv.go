// Parses utility interval exports and production CSVs into table records.

package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/maruel/solardb/internal/jsonldb"
)

const dayLayout = "2006-01-02"

// ImportedNote is the notes value of production rows whose CSV has no notes.
const ImportedNote = "Imported from CSV"

var errNoHeader = errors.New("no header row found")

// ParseGreenButton reads a Green Button interval export (the CSV utilities
// offer under "download my data") and aggregates it into one usage record per
// day, in date order.
//
// The export starts with account metadata; the data header is the first row
// holding both "Date" and "Start Time". Only positive net intervals count
// toward the time-of-use buckets. holidays lists YYYY-MM-DD days billed as
// weekends.
func ParseGreenButton(r io.Reader, holidays []string) ([]jsonldb.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var cols map[string]int
	type day struct {
		consumption, generation, net float64
		buckets                      map[Period]float64
	}
	days := make(map[string]*day)
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if cols == nil {
			cols = headerIndex(rec)
			if _, ok := cols["date"]; !ok {
				cols = nil
				continue
			}
			if _, ok := cols["start time"]; !ok {
				cols = nil
			}
			continue
		}
		dateStr := field(rec, cols, "date")
		if dateStr == "" {
			continue
		}
		ts, err := time.ParseInLocation("1/2/2006 3:04 PM", dateStr+" "+field(rec, cols, "start time"), time.Local)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		key := ts.Format(dayLayout)
		d := days[key]
		if d == nil {
			d = &day{buckets: make(map[Period]float64, len(Periods))}
			days[key] = d
		}
		consumption, err := parseNumber(field(rec, cols, "consumption"))
		if err != nil {
			return nil, fmt.Errorf("line %d: consumption: %w", line, err)
		}
		generation, err := parseNumber(field(rec, cols, "generation"))
		if err != nil {
			return nil, fmt.Errorf("line %d: generation: %w", line, err)
		}
		net, err := parseNumber(field(rec, cols, "net"))
		if err != nil {
			return nil, fmt.Errorf("line %d: net: %w", line, err)
		}
		d.consumption += consumption
		d.generation += generation
		d.net += net
		if net > 0 {
			d.buckets[Classify(ts, slices.Contains(holidays, key))] += net
		}
	}
	if cols == nil {
		return nil, errNoHeader
	}

	keys := make([]string, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]jsonldb.Record, 0, len(keys))
	for _, k := range keys {
		d := days[k]
		rec := jsonldb.Record{
			"date":        k,
			"consumption": round3(d.consumption),
			"generation":  round3(d.generation),
			"net":         round3(d.net),
		}
		for _, p := range Periods {
			rec[string(p)] = round3(d.buckets[p])
		}
		out = append(out, rec)
	}
	return out, nil
}

// productionColumns are the header names accepted for the production value,
// in order of preference.
var productionColumns = []string{"production_kwh", "production (kwh)", "production", "kwh", "generated", "energy"}

// ParseProduction reads a daily production CSV with a date column, a
// production column and an optional notes column.
func ParseProduction(r io.Reader) ([]jsonldb.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errNoHeader
		}
		return nil, err
	}
	cols := headerIndex(header)
	if _, ok := cols["date"]; !ok {
		return nil, fmt.Errorf("%w: missing date column", errNoHeader)
	}
	prodCol := ""
	for _, c := range productionColumns {
		if _, ok := cols[c]; ok {
			prodCol = c
			break
		}
	}
	if prodCol == "" {
		return nil, fmt.Errorf("%w: missing production column", errNoHeader)
	}

	var out []jsonldb.Record
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		raw := field(rec, cols, "date")
		if raw == "" {
			continue
		}
		date, err := normalizeDay(raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		kwh, err := parseNumber(field(rec, cols, prodCol))
		if err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", line, prodCol, err)
		}
		notes := field(rec, cols, "notes")
		if notes == "" {
			notes = ImportedNote
		}
		out = append(out, jsonldb.Record{"date": date, "production_kwh": round3(kwh), "notes": notes})
	}
	return out, nil
}

func headerIndex(rec []string) map[string]int {
	m := make(map[string]int, len(rec))
	for i, h := range rec {
		h = strings.ToLower(strings.Trim(strings.TrimSpace(h), `"`))
		if _, dup := m[h]; !dup {
			m[h] = i
		}
	}
	return m
}

func field(rec []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.Trim(strings.TrimSpace(rec[i]), `"`)
}

// parseNumber parses a metered value; blanks count as zero.
func parseNumber(s string) (float64, error) {
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func normalizeDay(s string) (string, error) {
	for _, layout := range []string{dayLayout, "1/2/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(dayLayout), nil
		}
	}
	return "", fmt.Errorf("invalid date %q", s)
}

func parseDay(s string) (time.Time, error) {
	return time.Parse(dayLayout, s)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
