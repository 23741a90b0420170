// Declares the energy tables and loads optional layout overrides.

package records

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/maruel/solardb/internal/jsonldb"
	"gopkg.in/yaml.v3"
)

// Table names of the default layout.
const (
	TableProduction = "sunrun"
	TableUsage      = "sdge"
	TableActivities = "activities"
)

// Production is one day of solar production as reported by the installer's
// monitoring portal.
type Production struct {
	Date          string  `json:"date" jsonschema:"format=date,description=Production day (YYYY-MM-DD)"`
	ProductionKWh float64 `json:"production_kwh,omitempty" jsonschema:"description=Energy produced by the panels"`
	Notes         string  `json:"notes,omitempty"`
}

// Usage is one day of utility metering. The time-of-use buckets hold imported
// energy only.
type Usage struct {
	Date         string  `json:"date" jsonschema:"format=date,description=Billing day (YYYY-MM-DD)"`
	Consumption  float64 `json:"consumption,omitempty" jsonschema:"description=Energy used by the house"`
	Generation   float64 `json:"generation,omitempty" jsonschema:"description=Energy exported to the grid"`
	Net          float64 `json:"net,omitempty" jsonschema:"description=Imported minus exported energy"`
	SuperOffPeak float64 `json:"super_off_peak,omitempty" jsonschema:"description=Imported energy during super off-peak hours"`
	OffPeak      float64 `json:"off_peak,omitempty" jsonschema:"description=Imported energy during off-peak hours"`
	OnPeak       float64 `json:"on_peak,omitempty" jsonschema:"description=Imported energy during on-peak hours"`
}

// Activity is a logged household activity. Several entries per day are
// allowed, so the table has no key.
type Activity struct {
	Date      string  `json:"date" jsonschema:"format=date"`
	StartTime string  `json:"start_time,omitempty" jsonschema:"description=HH:MM"`
	EndTime   string  `json:"end_time,omitempty" jsonschema:"description=HH:MM"`
	Activity  string  `json:"activity,omitempty"`
	Location  string  `json:"location,omitempty"`
	Notes     string  `json:"notes,omitempty"`
	EstKWh    float64 `json:"est_kwh,omitempty" jsonschema:"description=Estimated energy used"`
	TOUPeriod string  `json:"tou_period,omitempty" jsonschema:"description=super_off_peak, off_peak or on_peak"`
}

// TableSpec declares one table of the layout.
type TableSpec struct {
	Name    string           `yaml:"name"`
	Key     string           `yaml:"key,omitempty"`
	Columns []jsonldb.Column `yaml:"columns"`
}

// Schema returns the jsonldb schema of the table.
func (t *TableSpec) Schema() jsonldb.Schema {
	cols := slices.Clone(t.Columns)
	for i := range cols {
		if cols[i].Type == "" {
			cols[i].Type = jsonldb.ColumnTypeText
		}
	}
	return jsonldb.Schema{Key: t.Key, Columns: cols}
}

// Layout is the ordered set of tables a data directory holds.
type Layout struct {
	Version int         `yaml:"version"`
	Tables  []TableSpec `yaml:"tables"`
}

// Table returns the spec of the named table.
func (l *Layout) Table(name string) (*TableSpec, bool) {
	for i := range l.Tables {
		if l.Tables[i].Name == name {
			return &l.Tables[i], true
		}
	}
	return nil, false
}

// DefaultLayout returns the production, usage and activity tables.
func DefaultLayout() *Layout {
	specOf := func(name string, s jsonldb.Schema) TableSpec {
		return TableSpec{Name: name, Key: s.Key, Columns: s.Columns}
	}
	return &Layout{
		Version: 1,
		Tables: []TableSpec{
			specOf(TableProduction, jsonldb.MustSchemaOf[Production]("date")),
			specOf(TableUsage, jsonldb.MustSchemaOf[Usage]("date")),
			specOf(TableActivities, jsonldb.MustSchemaOf[Activity]("")),
		},
	}
}

// LoadLayout returns the default layout merged with the YAML file at path.
//
// A table declared in the file replaces the default table of the same name
// and other tables are added after the defaults. A missing file is not an
// error. The column list of a table that already has a file on disk is not
// affected: stored schemas win.
func LoadLayout(path string) (*Layout, error) {
	l := DefaultLayout()
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is derived from the data directory flag
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return l, nil
		}
		return nil, fmt.Errorf("failed to read layout: %w", err)
	}
	extra, err := ParseLayout(data)
	if err != nil {
		return nil, err
	}
	for _, t := range extra.Tables {
		if cur, ok := l.Table(t.Name); ok {
			*cur = t
			continue
		}
		l.Tables = append(l.Tables, t)
	}
	return l, nil
}

// ParseLayout parses and validates a YAML layout document.
func ParseLayout(data []byte) (*Layout, error) {
	var l Layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}
	if l.Version != 1 {
		return nil, fmt.Errorf("unsupported layout version %d", l.Version)
	}
	seen := make(map[string]bool)
	for i := range l.Tables {
		t := &l.Tables[i]
		if t.Name == "" {
			return nil, fmt.Errorf("table %d: name is required", i)
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("table %q declared twice", t.Name)
		}
		seen[t.Name] = true
		s := t.Schema()
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("table %q: %w", t.Name, err)
		}
	}
	return &l, nil
}

// Ensure creates or loads every table of the layout in s.
func (l *Layout) Ensure(s *jsonldb.Store) error {
	for i := range l.Tables {
		t := &l.Tables[i]
		if _, err := s.EnsureTable(t.Name, t.Schema()); err != nil {
			return err
		}
	}
	return nil
}
