package dto

import (
	"encoding/json"

	"github.com/maruel/solardb/internal/records"
)

// ReadAllRequest is a request for the rows of every table.
type ReadAllRequest struct{}

// Validate is a no-op for ReadAllRequest.
func (r *ReadAllRequest) Validate() error {
	return nil
}

// WriteRequest is a write action. Which payload fields are used depends on
// Action; record payloads are kept raw and decoded by the action.
type WriteRequest struct {
	Action  string                     `json:"action"`
	Table   string                     `json:"table,omitempty"`
	Entry   json.RawMessage            `json:"entry,omitempty"`
	Entries json.RawMessage            `json:"entries,omitempty"`
	Date    string                     `json:"date,omitempty"`
	Data    map[string]json.RawMessage `json:"data,omitempty"`
}

// Validate validates the write request fields common to every action.
func (r *WriteRequest) Validate() error {
	if r.Action == "" {
		return MissingField("action")
	}
	return nil
}

// ListTablesRequest is a request to list tables.
type ListTablesRequest struct{}

// Validate is a no-op for ListTablesRequest.
func (r *ListTablesRequest) Validate() error {
	return nil
}

// GetTableRequest is a request for the rows of one table.
type GetTableRequest struct {
	Table string `path:"table"`
}

// Validate validates the get table request fields.
func (r *GetTableRequest) Validate() error {
	if r.Table == "" {
		return MissingField("table")
	}
	return nil
}

// SummaryRequest is a request for the usage summary over [From, To].
type SummaryRequest struct {
	From string `query:"from"`
	To   string `query:"to"`
}

// Validate validates the summary request fields.
func (r *SummaryRequest) Validate() error {
	if err := records.ValidateRange(r.From, r.To); err != nil {
		return BadRequest(err.Error())
	}
	return nil
}

// HistoryRequest is a request for the change log, optionally of one table.
type HistoryRequest struct {
	Table string `query:"table"`
	Limit int    `query:"limit"`
}

// Validate validates the history request fields.
func (r *HistoryRequest) Validate() error {
	if r.Limit < 0 {
		return InvalidField("limit", "must be non-negative")
	}
	return nil
}

// HealthRequest is a request to check the server health.
type HealthRequest struct{}

// Validate is a no-op for HealthRequest.
func (r *HealthRequest) Validate() error {
	return nil
}
