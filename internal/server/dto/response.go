// Defines the response envelope and response payloads.

package dto

import (
	"time"

	"github.com/maruel/solardb/internal/jsonldb"
)

// Response is the envelope of every API response.
type Response struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
	Code    ErrorCode      `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// DataResponse maps each table name to its rows.
type DataResponse map[string][]jsonldb.Row

// WriteResponse reports what a write action changed. Fields irrelevant to the
// action are omitted.
type WriteResponse struct {
	// Applied is the number of records written.
	Applied int `json:"applied,omitempty"`
	// Removed is the number of rows deleted per table.
	Removed map[string]int `json:"removed,omitempty"`
	// Replaced lists the tables whose content was replaced.
	Replaced []string `json:"replaced,omitempty"`
}

// TableInfo describes one table.
type TableInfo struct {
	Name    string           `json:"name"`
	Key     string           `json:"key,omitempty"`
	Columns []jsonldb.Column `json:"columns"`
	Rows    int              `json:"rows"`
}

// ListTablesResponse lists every table.
type ListTablesResponse struct {
	Tables []TableInfo `json:"tables"`
}

// TableResponse holds the rows of one table.
type TableResponse struct {
	TableInfo
	Data []jsonldb.Row `json:"data"`
}

// Commit is one change of the data directory.
type Commit struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	Date    time.Time `json:"date"`
	Files   []string  `json:"files,omitempty"`
}

// HistoryResponse lists changes, newest first.
type HistoryResponse struct {
	Commits []Commit `json:"commits"`
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Tables  int    `json:"tables"`
}
