package jsonldb

import "errors"

var (
	// ErrTableNotFound is returned when an operation names a table that was
	// never initialized with EnsureTable.
	ErrTableNotFound = errors.New("table not found")
	// ErrInvalidRecord is returned for payloads that are not objects or that
	// hold non-scalar values in schema columns.
	ErrInvalidRecord = errors.New("invalid record")
	// ErrInvalidKey is returned when an upsert has no usable key.
	ErrInvalidKey = errors.New("invalid key")
	// ErrInvalidTableName is returned for names that cannot be used as a file name.
	ErrInvalidTableName = errors.New("invalid table name")

	errSchemaVersionRequired = errors.New("schema version is required")
)
