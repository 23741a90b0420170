// Package jsonldb provides a small JSONL-backed record store made of named
// tables with fixed column schemas.
//
// # Overview
//
// A [Store] groups [Table] values by name. A table is created once with
// [Store.EnsureTable] and its column set never changes afterwards. Incoming
// [Record] values are projected onto the schema: unknown fields are dropped and
// missing ones stored as empty [Value] cells.
//
// Keyed tables are written with [Table.Upsert], which keeps at most one row per
// key value. Tables without a key are log-like and only grow through
// [Table.Append]. [Table.DeleteByField] rebuilds the row list from the rows it
// keeps, and [Table.ReplaceAll] ignores empty input so that an empty sync never
// wipes a table.
//
// # Concurrency: Pessimistic Locking
//
// Every mutation holds the table's write lock for the entire
// read-modify-write, so writers to the same table are serialized. Bulk
// operations are not transactional: a failure partway through leaves the
// records before it applied.
//
// # File Format
//
// JSONL files with line 1 as schema header and each following line a JSON
// array of cells in column order, the way a spreadsheet row looks. Appends add
// one line; every other mutation rewrites the file through a temporary file
// and a rename.
package jsonldb
