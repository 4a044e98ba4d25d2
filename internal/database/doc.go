// Package database holds the SQL side of a crawl.
//
// HistoryDB is a SQLite file (modernc.org/sqlite, no cgo) in the data
// directory. It records one row per crawl run and mirrors every comment
// written to a CSV file, so past runs can be listed without re-reading the
// CSV files.
//
// Batch mode reads its target ids from a TargetSource: a PostgreSQL query
// (pgx), a query on a SQLite file, or a static list from the config file.
package database
