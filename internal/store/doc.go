// Package store persists accounts, ledger transactions, evaluations, phase
// results, chat turns and reports in SQLite (default) or MySQL.
//
// The Store implements ledger.Backend: account updates are compare-and-swap
// on the version column, and the ledger transaction describing the change is
// written in the same database transaction. Evaluation history is
// append-only and keyed by user and evaluation so reports can be rebuilt
// after the live session is gone.
//
// Schema changes bump schemaVersion in schema.go; an existing database with a
// different version is rejected rather than migrated in place.
package store
