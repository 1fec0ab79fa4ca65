// Package report renders persisted evaluation history into downloadable
// documents.
//
// Reports are built from stored PhaseResults rather than live session state,
// so they can be regenerated long after a session ends. Generation is billed
// through the ledger: the reservation is refunded when rendering, writing, or
// persisting the report fails.
package report
