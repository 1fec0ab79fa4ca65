// Package workflow advances evaluation sessions through the fixed phase
// ordering.
//
// The Manager owns one live session per user. StartSession bills the
// evaluation, captures the snapshot through the sidecar, and persists the
// Evaluation. Each Advance projects the snapshot for the next phase, rates the
// subset, calls the analyzer (and scorer for scored phases), persists the
// PhaseResult, and only then moves the session forward. A collaborator failure
// leaves the session on its previous phase so the advance can be retried.
//
// The terminal Recommendations phase opens a recommend.Stream and hands the
// caller a Relay; the session completes when the stream delivers Done.
//
// Chat messages and reports are billed per call through the ledger and work
// from persisted history rather than live session state.
package workflow
