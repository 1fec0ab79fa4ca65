// Package history defines the durable records an evaluation leaves behind:
// the Evaluation itself, one PhaseResult per completed (or failed) phase,
// chat Turns and generated Reports. Live session state is owned by the
// workflow package; everything here outlives it and feeds reports and audits.
//
// Bound trims a conversation to a fixed number of turns while keeping the
// turns that matter for the phase being analysed.
package history
