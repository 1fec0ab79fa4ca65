// Package validator rates metric values against fixed thresholds.
//
// Scalars are rated with Rate (lower is better), RateHigher (audit scores), or
// RateRange (a target window with 20% tolerance on each side). Security
// headers are scored as a weighted composite across critical, important, and
// optional tiers, where an alternative header counts for the one it stands in
// for. RatePhase applies the per-phase rule tables to a projected subset.
package validator
