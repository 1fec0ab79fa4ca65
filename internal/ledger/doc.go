// Package ledger tracks per-user credit balances.
//
// Every billable action reserves its price before any external work starts and
// refunds it if the work fails (see Ledger.Charge). Balance changes use
// compare-and-swap on an account version with bounded retries, and each change
// is appended to the transaction log in the same storage transaction.
// Amounts are Credits, fixed-point hundredths.
package ledger
