// Package credits provides the fixed-point decimal amount used for balances
// and prices.
package credits
