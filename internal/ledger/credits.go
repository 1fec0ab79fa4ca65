package ledger

import "sitegrade/internal/credits"

// Credits is an amount of account balance in hundredths of a credit.
type Credits = credits.Amount

// ParseCredits parses a decimal amount with at most two fractional digits,
// such as "1", "0.5" or "12.25".
func ParseCredits(value string) (Credits, error) {
	return credits.Parse(value)
}

// MustParseCredits is ParseCredits for compile-time constants.
func MustParseCredits(value string) Credits {
	return credits.MustParse(value)
}
