package config

import "sitegrade/internal/credits"

// Prices holds the parsed per-action charges.
type Prices struct {
	Evaluation  credits.Amount
	ChatMessage credits.Amount
	Report      credits.Amount
}

// Prices parses the [pricing] section. Load has already validated the values,
// so parse failures here indicate a Config built without Load and yield zero.
func (c *Config) Prices() Prices {
	return Prices{
		Evaluation:  parseOrZero(c.Pricing.Evaluation),
		ChatMessage: parseOrZero(c.Pricing.ChatMessage),
		Report:      parseOrZero(c.Pricing.Report),
	}
}

// StartingBalance returns the balance granted to newly created accounts.
func (c *Config) StartingBalance() credits.Amount {
	return parseOrZero(c.Ledger.StartingBalance)
}

// LowBalanceThreshold returns the balance below which a low-balance
// notification is published.
func (c *Config) LowBalanceThreshold() credits.Amount {
	return parseOrZero(c.Ledger.LowBalanceThreshold)
}

func parseOrZero(value string) credits.Amount {
	amount, err := credits.Parse(value)
	if err != nil {
		return 0
	}
	return amount
}
