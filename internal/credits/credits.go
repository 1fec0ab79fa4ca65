package credits

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Amount is a quantity of account balance in hundredths of a credit.
type Amount int64

// Parse parses a decimal amount with at most two fractional digits,
// such as "1", "0.5" or "12.25".
func Parse(value string) (Amount, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return 0, fmt.Errorf("parse credits: empty amount")
	}
	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" && (!hasFrac || frac == "") {
		return 0, fmt.Errorf("parse credits %q: missing digits", value)
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("parse credits %q: at most two decimal places", value)
	}
	for _, part := range []string{whole, frac} {
		for _, r := range part {
			if r < '0' || r > '9' {
				return 0, fmt.Errorf("parse credits %q: invalid digit %q", value, r)
			}
		}
	}
	var units int64
	if whole != "" {
		n, err := strconv.ParseInt(whole, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse credits %q: %w", value, err)
		}
		if n > math.MaxInt64/100 {
			return 0, fmt.Errorf("parse credits %q: amount too large", value)
		}
		units = n * 100
	}
	if frac != "" {
		for len(frac) < 2 {
			frac += "0"
		}
		n, _ := strconv.ParseInt(frac, 10, 64)
		units += n
	}
	if negative {
		units = -units
	}
	return Amount(units), nil
}

// MustParse is Parse for compile-time constants.
func MustParse(value string) Amount {
	c, err := Parse(value)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Amount) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Float returns the amount in whole credits, for display only.
func (c Amount) Float() float64 {
	return float64(c) / 100
}
