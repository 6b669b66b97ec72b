// Package money provides exact fixed-point monetary arithmetic at 2-digit
// scale. Every monetary value in the authorization engine flows through this
// package; binary floating point is never used for money.
//
// Rounding is half-up, matching the precision contract of the upstream
// account platform.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal digits carried by every Amount.
const Scale = 2

// Amount is an immutable monetary value with exactly two decimal places.
// The zero value is 0.00 and is ready to use.
type Amount struct {
	d decimal.Decimal
}

// Zero returns the 0.00 amount.
func Zero() Amount {
	return Amount{}
}

// FromDecimal converts an arbitrary decimal to an Amount, rounding half-up
// to two places.
func FromDecimal(d decimal.Decimal) Amount {
	return Amount{d: d.Round(Scale)}
}

// FromCents builds an Amount from an integer number of cents.
func FromCents(cents int64) Amount {
	return Amount{d: decimal.New(cents, -Scale)}
}

// Parse parses a decimal string such as "125.50" into an Amount.
// More than two fractional digits is rejected rather than silently rounded:
// the wire contract is 2-decimal fixed point.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("money: empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("money: invalid amount %q: %w", s, err)
	}
	if d.Exponent() < -Scale {
		return Amount{}, fmt.Errorf("money: amount %q has more than %d decimal places", s, Scale)
	}
	return Amount{d: d.Round(Scale)}, nil
}

// MustParse is Parse for trusted literals; it panics on malformed input.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{d: a.d.Add(b.d)}
}

// Sub returns a - b.
func (a Amount) Sub(b Amount) Amount {
	return Amount{d: a.d.Sub(b.d)}
}

// Cmp compares a and b: -1 if a < b, 0 if equal, 1 if a > b.
func (a Amount) Cmp(b Amount) int {
	return a.d.Cmp(b.d)
}

// GreaterThan reports a > b.
func (a Amount) GreaterThan(b Amount) bool {
	return a.d.Cmp(b.d) > 0
}

// LessThan reports a < b.
func (a Amount) LessThan(b Amount) bool {
	return a.d.Cmp(b.d) < 0
}

// Equal reports a == b.
func (a Amount) Equal(b Amount) bool {
	return a.d.Cmp(b.d) == 0
}

// Sign returns -1, 0 or 1 for negative, zero and positive amounts.
func (a Amount) Sign() int {
	return a.d.Sign()
}

// IsPositive reports a > 0.
func (a Amount) IsPositive() bool {
	return a.d.Sign() > 0
}

// Decimal exposes the underlying decimal for non-monetary math such as
// risk-factor ratios. The result must never be converted to float in a
// monetary code path.
func (a Amount) Decimal() decimal.Decimal {
	return a.d
}

// String renders the amount with exactly two decimal places, e.g. "125.50".
func (a Amount) String() string {
	return a.d.StringFixed(Scale)
}

// MarshalJSON encodes the amount as a JSON string ("125.50"), never a float.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts both "125.50" and 125.50 on the wire but always
// validates through Parse.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" {
		*a = Amount{}
		return nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value support for database/sql: amounts travel as NUMERIC strings.

// Scan implements sql.Scanner.
func (a *Amount) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*a = Amount{}
		return nil
	case string:
		parsed, err := Parse(v)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	case []byte:
		parsed, err := Parse(string(v))
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	case int64:
		*a = FromCents(v * 100)
		return nil
	default:
		return fmt.Errorf("money: cannot scan %T into Amount", src)
	}
}
