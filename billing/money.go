/*
money.go - Fixed-point money in integer minor units

PURPOSE:
  Every monetary value in the ledger is a count of minor units (cents for
  KES) held in an int64. Arithmetic never touches binary floating point, so
  summing thousands of lines yields the exact figure a cashier would get by
  hand.

DECIMAL BOUNDARY:
  Strings such as "1500.50" only exist at the edges (API, tariff files).
  Currency.Parse and Currency.Format convert between the two using
  shopspring/decimal, which is exact for base-10 input:

    KES.Parse("1500.50")   -> Money(150050)
    KES.Format(150050)     -> "1500.50"
    KES.Parse("1500.505")  -> ValidationError (more precision than the currency has)

SIGN CONVENTION:
  Stored and derived amounts are non-negative. Discounts are magnitudes that
  get subtracted, never negative amounts that get added. A negative balance
  is an invariant violation (see account.go).

SEE ALSO:
  - item.go: LineTotal uses MulQty
  - account.go: Summarize sums Money values
*/
package billing

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor currency units.
type Money int64

func (m Money) Add(o Money) Money        { return m + o }
func (m Money) Sub(o Money) Money        { return m - o }
func (m Money) IsZero() bool             { return m == 0 }
func (m Money) IsPositive() bool         { return m > 0 }
func (m Money) IsNegative() bool         { return m < 0 }
func (m Money) Int64() int64             { return int64(m) }
func (m Money) LessThan(o Money) bool    { return m < o }
func (m Money) GreaterThan(o Money) bool { return m > o }

// Cmp returns -1, 0 or +1 as m is less than, equal to or greater than o.
func (m Money) Cmp(o Money) int {
	switch {
	case m < o:
		return -1
	case m > o:
		return 1
	}
	return 0
}

// MulQty multiplies by a quantity, failing instead of wrapping on overflow.
func (m Money) MulQty(q int64) (Money, error) {
	if m == 0 || q == 0 {
		return 0, nil
	}
	r := int64(m) * q
	if r/q != int64(m) || (int64(m) == -1 && q == math.MinInt64) || (q == -1 && int64(m) == math.MinInt64) {
		return 0, fmt.Errorf("amount overflow: %d x %d", int64(m), q)
	}
	return Money(r), nil
}

// Sum adds all values.
func Sum(values ...Money) Money {
	var total Money
	for _, v := range values {
		total += v
	}
	return total
}

// =============================================================================
// CURRENCY - Parsing and formatting precision
// =============================================================================

// Currency describes how many minor units make a major unit (10^Exponent).
type Currency struct {
	Code     string
	Exponent int32
}

// KES is the Kenyan Shilling, the default ledger currency.
var KES = Currency{Code: "KES", Exponent: 2}

// Major converts whole major units to Money (Major(1500) == 1500.00).
func (c Currency) Major(units int64) Money {
	return Money(decimal.New(units, c.Exponent).IntPart())
}

// Parse converts a major-unit decimal string into Money.
func (c Currency) Parse(s string) (Money, error) {
	return c.ParseField("amount", s)
}

// ParseField is Parse with the field name reported in validation errors.
func (c Currency) ParseField(field, s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &ValidationError{Field: field, Message: "is required"}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, &ValidationError{Field: field, Message: fmt.Sprintf("%q is not a decimal amount", s)}
	}
	minor := d.Shift(c.Exponent)
	if !minor.IsInteger() {
		return 0, &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%q has more than %d decimal places for %s", s, c.Exponent, c.Code),
		}
	}
	if !minor.BigInt().IsInt64() {
		return 0, &ValidationError{Field: field, Message: fmt.Sprintf("%q is out of range", s)}
	}
	return Money(minor.IntPart()), nil
}

// Decimal returns the major-unit decimal value of m.
func (c Currency) Decimal(m Money) decimal.Decimal {
	return decimal.New(int64(m), -c.Exponent)
}

// Format renders m in major units with exactly Exponent decimal places.
func (c Currency) Format(m Money) string {
	return c.Decimal(m).StringFixed(c.Exponent)
}

// String renders m with the currency code, e.g. "KES 1500.00".
func (c Currency) String(m Money) string {
	return c.Code + " " + c.Format(m)
}
