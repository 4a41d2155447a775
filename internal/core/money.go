// Package core provides money parsing and handling utilities.
//
// Amounts are kept as signed integer cents. Values read back from the stores
// can be numbers of any width or numeric strings, so parsing goes through
// shopspring/decimal and rounds half away from zero on the third decimal place.
package core

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// maxCents bounds parsed amounts so that sums of a month's expenses cannot overflow int64.
const maxCents = int64(1) << 53

// Money is an amount in cents. It may be negative (a month can end with a deficit).
type Money struct {
	Cents int64
}

// Cents builds a Money from a cent count.
func Cents(c int64) Money {
	return Money{Cents: c}
}

// MoneyFromDecimal converts a decimal amount in currency units to Money.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	cents := d.Round(2).Shift(2)
	if cents.Abs().GreaterThan(decimal.NewFromInt(maxCents)) {
		return Money{}, fmt.Errorf("%w: %s out of range", ErrInvalidAmount, d.String())
	}
	return Money{Cents: cents.IntPart()}, nil
}

// ParseAmount converts a raw stored value into Money.
//
// present is false when raw is nil (field absent). Accepted inputs are Go
// integer and float kinds, decimal.Decimal, and numeric strings using either a
// dot or a comma as decimal separator.
//
// Examples:
//
//	ParseAmount(3000)      -> 300000 cents
//	ParseAmount("12,345")  -> 1235 cents
//	ParseAmount("abc")     -> ErrInvalidAmount
func ParseAmount(raw any) (m Money, present bool, err error) {
	if raw == nil {
		return Money{}, false, nil
	}

	var d decimal.Decimal
	switch v := raw.(type) {
	case int:
		d = decimal.NewFromInt(int64(v))
	case int32:
		d = decimal.NewFromInt32(v)
	case int64:
		d = decimal.NewFromInt(v)
	case float32:
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return Money{}, true, fmt.Errorf("%w: %v", ErrInvalidAmount, v)
		}
		d = decimal.NewFromFloat32(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Money{}, true, fmt.Errorf("%w: %v", ErrInvalidAmount, v)
		}
		d = decimal.NewFromFloat(v)
	case decimal.Decimal:
		d = v
	case []byte:
		return ParseAmount(string(v))
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(v), ",", ".")
		if s == "" {
			return Money{}, true, fmt.Errorf("%w: empty string", ErrInvalidAmount)
		}
		d, err = decimal.NewFromString(s)
		if err != nil {
			return Money{}, true, fmt.Errorf("%w: %q", ErrInvalidAmount, v)
		}
	default:
		return Money{}, true, fmt.Errorf("%w: unsupported type %T", ErrInvalidAmount, raw)
	}

	m, err = MoneyFromDecimal(d)
	return m, true, err
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// Sub returns m - o.
func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool {
	return m.Cents < 0
}

// Decimal returns the amount in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Float64 returns the amount in currency units for stores that keep plain
// numbers. Use cents for arithmetic.
func (m Money) Float64() float64 {
	f, _ := m.Decimal().Float64()
	return f
}

// String formats the amount with two decimals, e.g. "-500.00".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}
