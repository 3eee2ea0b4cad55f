// Package core provides money parsing and handling utilities.
//
// This file contains the Amount type used for every monetary value in the
// ledger: expense prices, budget limits and period sums.
package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a non-negative decimal with exactly two fractional digits.
// It is persisted and rendered in its canonical text form ("23.50").
type Amount struct {
	decimal.Decimal
}

// ZeroAmount returns 0.00.
func ZeroAmount() Amount {
	return Amount{Decimal: decimal.Zero}
}

// NewAmount rounds d half-up to two fractional digits.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d.Round(2)}
}

// ParseAmount converts user input into an Amount with half-up rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and an
// optional leading plus sign. The whole string must be a decimal number:
// empty input, trailing characters, exponents, negative values, NaN and
// infinities are rejected with ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("23.5")   -> 23.50, nil
//	ParseAmount("12,345") -> 12.35, nil (half-up)
//	ParseAmount("0")      -> 0.00, nil
//	ParseAmount("abc")    -> ErrInvalidAmount
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "+")
	if s == "" {
		return Amount{}, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")

	intPart, fracPart, hasDot := strings.Cut(s, ".")
	if intPart == "" && fracPart == "" {
		return Amount{}, ErrInvalidAmount
	}
	if !allDigits(intPart) || !allDigits(fracPart) {
		return Amount{}, ErrInvalidAmount
	}
	if hasDot && strings.Contains(fracPart, ".") {
		return Amount{}, ErrInvalidAmount
	}
	if intPart == "" {
		intPart = "0"
	}

	d, err := decimal.NewFromString(intPart + "." + fracPart + "0")
	if err != nil {
		return Amount{}, ErrInvalidAmount
	}
	return NewAmount(d), nil
}

// MustParseAmount is ParseAmount for constants and tests. It panics on bad input.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic("core: invalid amount " + s)
	}
	return a
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// String returns the canonical representation with two fractional digits.
func (a Amount) String() string {
	return a.Decimal.StringFixed(2)
}

// Plus returns a + b.
func (a Amount) Plus(b Amount) Amount {
	return Amount{Decimal: a.Decimal.Add(b.Decimal)}
}

// Minus returns a - b. The result may be negative (e.g. an overspent budget).
func (a Amount) Minus(b Amount) Amount {
	return Amount{Decimal: a.Decimal.Sub(b.Decimal)}
}

// Balance is a signed amount, such as what is left of a budget. Unlike an
// Amount it may be negative on the wire.
type Balance struct {
	decimal.Decimal
}

// BalanceOf returns a - b.
func BalanceOf(a, b Amount) Balance {
	return Balance{Decimal: a.Decimal.Sub(b.Decimal).Round(2)}
}

func (b Balance) String() string {
	return b.Decimal.StringFixed(2)
}

func (b Balance) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

func (b *Balance) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("balance: %w", err)
	}
	b.Decimal = d.Round(2)
	return nil
}

// Validate reports ErrInvalidAmount for negative values.
func (a Amount) Validate() error {
	if a.Decimal.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

// MarshalJSON encodes the amount as its canonical string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts both "23.50" and 23.5, under the same rules as
// ParseAmount.
func (a *Amount) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return ErrInvalidAmount
		}
		raw = n.String()
	}
	parsed, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
