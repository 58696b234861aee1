// Package types provides common types used across ballot.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// ErrInvalidAmount is returned when text or a big integer cannot be
// represented as a token amount.
var ErrInvalidAmount = errors.New("amount: invalid value")

// Amount is a non-negative token quantity in the token's smallest unit
// (wei for 18-decimal tokens). All arithmetic is unsigned 256-bit integer
// arithmetic, matching the range of an ERC-20 balance.
//
// The zero value is a valid zero amount.
type Amount struct {
	v uint256.Int
}

// NewAmount creates an Amount from a base-unit integer.
func NewAmount(units uint64) Amount {
	var a Amount
	a.v.SetUint64(units)
	return a
}

// ParseAmount parses a decimal string of base units, e.g. "5000000000000000000".
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}
	v, err := uint256.FromDecimal(trimZeros(s))
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, s, err)
	}
	return Amount{v: *v}, nil
}

// MustParseAmount is like ParseAmount but panics on error.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// ParseUnits parses a human amount in major units ("5", "2.5") and scales it
// by 10^decimals. ParseUnits("5", 18) equals 5 * 10^18 base units.
func ParseUnits(s string, decimals uint8) (Amount, error) {
	s = strings.TrimSpace(s)
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return Amount{}, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}
	if len(frac) > int(decimals) {
		return Amount{}, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, decimals)
	}
	if whole == "" {
		whole = "0"
	}
	digits := whole + frac + strings.Repeat("0", int(decimals)-len(frac))
	for _, r := range digits {
		if r < '0' || r > '9' {
			return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
	}
	return ParseAmount(digits)
}

// MustParseUnits is like ParseUnits but panics on error.
func MustParseUnits(s string, decimals uint8) Amount {
	a, err := ParseUnits(s, decimals)
	if err != nil {
		panic(err)
	}
	return a
}

// AmountFromBig converts a big integer, rejecting negatives and values
// wider than 256 bits.
func AmountFromBig(b *big.Int) (Amount, error) {
	if b == nil {
		return Amount{}, nil
	}
	if b.Sign() < 0 {
		return Amount{}, fmt.Errorf("%w: negative %s", ErrInvalidAmount, b)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return Amount{}, fmt.Errorf("%w: %s overflows 256 bits", ErrInvalidAmount, b)
	}
	return Amount{v: *v}, nil
}

// BigInt returns the amount as a new big integer.
func (a Amount) BigInt() *big.Int { return a.v.ToBig() }

// Add returns a+b. Panics on 256-bit overflow.
func (a Amount) Add(b Amount) Amount {
	var out Amount
	if _, overflow := out.v.AddOverflow(&a.v, &b.v); overflow {
		panic("amount: addition overflow")
	}
	return out
}

// Sub returns a-b. Panics if b > a; callers check with LessThan first.
func (a Amount) Sub(b Amount) Amount {
	var out Amount
	if _, underflow := out.v.SubOverflow(&a.v, &b.v); underflow {
		panic("amount: subtraction underflow")
	}
	return out
}

// Cmp compares a and b and returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

// Float64 returns the nearest float64 in base units. It is meant for
// metrics, never for arithmetic.
func (a Amount) Float64() float64 {
	f, _ := new(big.Float).SetInt(a.v.ToBig()).Float64()
	return f
}

// IsZero returns true if the amount is zero.
func (a Amount) IsZero() bool { return a.v.IsZero() }

// Equal reports whether both amounts are equal.
func (a Amount) Equal(b Amount) bool { return a.v.Eq(&b.v) }

// LessThan reports whether a < b.
func (a Amount) LessThan(b Amount) bool { return a.v.Lt(&b.v) }

// String returns the base-unit decimal representation.
func (a Amount) String() string { return a.v.Dec() }

// FormatUnits renders the amount in major units, trimming trailing zeros:
// 2500000000000000000 with 18 decimals is "2.5".
func (a Amount) FormatUnits(decimals uint8) string {
	s := a.v.Dec()
	if decimals == 0 {
		return s
	}
	d := int(decimals)
	if len(s) <= d {
		s = strings.Repeat("0", d-len(s)+1) + s
	}
	whole, frac := s[:len(s)-d], strings.TrimRight(s[len(s)-d:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

// MarshalJSON encodes the amount as a quoted base-unit string so values
// above 2^53 survive JavaScript clients.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.v.Dec())
}

// UnmarshalJSON accepts a quoted base-unit string or a bare JSON number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (a Amount) MarshalText() ([]byte, error) { return []byte(a.v.Dec()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(data []byte) error {
	parsed, err := ParseAmount(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Unit describes how a token's base units are presented.
type Unit struct {
	Symbol   string `json:"symbol" yaml:"symbol"`
	Decimals uint8  `json:"decimals" yaml:"decimals"`
}

// DefaultUnit matches the fee token the system was first deployed with.
var DefaultUnit = Unit{Symbol: "USDT", Decimals: 18}

// Format renders an amount as "2.5 USDT".
func (u Unit) Format(a Amount) string {
	if u.Symbol == "" {
		return a.FormatUnits(u.Decimals)
	}
	return a.FormatUnits(u.Decimals) + " " + u.Symbol
}

// Parse parses a major-unit string in this unit.
func (u Unit) Parse(s string) (Amount, error) {
	return ParseUnits(s, u.Decimals)
}

func trimZeros(s string) string {
	t := strings.TrimLeft(s, "0")
	if t == "" {
		return "0"
	}
	return t
}
