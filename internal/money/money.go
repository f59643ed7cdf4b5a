// Package money stores currency values as integer cents so amounts never
// drift the way binary floats do. Parsing and formatting happen at the edges;
// everything in between is int64 arithmetic.
package money

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Cents is a fixed-point USD amount with two fractional digits.
type Cents int64

// ParseDollars parses a "123.45" or "1,234.56" string (no currency symbol)
// into cents. Exactly two fractional digits are required.
func ParseDollars(s string) (Cents, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	whole, frac, ok := strings.Cut(s, ".")
	if !ok || len(frac) != 2 {
		return 0, fmt.Errorf("amount %q: want exactly 2 fractional digits", s)
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", s, err)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", s, err)
	}
	if w < 0 {
		return 0, fmt.Errorf("amount %q: negative", s)
	}
	return Cents(w*100 + f), nil
}

// Dollars formats as "123.45" without a currency symbol.
func (c Cents) Dollars() string {
	neg := ""
	v := int64(c)
	if v < 0 {
		neg = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", neg, v/100, v%100)
}

// String formats as "$123.45".
func (c Cents) String() string {
	return "$" + c.Dollars()
}

// Abs returns the absolute value.
func (c Cents) Abs() Cents {
	if c < 0 {
		return -c
	}
	return c
}

// RoundHalfUp multiplies a total by a ratio and rounds to the nearest cent,
// half away from zero. The ratio comes from configuration (0 < r < 1).
func RoundHalfUp(total Cents, ratio float64) Cents {
	return Cents(math.Floor(float64(total)*ratio + 0.5))
}
