package lifecycle

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var maxBaseUnits = decimal.NewFromUint64(math.MaxUint64)

// ScaleAmount converts a display amount to base units:
// floor(display * 10^decimals). The result must fit in a uint64.
func ScaleAmount(display string, decimals uint8) (uint64, error) {
	d, err := ParseDisplayAmount(display)
	if err != nil {
		return 0, err
	}

	scaled := d.Shift(int32(decimals)).Floor()
	if scaled.GreaterThan(maxBaseUnits) {
		return 0, fmt.Errorf("amount %s is too large for %d decimals", display, decimals)
	}
	return scaled.BigInt().Uint64(), nil
}

// ParseDisplayAmount parses a non-negative decimal amount.
func ParseDisplayAmount(display string) (decimal.Decimal, error) {
	s := strings.TrimSpace(display)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q is not a number", display)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount must not be negative")
	}
	return d, nil
}

// MaxDecimals is the largest precision accepted for a new mint.
const MaxDecimals = 9

// ParseDecimals parses a mint precision in [0, MaxDecimals].
func ParseDecimals(s string) (uint8, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("decimals is required")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("decimals %q is not an integer", s)
	}
	if n < 0 || n > MaxDecimals {
		return 0, fmt.Errorf("decimals must be between 0 and %d", MaxDecimals)
	}
	return uint8(n), nil
}
