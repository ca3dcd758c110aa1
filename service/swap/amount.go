package swap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidPercent is returned for a sell share outside (0, 100].
var ErrInvalidPercent = errors.New("percent must be greater than 0 and at most 100")

var hundred = decimal.NewFromInt(100)

// ParsePercent reads a share such as "100", "37.5" or "25%".
func ParsePercent(s string) (decimal.Decimal, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	p, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid percent %q: %w", s, err)
	}
	if p.Sign() <= 0 || p.GreaterThan(hundred) {
		return decimal.Zero, fmt.Errorf("%w: got %s", ErrInvalidPercent, p)
	}
	return p, nil
}

// PercentOf returns floor(balance * percent / 100) in base units.
func PercentOf(balance uint64, percent decimal.Decimal) (uint64, error) {
	if percent.Sign() <= 0 || percent.GreaterThan(hundred) {
		return 0, fmt.Errorf("%w: got %s", ErrInvalidPercent, percent)
	}
	amount := decimal.NewFromUint64(balance).Mul(percent).Div(hundred).Floor()
	return amount.BigInt().Uint64(), nil
}
