package math

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

var (
	ErrOverflow       = errors.New("fixed-point: overflow")
	ErrUnderflow      = errors.New("fixed-point: underflow")
	ErrDivisionByZero = errors.New("fixed-point: division by zero")
	ErrInvalidAmount  = errors.New("fixed-point: invalid amount")
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int32        // Number of decimal places
	Scale            *uint256.Int // 10^DecimalPrecision
}

// NewDecimalConfig builds a config for the given number of decimals.
func NewDecimalConfig(decimals int32) DecimalConfig {
	return DecimalConfig{DecimalPrecision: decimals, Scale: Pow10(uint64(decimals))}
}

var (
	// Standard configs
	WadConfig  = NewDecimalConfig(18) // collateral, debt, USD values, health factors
	FeedConfig = NewDecimalConfig(8)  // raw price feed answers
)

// Pow10 returns 10^n. Panics if n > 77.
func Pow10(n uint64) *uint256.Int {
	if n > 77 {
		panic(fmt.Sprintf("fixed-point: 10^%d does not fit in 256 bits", n))
	}
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(n))
}

// Max returns 2^256-1.
func Max() *uint256.Int {
	return new(uint256.Int).SetAllOne()
}

// Add returns x + y or ErrOverflow.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("%w: %s + %s", ErrOverflow, x.Dec(), y.Dec())
	}
	return z, nil
}

// Sub returns x - y or ErrUnderflow.
func Sub(x, y *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, fmt.Errorf("%w: %s - %s", ErrUnderflow, x.Dec(), y.Dec())
	}
	return z, nil
}

// Mul returns x * y or ErrOverflow.
func Mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("%w: %s * %s", ErrOverflow, x.Dec(), y.Dec())
	}
	return z, nil
}

// Div returns floor(x / y) or ErrDivisionByZero.
func Div(x, y *uint256.Int) (*uint256.Int, error) {
	if y.IsZero() {
		return nil, ErrDivisionByZero
	}
	return new(uint256.Int).Div(x, y), nil
}

// MulDiv returns floor(x * y / d). The product is checked at 256 bits,
// so x*y must fit before the division is applied.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	p, err := Mul(x, y)
	if err != nil {
		return nil, err
	}
	return Div(p, d)
}

// FormatUnits renders x as a decimal string in whole units of cfg,
// e.g. 1500000000000000000 at 18 decimals is "1.5".
func FormatUnits(x *uint256.Int, cfg DecimalConfig) string {
	if x == nil {
		return "0"
	}
	return decimal.NewFromBigInt(x.ToBig(), -cfg.DecimalPrecision).String()
}

// ToFloat converts x in base units of cfg to a float64 in whole units.
// Precision is lost; use only for metrics.
func ToFloat(x *uint256.Int, cfg DecimalConfig) float64 {
	if x == nil {
		return 0
	}
	return decimal.NewFromBigInt(x.ToBig(), -cfg.DecimalPrecision).InexactFloat64()
}

// ParseUnits parses a non-negative decimal string in whole units of cfg
// into base units. More fractional digits than cfg allows is an error.
func ParseUnits(s string, cfg DecimalConfig) (*uint256.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}

	scaled := d.Shift(cfg.DecimalPrecision)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, cfg.DecimalPrecision)
	}

	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("%w: %q", ErrOverflow, s)
	}
	return v, nil
}

// ParseBaseUnits parses an integer amount already expressed in base units.
func ParseBaseUnits(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, s, err)
	}
	return v, nil
}
