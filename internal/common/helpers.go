package common

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

const (
	NEARDecimals = 24 // 1 NEAR = 10^24 yoctoNEAR

	// TGas is 10^12 gas units.
	TGas uint64 = 1_000_000_000_000
	// DefaultGas is the allowance attached to every linkdrop call (300 TGas).
	DefaultGas = 300 * TGas
)

// ErrAmountOverflow is returned when an amount does not fit into the 128-bit
// balance type used on chain.
var ErrAmountOverflow = errors.New("amount exceeds u128")

// ErrTooPrecise is returned for amounts finer than the smallest unit
var ErrTooPrecise = errors.New("amount is finer than the smallest unit")

// NEARToYocto converts NEAR string to yoctoNEAR without float precision loss
func NEARToYocto(near string) (*uint256.Int, error) {
	v, err := parseWithDecimals(near, NEARDecimals)
	if err != nil {
		return nil, err
	}
	if v.BitLen() > 128 {
		return nil, ErrAmountOverflow
	}
	return v, nil
}

// YoctoToNEAR converts yoctoNEAR to NEAR string without float precision loss
func YoctoToNEAR(yocto *uint256.Int) string {
	return formatWithDecimals(yocto, NEARDecimals)
}

// ParseYocto parses a plain decimal yoctoNEAR string as returned by the node.
func ParseYocto(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty string")
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid yocto amount '%s': %w", s, err)
	}
	return v, nil
}

// formatWithDecimals converts integer to decimal string by inserting decimal point
// Example: formatWithDecimals(22820000000000000000000, 24) = "0.022820000000000000000000"
func formatWithDecimals(value *uint256.Int, decimals int) string {
	s := value.Dec()

	// Pad with leading zeros if needed
	for len(s) <= decimals {
		s = "0" + s
	}

	// Insert decimal point
	pos := len(s) - decimals
	return s[:pos] + "." + s[pos:]
}

// parseWithDecimals converts decimal string to integer by removing decimal point
// Example: parseWithDecimals("0.02282", 24) = 22820000000000000000000
func parseWithDecimals(s string, decimals int) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty string")
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("invalid decimal format")
	}

	whole := parts[0]
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if whole == "" {
		whole = "0"
	}

	if len(frac) > decimals {
		return nil, fmt.Errorf("%w: more than %d fractional digits", ErrTooPrecise, decimals)
	}
	frac += strings.Repeat("0", decimals-len(frac))

	combined := strings.TrimLeft(whole+frac, "0")
	if combined == "" {
		return new(uint256.Int), nil
	}
	for _, r := range combined {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("invalid decimal format")
		}
	}

	v, err := uint256.FromDecimal(combined)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// CompareNEARAmounts compares two NEAR decimal string amounts without float precision loss.
// Returns: -1 if a < b, 0 if a == b, 1 if a > b, and error if parsing fails
func CompareNEARAmounts(a, b string) (int, error) {
	aVal, err := parseWithDecimals(a, NEARDecimals)
	if err != nil {
		return 0, fmt.Errorf("failed to parse amount '%s': %w", a, err)
	}

	bVal, err := parseWithDecimals(b, NEARDecimals)
	if err != nil {
		return 0, fmt.Errorf("failed to parse amount '%s': %w", b, err)
	}

	return aVal.Cmp(bVal), nil
}
