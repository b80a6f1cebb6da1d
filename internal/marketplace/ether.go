package marketplace

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
)

const etherDecimals = 18

// ParseEther converts a decimal ether amount such as "0.05" to wei.
func ParseEther(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("marketplace: parse ether %q: %w", s, domain.ErrMalformedValue)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("marketplace: negative ether amount %q: %w", s, domain.ErrMalformedValue)
	}
	wei := d.Shift(etherDecimals)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, fmt.Errorf("marketplace: %q has more than %d decimals: %w", s, etherDecimals, domain.ErrMalformedValue)
	}
	return wei.BigInt(), nil
}

// FormatEther renders wei as a decimal ether string without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -etherDecimals).String()
}
