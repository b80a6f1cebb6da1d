// Package normalize converts the encodings that come back from the ledger and
// the wallet provider into canonical Go values: arbitrary-precision integers,
// addresses and chain ids. Every function is pure.
package normalize

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
)

var maxWord = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

func malformed(format string, args ...any) error {
	return fmt.Errorf("normalize: %s: %w", fmt.Sprintf(format, args...), domain.ErrMalformedValue)
}

// WideInt converts any integer-like ledger value to a fresh *big.Int without
// loss of precision. Negative values are rejected; the ledger has none.
func WideInt(v any) (*big.Int, error) {
	var out *big.Int
	switch x := v.(type) {
	case nil:
		return nil, malformed("nil integer")
	case *big.Int:
		if x == nil {
			return nil, malformed("nil integer")
		}
		out = new(big.Int).Set(x)
	case big.Int:
		out = new(big.Int).Set(&x)
	case *uint256.Int:
		if x == nil {
			return nil, malformed("nil integer")
		}
		out = x.ToBig()
	case uint256.Int:
		out = x.ToBig()
	case uint8:
		out = new(big.Int).SetUint64(uint64(x))
	case uint16:
		out = new(big.Int).SetUint64(uint64(x))
	case uint32:
		out = new(big.Int).SetUint64(uint64(x))
	case uint64:
		out = new(big.Int).SetUint64(x)
	case uint:
		out = new(big.Int).SetUint64(uint64(x))
	case int8:
		out = big.NewInt(int64(x))
	case int16:
		out = big.NewInt(int64(x))
	case int32:
		out = big.NewInt(int64(x))
	case int64:
		out = big.NewInt(x)
	case int:
		out = big.NewInt(int64(x))
	case json.Number:
		return parseIntString(string(x))
	case string:
		return parseIntString(x)
	case []byte:
		if len(x) > 32 {
			return nil, malformed("%d-byte word exceeds 32 bytes", len(x))
		}
		out = new(big.Int).SetBytes(x)
	case [32]byte:
		out = new(big.Int).SetBytes(x[:])
	case common.Hash:
		out = x.Big()
	default:
		return nil, malformed("unsupported integer type %T", v)
	}
	if out.Sign() < 0 {
		return nil, malformed("negative integer %s", out)
	}
	return out, nil
}

func parseIntString(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, malformed("empty integer string")
	}
	if has0x(s) {
		if len(s) == 2 {
			return nil, malformed("empty hex integer")
		}
		n, ok := new(big.Int).SetString(s[2:], 16)
		if !ok {
			return nil, malformed("invalid hex integer %q", s)
		}
		return n, nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, malformed("invalid decimal integer %q", s)
	}
	if n.Sign() < 0 {
		return nil, malformed("negative integer %s", s)
	}
	return n, nil
}

// Word encodes n as the ledger's fixed-width 32-byte big-endian word.
func Word(n *big.Int) ([32]byte, error) {
	var w [32]byte
	if err := checkWord(n); err != nil {
		return w, err
	}
	n.FillBytes(w[:])
	return w, nil
}

// Uint256 converts n to the ledger-native 256-bit unsigned integer.
func Uint256(n *big.Int) (*uint256.Int, error) {
	if err := checkWord(n); err != nil {
		return nil, err
	}
	u, _ := uint256.FromBig(n)
	return u, nil
}

func checkWord(n *big.Int) error {
	if n == nil {
		return malformed("nil integer")
	}
	if n.Sign() < 0 || n.Cmp(maxWord) > 0 {
		return malformed("%s does not fit in 256 bits", n)
	}
	return nil
}

// Bool accepts a bool, a 0/1 integer, or "true"/"false".
func Bool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return false, malformed("invalid boolean %q", x)
		}
		return b, nil
	}
	n, err := WideInt(v)
	if err != nil {
		return false, malformed("invalid boolean %v", v)
	}
	switch {
	case n.Sign() == 0:
		return false, nil
	case n.Cmp(big.NewInt(1)) == 0:
		return true, nil
	default:
		return false, malformed("boolean out of range: %s", n)
	}
}

// Address parses a 20-byte account identifier in any letter case.
func Address(v any) (common.Address, error) {
	switch x := v.(type) {
	case common.Address:
		return x, nil
	case *common.Address:
		if x == nil {
			return common.Address{}, malformed("nil address")
		}
		return *x, nil
	case []byte:
		if len(x) != common.AddressLength {
			return common.Address{}, malformed("address must be 20 bytes, got %d", len(x))
		}
		return common.BytesToAddress(x), nil
	case string:
		s := strings.TrimSpace(x)
		if !has0x(s) || !common.IsHexAddress(s) {
			return common.Address{}, malformed("invalid address %q", x)
		}
		return common.HexToAddress(s), nil
	default:
		return common.Address{}, malformed("unsupported address type %T", v)
	}
}

// AccountKey returns the lowercase 0x-prefixed form used for equality and
// storage.
func AccountKey(v any) (string, error) {
	addr, err := Address(v)
	if err != nil {
		return "", err
	}
	return strings.ToLower(addr.Hex()), nil
}

// SameAddress compares two textual addresses case-insensitively. Malformed
// inputs never match.
func SameAddress(a, b string) bool {
	ka, err := AccountKey(a)
	if err != nil {
		return false
	}
	kb, err := AccountKey(b)
	if err != nil {
		return false
	}
	return ka == kb
}

// DisplayAddress renders a textual address as the user supplied it, or the
// checksummed form for a parsed address.
func DisplayAddress(v any) string {
	switch x := v.(type) {
	case common.Address:
		return x.Hex()
	case string:
		return strings.TrimSpace(x)
	default:
		return fmt.Sprint(v)
	}
}

// ShortAddress abbreviates an address as 0x1234...abcd.
func ShortAddress(s string) string {
	if len(s) <= 10 {
		return s
	}
	return s[:6] + "..." + s[len(s)-4:]
}

// ChainID parses a chain id. Provider events carry "0x"-prefixed base-16
// strings; configuration and APIs use decimal.
func ChainID(v any) (uint64, error) {
	var id uint64
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if has0x(s) {
			n, err := hexutil.DecodeUint64(strings.ToLower(s[:2]) + s[2:])
			if err != nil {
				// hexutil rejects leading zeros; fall back to a plain parse.
				n, err = strconv.ParseUint(s[2:], 16, 64)
				if err != nil {
					return 0, malformed("invalid chain id %q", x)
				}
			}
			id = n
		} else {
			n, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				return 0, malformed("invalid chain id %q", x)
			}
			id = n
		}
	default:
		n, err := WideInt(v)
		if err != nil {
			return 0, err
		}
		if !n.IsUint64() {
			return 0, malformed("chain id %s out of range", n)
		}
		id = n.Uint64()
	}
	if id == 0 {
		return 0, malformed("chain id must be positive")
	}
	return id, nil
}

// HexChainID formats id the way providers expect it.
func HexChainID(id uint64) string {
	return hexutil.EncodeUint64(id)
}

func has0x(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}
