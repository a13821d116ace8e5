package txproc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrMissingArgument is returned when a decoded call lacks an argument
	// its function requires.
	ErrMissingArgument = errors.New("missing call argument")

	// ErrInvalidArgument is returned when an argument is present but cannot
	// be coerced to the type the function requires.
	ErrInvalidArgument = errors.New("invalid call argument")
)

// Arguments is the decoded argument mapping of a call, as produced by the
// decoder and stored as JSON. Values arrive as JSON strings and numbers, but
// the getters also accept native Go types so arguments can be built directly
// in code.
type Arguments map[string]any

// Has reports whether the argument is present at all, regardless of its type.
func (a Arguments) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// Address returns the named argument as an address.
func (a Arguments) Address(name string) (common.Address, error) {
	raw, ok := a[name]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrMissingArgument, name)
	}

	switch v := raw.(type) {
	case common.Address:
		return v, nil
	case string:
		if !common.IsHexAddress(v) {
			return common.Address{}, fmt.Errorf("%w: %s is not an address", ErrInvalidArgument, name)
		}
		return common.HexToAddress(v), nil
	default:
		return common.Address{}, fmt.Errorf("%w: %s is not an address", ErrInvalidArgument, name)
	}
}

// AddressList returns the named argument as a list of addresses.
func (a Arguments) AddressList(name string) ([]common.Address, error) {
	raw, ok := a[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingArgument, name)
	}

	switch v := raw.(type) {
	case []common.Address:
		return v, nil
	case []string:
		out := make([]common.Address, 0, len(v))
		for _, item := range v {
			if !common.IsHexAddress(item) {
				return nil, fmt.Errorf("%w: %s holds a non address entry", ErrInvalidArgument, name)
			}
			out = append(out, common.HexToAddress(item))
		}
		return out, nil
	case []any:
		out := make([]common.Address, 0, len(v))
		for _, item := range v {
			entry, ok := item.(string)
			if !ok || !common.IsHexAddress(entry) {
				return nil, fmt.Errorf("%w: %s holds a non address entry", ErrInvalidArgument, name)
			}
			out = append(out, common.HexToAddress(entry))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s is not an address list", ErrInvalidArgument, name)
	}
}

// Hash returns the named argument as a 32 byte hash.
func (a Arguments) Hash(name string) (common.Hash, error) {
	raw, ok := a[name]
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrMissingArgument, name)
	}

	switch v := raw.(type) {
	case common.Hash:
		return v, nil
	case string:
		return common.HexToHash(v), nil
	case []byte:
		return common.BytesToHash(v), nil
	default:
		return common.Hash{}, fmt.Errorf("%w: %s is not a hash", ErrInvalidArgument, name)
	}
}

// Bytes returns the named argument as a byte payload. Hex strings are
// decoded, with or without their 0x prefix.
func (a Arguments) Bytes(name string) ([]byte, error) {
	raw, ok := a[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingArgument, name)
	}

	switch v := raw.(type) {
	case []byte:
		return v, nil
	case string:
		return common.FromHex(v), nil
	default:
		return nil, fmt.Errorf("%w: %s is not a byte payload", ErrInvalidArgument, name)
	}
}

// BigInt returns the named argument as an arbitrary precision integer, which
// on-chain amounts require since they routinely exceed 64 bits.
func (a Arguments) BigInt(name string) (*big.Int, error) {
	raw, ok := a[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingArgument, name)
	}

	switch v := raw.(type) {
	case *big.Int:
		return v, nil
	case json.Number:
		return parseBigInt(name, string(v))
	case string:
		return parseBigInt(name, v)
	case float64:
		return big.NewInt(int64(v)), nil
	case int:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("%w: %s is not an integer", ErrInvalidArgument, name)
	}
}

// Uint64 returns the named argument as an unsigned 64 bit integer, rejecting
// negative values and anything wider.
func (a Arguments) Uint64(name string) (uint64, error) {
	value, err := a.BigInt(name)
	if err != nil {
		return 0, err
	}

	if !value.IsUint64() {
		return 0, fmt.Errorf("%w: %s does not fit an unsigned 64 bit integer", ErrInvalidArgument, name)
	}

	return value.Uint64(), nil
}

func parseBigInt(name, raw string) (*big.Int, error) {
	var (
		value = new(big.Int)
		ok    bool
	)

	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		_, ok = value.SetString(raw[2:], 16)
	} else {
		_, ok = value.SetString(raw, 10)
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s is not an integer", ErrInvalidArgument, name)
	}

	return value, nil
}
