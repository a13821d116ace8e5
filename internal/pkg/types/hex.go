package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Hex represents a hexadecimal-encoded quantity as a string (e.g., "0x1a"),
// the format Ethereum JSON-RPC nodes use for numbers. It validates on
// unmarshal and converts to int64 or big.Int. Values wider than 64 bits
// (wei amounts) are valid and must be read through Big.
type Hex string

// HexFromString validates the input string and returns a Hex value if valid.
func HexFromString(s string) (Hex, error) {
	if err := validateHex(s); err != nil {
		return "", err
	}
	return Hex(s), nil
}

// validateHex checks whether a string is a hexadecimal quantity starting with
// "0x" or "0X". Width is unbounded: trace value fields routinely exceed 64 bits.
func validateHex(s string) error {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return fmt.Errorf("hex string must start with 0x")
	}

	if _, ok := new(big.Int).SetString(s[2:], 16); !ok {
		return fmt.Errorf("invalid hexadecimal value: %q", s)
	}

	return nil
}

// MarshalJSON encodes the Hex as a JSON string.
func (h Hex) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(h))
}

// UnmarshalJSON parses and validates a JSON-encoded hexadecimal string.
func (h *Hex) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid hex string: %w", err)
	}

	if err := validateHex(s); err != nil {
		return err
	}

	*h = Hex(s)
	return nil
}

// Add returns a new Hex representing the result of adding n to the current value.
// If the original value is invalid, it treats it as zero.
func (h Hex) Add(n int64) Hex {
	sum := h.Int() + n
	return Hex(fmt.Sprintf("0x%x", sum))
}

// Int returns the decoded int64 value. Returns zero when the value is invalid
// or does not fit in 64 bits; use Big for unbounded quantities.
func (h Hex) Int() int64 {
	if len(h) < 3 {
		return 0
	}
	v, _ := strconv.ParseInt(string(h)[2:], 16, 64)
	return v
}

// Uint64 returns the decoded uint64 value, zero when invalid or too wide.
func (h Hex) Uint64() uint64 {
	if len(h) < 3 {
		return 0
	}
	v, _ := strconv.ParseUint(string(h)[2:], 16, 64)
	return v
}

// Big returns the decoded value as a big.Int. Invalid values decode to zero.
func (h Hex) Big() *big.Int {
	if len(h) < 3 {
		return new(big.Int)
	}
	v, ok := new(big.Int).SetString(string(h)[2:], 16)
	if !ok {
		return new(big.Int)
	}
	return v
}
