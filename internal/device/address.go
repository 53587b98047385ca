package device

import (
	"fmt"
	"strconv"
	"strings"
)

// Address is a 48-bit Bluetooth device address in display order (most significant byte first).
type Address [6]byte

// String formats the address as XX:XX:XX:XX:XX:XX.
func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// Reversed returns the address in little-endian order, as the Linux kernel stores bdaddr_t.
func (a Address) Reversed() [6]byte {
	var b [6]byte
	for i := range a {
		b[i] = a[len(a)-1-i]
	}
	return b
}

// ParseAddress parses "AA:BB:CC:DD:EE:FF". Dashes and lowercase are accepted.
func ParseAddress(s string) (Address, error) {
	var a Address
	parts := strings.FieldsFunc(strings.TrimSpace(s), func(r rune) bool { return r == ':' || r == '-' })
	if len(parts) != len(a) {
		return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	for i, p := range parts {
		if len(p) != 2 {
			return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		a[i] = byte(v)
	}
	return a, nil
}

// NormalizeAddress returns the canonical upper-case colon form, or "" if s is not an address.
func NormalizeAddress(s string) string {
	a, err := ParseAddress(s)
	if err != nil {
		return ""
	}
	return a.String()
}

// ValidateAddress validates that address strings are non-empty and well-formed.
// Returns normalized addresses or an error.
func ValidateAddress(addresses ...string) ([]string, error) {
	if len(addresses) == 0 {
		return nil, fmt.Errorf("at least one address is required")
	}

	result := make([]string, 0, len(addresses))
	for i, addr := range addresses {
		if addr == "" {
			return nil, fmt.Errorf("address at index %d cannot be empty", i)
		}
		normalized := NormalizeAddress(addr)
		if normalized == "" {
			return nil, fmt.Errorf("invalid address format at index %d: %s", i, addr)
		}
		result = append(result, normalized)
	}
	return result, nil
}
