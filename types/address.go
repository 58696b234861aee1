package types

import "strings"

// Address identifies a caller: a voter, the owner, or the system account
// that holds collected fees. The engine treats it as opaque and only
// compares for equality. Hex account addresses ("0x" + 40 hex digits) are
// lowercased so checksummed and plain spellings compare equal.
type Address string

// NormalizeAddress trims whitespace and canonicalizes hex account addresses.
func NormalizeAddress(s string) Address {
	s = strings.TrimSpace(s)
	if isHexAccount(s) {
		return Address(strings.ToLower(s))
	}
	return Address(s)
}

// String implements fmt.Stringer.
func (a Address) String() string { return string(a) }

// IsZero reports whether the address is empty.
func (a Address) IsZero() bool { return a == "" }

// Equal compares two addresses after normalization.
func (a Address) Equal(b Address) bool {
	return NormalizeAddress(string(a)) == NormalizeAddress(string(b))
}

// IsHex reports whether the address is a 20-byte hex account address.
func (a Address) IsHex() bool { return isHexAccount(string(a)) }

func isHexAccount(s string) bool {
	if len(s) != 42 || (s[:2] != "0x" && s[:2] != "0X") {
		return false
	}
	for _, r := range s[2:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
