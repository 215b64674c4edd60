// Package address holds MAC-address functions.
package address

import (
	"fmt"
	"strings"
)

type Address struct {
	Bytes [6]uint8
}

func errInvalidAddress(addr string) error {
	return fmt.Errorf("invalid address format: %s", addr)
}

func NewFromString(addr string) (Address, error) {
	parts := make([]string, 6)
	if len(addr) == 17 && strings.Contains(addr, ":") {
		parts = strings.Split(addr, ":")
		if len(parts) != 6 {
			return Address{}, errInvalidAddress(addr)
		}
	} else if len(addr) == 12 && !strings.Contains(addr, ":") {
		for i := 0; i < 6; i++ {
			parts[i] = addr[i*2 : i*2+2]
		}
	} else {
		return Address{}, errInvalidAddress(addr)
	}
	var address [6]uint8
	for i, part := range parts {
		var b byte
		n, err := fmt.Sscanf(part, "%02x", &b)
		if n != 1 || err != nil {
			return Address{}, errInvalidAddress(addr)
		}
		address[i] = b
	}
	return Address{Bytes: address}, nil
}

func (a Address) ToString() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		a.Bytes[0], a.Bytes[1], a.Bytes[2],
		a.Bytes[3], a.Bytes[4], a.Bytes[5])
}

// ColonHexFromBytes formats raw MAC bytes as lowercase colon-separated hex,
// preserving byte order: [0xAA 0xBB ...] -> "aa:bb:...". A nil or empty
// slice formats as "".
func ColonHexFromBytes(mac []byte) string {
	if len(mac) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(mac)*3 - 1)
	for i, b := range mac {
		if i != 0 {
			sb.WriteByte(':')
		}
		fmt.Fprintf(&sb, "%02x", b)
	}
	return sb.String()
}

// BareHexFromBytes formats raw MAC bytes as uppercase hex with no separator,
// matching the wire form the scripting clients already parse.
func BareHexFromBytes(mac []byte) string {
	var sb strings.Builder
	sb.Grow(len(mac) * 2)
	for _, b := range mac {
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// BytesFromBareHex parses a MAC given as bare hex digits ("AABBCCDDEEFF",
// case-insensitive) into raw bytes.
func BytesFromBareHex(s string) ([]byte, error) {
	if len(s) == 0 || len(s)%2 != 0 {
		return nil, errInvalidAddress(s)
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		var b byte
		n, err := fmt.Sscanf(s[i*2:i*2+2], "%02x", &b)
		if n != 1 || err != nil {
			return nil, errInvalidAddress(s)
		}
		out[i] = b
	}
	return out, nil
}
