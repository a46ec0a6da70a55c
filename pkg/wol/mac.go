/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package wol

import (
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"unicode/utf8"
)

// MACSize is the length of an Ethernet MAC address in bytes
const MACSize = 6

// MACAddress is a 6-byte hardware address. It is a value type and never
// changes once built.
type MACAddress [MACSize]byte

// MACFromBytes accepts exactly 6 raw bytes.
func MACFromBytes(b []byte) (MACAddress, error) {
	var mac MACAddress
	if len(b) != MACSize {
		return mac, &InvalidLengthError{Origin: OriginBytes, Length: len(b)}
	}
	copy(mac[:], b)
	return mac, nil
}

// ParseMAC decodes a delimited hex MAC such as "01:02:03:04:05:06".
//
// Every occurrence of sep is dropped before decoding, wherever it appears, so
// "0102:03040506" is accepted and "01002:03:04:05:06" decodes to the wrong
// number of bytes. Hex characters are checked before the length, so a bad
// character is always reported as *HexDecodeError even when the length is
// also wrong.
func ParseMAC(input string, sep rune) (MACAddress, error) {
	var mac MACAddress

	digits := strings.ReplaceAll(input, string(sep), "")

	for i := 0; i < len(digits); i++ {
		if !isHexDigit(digits[i]) {
			r, _ := utf8.DecodeRuneInString(digits[i:])
			return mac, &HexDecodeError{Char: r, Index: i}
		}
	}

	if len(digits)%2 != 0 || len(digits)/2 != MACSize {
		return mac, &InvalidLengthError{Origin: OriginText, Length: len(digits) / 2, Digits: len(digits)}
	}

	if _, err := hex.Decode(mac[:], []byte(digits)); err != nil {
		// unreachable after the digit scan above
		return mac, fmt.Errorf("failed to decode MAC %q: %w", input, err)
	}
	return mac, nil
}

// String formats the address lowercase with colons.
func (m MACAddress) String() string {
	return net.HardwareAddr(m[:]).String()
}

// HardwareAddr returns a fresh net.HardwareAddr holding the address.
func (m MACAddress) HardwareAddr() net.HardwareAddr {
	hw := make(net.HardwareAddr, MACSize)
	copy(hw, m[:])
	return hw
}

func isHexDigit(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
