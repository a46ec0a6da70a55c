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
	"errors"
	"fmt"
)

// ErrInvalidLength matches every *InvalidLengthError via errors.Is.
var ErrInvalidLength = errors.New("invalid MAC address length")

// Origin tells where a rejected byte sequence came from.
type Origin int

const (
	// OriginText is a MAC decoded from a delimited hex string
	OriginText Origin = iota
	// OriginBytes is a MAC supplied as raw bytes
	OriginBytes
)

func (o Origin) String() string {
	if o == OriginBytes {
		return "bytes"
	}
	return "text"
}

// HexDecodeError reports a non-hexadecimal character in a MAC string.
// Index is the position in the character run left after separators are removed.
type HexDecodeError struct {
	Char  rune
	Index int
}

func (e *HexDecodeError) Error() string {
	return fmt.Sprintf("invalid hex character %q at index %d", e.Char, e.Index)
}

// InvalidLengthError reports a decoded or supplied MAC that is not 6 bytes long.
// For OriginText, Digits is the number of hex digits left after separators
// are removed and Length is the number of whole bytes they make.
type InvalidLengthError struct {
	Origin Origin
	Length int
	Digits int
}

func (e *InvalidLengthError) Error() string {
	if e.Origin == OriginText {
		return fmt.Sprintf("%s: got %d hex digits from text, want %d", ErrInvalidLength, e.Digits, MACSize*2)
	}
	return fmt.Sprintf("%s: got %d bytes from %s, want %d", ErrInvalidLength, e.Length, e.Origin, MACSize)
}

func (e *InvalidLengthError) Is(target error) bool {
	return target == ErrInvalidLength
}

// IOError wraps a failed socket operation. Op is one of resolve, bind,
// setsockopt, send or unsupported.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("wol %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Kind classifies errors returned by this package.
type Kind int

const (
	KindUnknown Kind = iota
	KindHexDecode
	KindInvalidLength
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindHexDecode:
		return "HexDecode"
	case KindInvalidLength:
		return "InvalidLength"
	case KindIO:
		return "IO"
	default:
		return "Unknown"
	}
}

// ErrorKind returns the Kind of err, looking through wrapping.
func ErrorKind(err error) Kind {
	var hexErr *HexDecodeError
	var lenErr *InvalidLengthError
	var ioErr *IOError
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &hexErr):
		return KindHexDecode
	case errors.As(err, &lenErr):
		return KindInvalidLength
	case errors.As(err, &ioErr):
		return KindIO
	default:
		return KindUnknown
	}
}
