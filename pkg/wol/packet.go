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
	"bytes"
	"context"
)

const (
	// DefaultWOLPort is the standard Wake-on-LAN UDP port
	DefaultWOLPort = 9
	// HeaderSize is the number of 0xFF synchronization bytes
	HeaderSize = 6
	// MACRepetitions is how many times the target MAC follows the header
	MACRepetitions = 16
	// MagicPacketSize is the size of a WOL magic packet (6 + 6*16 = 102 bytes)
	MagicPacketSize = HeaderSize + MACSize*MACRepetitions
)

// MagicPacket is the 102-byte Wake-on-LAN payload for one target MAC.
type MagicPacket struct {
	mac     MACAddress
	payload [MagicPacketSize]byte
}

// NewMagicPacket expands mac into 6x0xFF followed by mac repeated 16 times.
func NewMagicPacket(mac MACAddress) MagicPacket {
	p := MagicPacket{mac: mac}
	for i := 0; i < HeaderSize; i++ {
		p.payload[i] = 0xFF
	}
	for i := 0; i < MACRepetitions; i++ {
		copy(p.payload[HeaderSize+i*MACSize:], mac[:])
	}
	return p
}

// FromBytes builds a magic packet from a raw 6-byte MAC.
func FromBytes(mac []byte) (MagicPacket, error) {
	m, err := MACFromBytes(mac)
	if err != nil {
		return MagicPacket{}, err
	}
	return NewMagicPacket(m), nil
}

// FromString builds a magic packet from a MAC string delimited by sep,
// e.g. FromString("01:02:03:04:05:06", ':').
func FromString(mac string, sep rune) (MagicPacket, error) {
	m, err := ParseMAC(mac, sep)
	if err != nil {
		return MagicPacket{}, err
	}
	return NewMagicPacket(m), nil
}

// MAC returns the target address.
func (p MagicPacket) MAC() MACAddress {
	return p.mac
}

// Bytes returns a copy of the wire payload.
func (p MagicPacket) Bytes() []byte {
	b := make([]byte, MagicPacketSize)
	copy(b, p.payload[:])
	return b
}

// Send broadcasts the packet from DefaultSource to DefaultDestination.
func (p MagicPacket) Send() (int, error) {
	return DefaultSender.Send(context.Background(), p)
}

// SendTo sends the packet from src to dst, both in host:port form.
func (p MagicPacket) SendTo(src, dst string) (int, error) {
	return DefaultSender.SendTo(context.Background(), p, src, dst)
}

// ParseMagicPacket validates and extracts the MAC address from a WOL magic packet.
// A valid magic packet contains:
// - 6 bytes of 0xFF
// - 16 repetitions of the target MAC address (6 bytes each)
// Bytes after the 102nd are ignored.
func ParseMagicPacket(packet []byte) (MACAddress, bool) {
	var mac MACAddress
	if len(packet) < MagicPacketSize {
		return mac, false
	}

	for i := 0; i < HeaderSize; i++ {
		if packet[i] != 0xFF {
			return mac, false
		}
	}

	first := packet[HeaderSize : HeaderSize+MACSize]
	for i := 1; i < MACRepetitions; i++ {
		offset := HeaderSize + i*MACSize
		if !bytes.Equal(packet[offset:offset+MACSize], first) {
			return mac, false
		}
	}

	copy(mac[:], first)
	return mac, true
}
