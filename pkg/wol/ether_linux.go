//go:build linux

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
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket/layers"
	"golang.org/x/sys/unix"
)

// SendEthernet transmits p as a raw 0x0842 broadcast frame on the named
// interface. It needs CAP_NET_RAW. The returned count is the magic packet
// payload size, not the frame size.
func (s *Sender) SendEthernet(ctx context.Context, p MagicPacket, ifaceName string) (int, error) {
	log := s.logger()

	ifi, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return 0, s.fail("resolve", fmt.Errorf("interface %s: %w", ifaceName, err))
	}

	frame, err := BuildEthernetFrame(p, ifi.HardwareAddr)
	if err != nil {
		return 0, s.fail("resolve", fmt.Errorf("interface %s: %w", ifi.Name, err))
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(uint16(EtherTypeWakeOnLAN))))
	if err != nil {
		return 0, s.fail("bind", fmt.Errorf("failed to create raw socket: %w (requires CAP_NET_RAW)", err))
	}
	defer func() {
		if err := unix.Close(fd); err != nil {
			log.Error(err, "Failed to close raw socket")
		}
	}()

	if deadline, ok := s.deadline(ctx); ok {
		tv := unix.NsecToTimeval(max(deadline.Sub(time.Now()).Nanoseconds(), 1))
		if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv); err != nil {
			return 0, s.fail("setsockopt", fmt.Errorf("SO_SNDTIMEO: %w", err))
		}
	}

	addr := &unix.SockaddrLinklayer{
		Protocol: htons(uint16(EtherTypeWakeOnLAN)),
		Ifindex:  ifi.Index,
		Halen:    MACSize,
	}
	copy(addr.Addr[:], layers.EthernetBroadcast)

	if err := unix.Sendto(fd, frame, 0, addr); err != nil {
		return 0, s.fail("send", fmt.Errorf("interface %s: %w", ifi.Name, err))
	}

	PacketsSentTotal.Inc()
	BytesSentTotal.Add(MagicPacketSize)

	log.V(1).Info("Magic packet sent (raw Ethernet)",
		"mac", p.mac.String(),
		"interface", ifi.Name,
		"sourceMAC", ifi.HardwareAddr.String(),
		"frameSize", len(frame))

	return MagicPacketSize, nil
}

// htons converts uint16 from host to network byte order (big-endian)
func htons(v uint16) uint16 { return (v << 8) | (v >> 8) }
