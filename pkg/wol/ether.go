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
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// EtherTypeWakeOnLAN is the EtherType of raw Ethernet magic packets
const EtherTypeWakeOnLAN = layers.EthernetType(0x0842)

// BuildEthernetFrame wraps the payload of p in a broadcast Ethernet II frame
// with EtherType 0x0842, sent from src.
func BuildEthernetFrame(p MagicPacket, src net.HardwareAddr) ([]byte, error) {
	if len(src) != MACSize {
		return nil, fmt.Errorf("source address %q is not an Ethernet MAC", src.String())
	}

	eth := &layers.Ethernet{
		SrcMAC:       src,
		DstMAC:       layers.EthernetBroadcast,
		EthernetType: EtherTypeWakeOnLAN,
	}

	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, eth, gopacket.Payload(p.payload[:])); err != nil {
		return nil, fmt.Errorf("failed to serialize Ethernet frame: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseEthernetFrame extracts the target and sender MACs from a broadcast
// 0x0842 frame. 802.1Q tagged frames are accepted.
func ParseEthernetFrame(frame []byte) (target MACAddress, src net.HardwareAddr, ok bool) {
	packet := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)

	ethLayer := packet.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		return target, nil, false
	}
	eth := ethLayer.(*layers.Ethernet)
	if !isBroadcastMAC(eth.DstMAC) {
		return target, nil, false
	}

	etherType, payload := eth.EthernetType, eth.Payload
	if dot1q, isTagged := packet.Layer(layers.LayerTypeDot1Q).(*layers.Dot1Q); isTagged {
		etherType, payload = dot1q.Type, dot1q.Payload
	}
	if etherType != EtherTypeWakeOnLAN {
		return target, nil, false
	}

	target, ok = ParseMagicPacket(payload)
	if !ok {
		return target, nil, false
	}
	return target, append(net.HardwareAddr{}, eth.SrcMAC...), true
}

func isBroadcastMAC(b []byte) bool {
	if len(b) != MACSize {
		return false
	}
	for i := 0; i < MACSize; i++ {
		if b[i] != 0xFF {
			return false
		}
	}
	return true
}
