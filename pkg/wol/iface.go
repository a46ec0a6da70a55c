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
	"sort"

	"github.com/go-logr/logr"
)

// BroadcastIPAddress returns the directed broadcast address of ipnet: the
// network address with every host bit set. 192.168.1.0/24 => 192.168.1.255
// It returns nil when the address and mask lengths do not match.
func BroadcastIPAddress(ipnet *net.IPNet) net.IP {
	ip := ipnet.IP
	if ip4 := ip.To4(); ip4 != nil && len(ipnet.Mask) == net.IPv4len {
		ip = ip4
	}
	if len(ip) == 0 || len(ip) != len(ipnet.Mask) {
		return nil
	}
	b := make(net.IP, len(ip))
	for i := range b {
		b[i] = ip[i] | ^ipnet.Mask[i]
	}
	return b
}

// InterfaceBroadcast returns the directed broadcast address of the first
// IPv4 network configured on the named interface.
func InterfaceBroadcast(name string) (net.IP, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("failed to get interface %s: %w", name, err)
	}
	if ifi.Flags&net.FlagBroadcast == 0 {
		return nil, fmt.Errorf("interface %s does not support broadcast", name)
	}

	addrs, err := ifi.Addrs()
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses of %s: %w", name, err)
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.To4() == nil {
			continue
		}
		return BroadcastIPAddress(&net.IPNet{IP: ipnet.IP.To4().Mask(ipnet.Mask), Mask: ipnet.Mask}), nil
	}
	return nil, fmt.Errorf("interface %s has no IPv4 address", name)
}

// CandidateInterfaces returns up, broadcast-capable, non-loopback interfaces
// with an Ethernet address, sorted by name.
func CandidateInterfaces(log logr.Logger) ([]net.Interface, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var result []net.Interface
	for _, iface := range interfaces {
		if (iface.Flags&net.FlagLoopback) != 0 || (iface.Flags&net.FlagUp) == 0 {
			continue
		}
		if (iface.Flags & net.FlagBroadcast) == 0 {
			continue
		}
		if len(iface.HardwareAddr) != MACSize {
			log.V(1).Info("Skipping interface without Ethernet address", "interface", iface.Name)
			continue
		}
		result = append(result, iface)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result, nil
}
