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
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"golang.org/x/sys/unix"
)

// EthernetHandler is called for every valid 0x0842 frame an
// EthernetListener receives.
type EthernetHandler func(mac MACAddress, from net.HardwareAddr)

// EthernetListener receives raw Ethernet magic packets on one interface.
// It needs CAP_NET_RAW.
type EthernetListener struct {
	interfaceName string
	handler       EthernetHandler
	log           logr.Logger

	fd       int
	stopOnce sync.Once
	closed   atomic.Bool
	wg       sync.WaitGroup
}

// NewEthernetListener creates a listener bound to interfaceName on Start.
func NewEthernetListener(interfaceName string, handler EthernetHandler, log logr.Logger) *EthernetListener {
	return &EthernetListener{
		interfaceName: interfaceName,
		handler:       handler,
		log:           log,
		fd:            -1,
	}
}

// Start opens the AF_PACKET socket and starts the receive loop.
func (r *EthernetListener) Start(ctx context.Context) error {
	ifi, err := net.InterfaceByName(r.interfaceName)
	if err != nil {
		return fmt.Errorf("failed to get interface %s: %w", r.interfaceName, err)
	}

	proto := htons(uint16(EtherTypeWakeOnLAN))
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(proto))
	if err != nil {
		return fmt.Errorf("failed to create raw socket: %w (requires CAP_NET_RAW)", err)
	}

	if err := unix.Bind(fd, &unix.SockaddrLinklayer{Protocol: proto, Ifindex: ifi.Index}); err != nil {
		unix.Close(fd)
		return fmt.Errorf("failed to bind to interface %s: %w", ifi.Name, err)
	}

	// ldh [12]; jeq #0x0842; ret #0x40000; ret #0
	filter := []unix.SockFilter{
		{Code: 0x28, K: 12},
		{Code: 0x15, Jt: 0, Jf: 1, K: uint32(EtherTypeWakeOnLAN)},
		{Code: 0x6, K: 0x00040000},
		{Code: 0x6, K: 0},
	}
	prog := unix.SockFprog{Len: uint16(len(filter)), Filter: &filter[0]}
	if err := unix.SetsockoptSockFprog(fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, &prog); err != nil {
		r.log.V(1).Info("Failed to attach BPF filter (continuing)", "error", err)
	}

	// Recvfrom returns periodically so the loop notices Stop
	tv := unix.Timeval{Sec: 1}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		r.log.V(1).Info("Failed to set SO_RCVTIMEO (continuing)", "error", err)
	}

	r.fd = fd
	r.log.Info("Raw Ethernet WOL listener started",
		"interface", ifi.Name,
		"mac", ifi.HardwareAddr.String())

	r.wg.Add(1)
	go r.listen()
	context.AfterFunc(ctx, r.Stop)
	return nil
}

// Stop closes the socket and waits for the receive loop to exit.
func (r *EthernetListener) Stop() {
	r.stopOnce.Do(func() {
		r.closed.Store(true)
		r.wg.Wait()
		if r.fd >= 0 {
			if err := unix.Close(r.fd); err != nil {
				r.log.Error(err, "Failed to close raw socket")
			}
		}
		r.log.Info("Raw Ethernet WOL listener stopped")
	})
}

func (r *EthernetListener) listen() {
	defer r.wg.Done()
	// room for an 802.1Q tag on a 1500 byte MTU
	buffer := make([]byte, 2000)

	for !r.closed.Load() {
		n, _, err := unix.Recvfrom(r.fd, buffer, 0)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			if r.closed.Load() {
				return
			}
			r.log.Error(err, "Error reading raw packet")
			continue
		}

		mac, src, ok := ParseEthernetFrame(buffer[:n])
		if !ok {
			InvalidPacketsTotal.Inc()
			continue
		}

		PacketsReceivedTotal.Inc()
		r.log.Info("Valid WOL packet received (raw Ethernet)",
			"mac", mac.String(),
			"sourceMAC", src.String(),
			"interface", r.interfaceName)

		if r.handler != nil {
			r.handler(mac, src)
		}
	}
}
