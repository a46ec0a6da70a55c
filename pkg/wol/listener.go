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
	"strconv"
	"sync"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/net/ipv4"
)

// PacketHandler is called for every valid magic packet a Listener receives.
type PacketHandler func(mac MACAddress, from *net.UDPAddr)

// Listener receives Wake-on-LAN packets on one UDP address and decodes them.
type Listener struct {
	addr    string
	handler PacketHandler
	log     logr.Logger

	conn     *net.UDPConn
	stopOnce sync.Once
	stopErr  error
	wg       sync.WaitGroup
}

// NewListener creates a new WOL listener on addr (host:port)
func NewListener(addr string, handler PacketHandler, log logr.Logger) *Listener {
	return &Listener{
		addr:    addr,
		handler: handler,
		log:     log,
	}
}

// Start binds the socket and starts the receive loop in the background. The
// listener stops when ctx is done or Stop is called.
func (l *Listener) Start(ctx context.Context) error {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return setBroadcast(c)
		},
	}

	pc, err := lc.ListenPacket(ctx, "udp4", l.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP %s: %w", l.addr, err)
	}
	l.conn = pc.(*net.UDPConn)

	if err := l.conn.SetReadBuffer(1024 * 64); err != nil {
		l.log.Error(err, "Failed to set read buffer size")
	}

	l.log.Info("WOL listener started", "address", l.conn.LocalAddr().String())

	l.wg.Add(1)
	go l.listen()
	context.AfterFunc(ctx, func() { _ = l.Stop() })
	return nil
}

// Run starts the listener and blocks until ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	if err := l.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return l.Stop()
}

// Addr returns the bound address, or nil before Start.
func (l *Listener) Addr() net.Addr {
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Stop closes the socket and waits for the receive loop to exit.
func (l *Listener) Stop() error {
	l.stopOnce.Do(func() {
		if l.conn != nil {
			l.stopErr = l.conn.Close()
		}
		l.wg.Wait()
		l.log.Info("WOL listener stopped")
	})
	return l.stopErr
}

func (l *Listener) listen() {
	defer l.wg.Done()
	buffer := make([]byte, 1024)

	pc := ipv4.NewPacketConn(l.conn)
	if err := pc.SetControlMessage(ipv4.FlagInterface|ipv4.FlagDst, true); err != nil {
		l.log.V(1).Info("Failed to enable IP control messages (continuing)", "error", err)
	}

	for {
		n, cm, src, err := pc.ReadFrom(buffer)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.log.Error(err, "Error reading UDP packet")
			continue
		}

		addr, _ := src.(*net.UDPAddr)
		l.log.V(1).Info("UDP packet received", "from", src.String(), "size", n)
		l.processPacket(buffer[:n], addr, cm)
	}
}

func (l *Listener) processPacket(packet []byte, addr *net.UDPAddr, cm *ipv4.ControlMessage) {
	mac, valid := ParseMagicPacket(packet)
	if !valid {
		InvalidPacketsTotal.Inc()
		l.log.V(1).Info("Invalid WOL packet received", "from", addr.String(), "size", len(packet))
		return
	}

	PacketsReceivedTotal.Inc()
	log := l.log
	if cm != nil {
		log = log.WithValues("dst", cm.Dst.String())
		if ifi, err := net.InterfaceByIndex(cm.IfIndex); err == nil {
			log = log.WithValues("interface", ifi.Name)
		}
	}
	log.Info("Valid WOL packet received", "mac", mac.String(), "from", addr.String())

	if l.handler != nil {
		l.handler(mac, addr)
	}
}

// ListenerGroup is a set of listeners sharing one handler.
type ListenerGroup []*Listener

// ListenPorts starts one listener per port on host. If any port fails to
// bind, the listeners already started are stopped.
func ListenPorts(ctx context.Context, host string, ports []int, handler PacketHandler, log logr.Logger) (ListenerGroup, error) {
	group := make(ListenerGroup, 0, len(ports))
	for _, port := range ports {
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		l := NewListener(addr, handler, log.WithValues("port", port))
		if err := l.Start(ctx); err != nil {
			return nil, multierror.Append(err, group.Stop()).ErrorOrNil()
		}
		group = append(group, l)
	}
	return group, nil
}

// Stop stops every listener and reports all close failures.
func (g ListenerGroup) Stop() error {
	var err error
	for _, l := range g {
		if lErr := l.Stop(); lErr != nil {
			err = multierror.Append(err, fmt.Errorf("error stopping listener %s: %w", l.addr, lErr))
		}
	}
	return err
}
