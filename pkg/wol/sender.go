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
	"io"
	"net"
	"syscall"
	"time"

	"github.com/go-logr/logr"
)

const (
	// DefaultSource binds any interface on an ephemeral port
	DefaultSource = "0.0.0.0:0"
	// DefaultDestination is the limited broadcast address on the standard WOL port
	DefaultDestination = "255.255.255.255:9"

	defaultSourceIPv6 = "[::]:0"
)

// DefaultSender is used by MagicPacket.Send and MagicPacket.SendTo.
var DefaultSender = &Sender{}

// Sender transmits magic packets. Every call opens, uses and closes its own
// socket, so a Sender is safe for concurrent use once configured.
type Sender struct {
	// Timeout bounds the datagram write. Zero means no timeout.
	Timeout time.Duration
	// Log receives debug output. The zero value discards.
	Log logr.Logger
}

// NewSender creates a Sender with the given write timeout and logger
func NewSender(timeout time.Duration, log logr.Logger) *Sender {
	return &Sender{
		Timeout: timeout,
		Log:     log,
	}
}

// Send sends p from DefaultSource to DefaultDestination.
func (s *Sender) Send(ctx context.Context, p MagicPacket) (int, error) {
	return s.SendTo(ctx, p, DefaultSource, DefaultDestination)
}

// SendTo binds a broadcast-enabled UDP socket on src and sends the 102-byte
// payload to dst in a single datagram. src and dst are host:port strings; the
// host may be a name or a literal address. The returned count is the number
// of bytes handed to the OS, which is MagicPacketSize on success. Failures
// are *IOError. There is no retry and no acknowledgment.
func (s *Sender) SendTo(ctx context.Context, p MagicPacket, src, dst string) (int, error) {
	log := s.logger()

	dstAddr, err := net.ResolveUDPAddr("udp", dst)
	if err != nil {
		return 0, s.fail("resolve", fmt.Errorf("destination %q: %w", dst, err))
	}

	network := "udp4"
	if dstAddr.IP != nil && dstAddr.IP.To4() == nil {
		network = "udp6"
		if src == DefaultSource {
			src = defaultSourceIPv6
		}
	}

	srcAddr, err := net.ResolveUDPAddr(network, src)
	if err != nil {
		return 0, s.fail("resolve", fmt.Errorf("source %q: %w", src, err))
	}

	var sockoptErr error
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			sockoptErr = setBroadcast(c)
			return sockoptErr
		},
	}

	conn, err := lc.ListenPacket(ctx, network, srcAddr.String())
	if err != nil {
		if sockoptErr != nil {
			return 0, s.fail("setsockopt", fmt.Errorf("SO_BROADCAST: %w", sockoptErr))
		}
		return 0, s.fail("bind", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Error(err, "Failed to close UDP socket")
		}
	}()

	if deadline, ok := s.deadline(ctx); ok {
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return 0, s.fail("setsockopt", err)
		}
	}

	n, err := conn.WriteTo(p.payload[:], dstAddr)
	if err != nil {
		return n, s.fail("send", err)
	}
	if n != MagicPacketSize {
		return n, s.fail("send", io.ErrShortWrite)
	}

	PacketsSentTotal.Inc()
	BytesSentTotal.Add(float64(n))

	log.V(1).Info("Magic packet sent",
		"mac", p.mac.String(),
		"source", conn.LocalAddr().String(),
		"destination", dstAddr.String(),
		"bytes", n)

	return n, nil
}

// deadline returns the earlier of the context deadline and now+Timeout
func (s *Sender) deadline(ctx context.Context) (time.Time, bool) {
	deadline, ok := ctx.Deadline()
	if s.Timeout > 0 {
		t := time.Now().Add(s.Timeout)
		if !ok || t.Before(deadline) {
			deadline, ok = t, true
		}
	}
	return deadline, ok
}

func (s *Sender) fail(op string, err error) error {
	SendErrorsTotal.WithLabelValues(op).Inc()
	return &IOError{Op: op, Err: err}
}

func (s *Sender) logger() logr.Logger {
	if s.Log.GetSink() == nil {
		return logr.Discard()
	}
	return s.Log
}
