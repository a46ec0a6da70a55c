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
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Sender", func() {
	const (
		timeout  = time.Second * 5
		interval = time.Millisecond * 50
	)

	var (
		ctx    context.Context
		cancel context.CancelFunc
		sender *Sender
		packet MagicPacket
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		sender = NewSender(time.Second, GinkgoLogr)

		var err error
		packet, err = FromString("DE AD BE EF CA FE", ' ')
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		cancel()
	})

	Context("When sending to a local UDP listener", func() {
		It("should deliver exactly the 102-byte payload", func() {
			conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
			Expect(err).NotTo(HaveOccurred())
			defer conn.Close()

			n, err := sender.SendTo(ctx, packet, "127.0.0.1:0", conn.LocalAddr().String())
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(MagicPacketSize))

			Expect(conn.SetReadDeadline(time.Now().Add(timeout))).To(Succeed())
			buf := make([]byte, 1024)
			read, _, err := conn.ReadFromUDP(buf)
			Expect(err).NotTo(HaveOccurred())
			Expect(read).To(Equal(MagicPacketSize))
			Expect(buf[:read]).To(Equal(packet.Bytes()))
		})

		It("should be decoded by a Listener", func() {
			var mu sync.Mutex
			var received []MACAddress

			listener := NewListener("127.0.0.1:0", func(mac MACAddress, _ *net.UDPAddr) {
				mu.Lock()
				defer mu.Unlock()
				received = append(received, mac)
			}, GinkgoLogr)
			Expect(listener.Start(ctx)).To(Succeed())
			defer listener.Stop()

			_, err := packet.SendTo(DefaultSource, listener.Addr().String())
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() []MACAddress {
				mu.Lock()
				defer mu.Unlock()
				return append([]MACAddress{}, received...)
			}, timeout, interval).Should(Equal([]MACAddress{packet.MAC()}))
		})

		It("should ignore datagrams that are not magic packets", func() {
			var calls atomic.Int32
			listener := NewListener("127.0.0.1:0", func(MACAddress, *net.UDPAddr) { calls.Add(1) }, logr.Discard())
			Expect(listener.Start(ctx)).To(Succeed())

			conn, err := net.Dial("udp4", listener.Addr().String())
			Expect(err).NotTo(HaveOccurred())
			defer conn.Close()
			_, err = conn.Write([]byte("hello"))
			Expect(err).NotTo(HaveOccurred())

			Consistently(func() int32 { return calls.Load() }, 200*time.Millisecond, interval).Should(BeZero())
			Expect(listener.Stop()).To(Succeed())
		})

		It("should allow concurrent sends without shared state", func() {
			conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
			Expect(err).NotTo(HaveOccurred())
			defer conn.Close()

			var wg sync.WaitGroup
			errs := make(chan error, 8)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := sender.SendTo(ctx, packet, DefaultSource, conn.LocalAddr().String())
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				Expect(err).NotTo(HaveOccurred())
			}
		})
	})

	Context("When sending with the default endpoints", func() {
		var conn *net.UDPConn

		BeforeEach(func() {
			conn = nil
			var err error
			conn, err = net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: DefaultWOLPort})
			if err != nil {
				Skip("cannot bind UDP port 9: " + err.Error())
			}
		})

		AfterEach(func() {
			if conn != nil {
				Expect(conn.Close()).To(Succeed())
			}
		})

		expectBroadcastReceived := func(n int, err error) {
			if errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.EHOSTUNREACH) {
				Skip("no route for the limited broadcast address: " + err.Error())
			}
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(MagicPacketSize))

			Expect(conn.SetReadDeadline(time.Now().Add(timeout))).To(Succeed())
			buf := make([]byte, 1024)
			read, _, err := conn.ReadFromUDP(buf)
			Expect(err).NotTo(HaveOccurred())
			Expect(buf[:read]).To(Equal(packet.Bytes()))
		}

		It("should broadcast 102 bytes to port 9 through Sender.Send", func() {
			expectBroadcastReceived(sender.Send(ctx, packet))
		})

		It("should broadcast 102 bytes to port 9 through MagicPacket.Send", func() {
			expectBroadcastReceived(packet.Send())
		})
	})

	Context("When the socket cannot be set up", func() {
		It("should report a bind failure as an IOError", func() {
			// 192.0.2.0/24 is reserved for documentation and never local
			_, err := sender.SendTo(ctx, packet, "192.0.2.1:0", "127.0.0.1:9")
			Expect(err).To(HaveOccurred())
			Expect(ErrorKind(err)).To(Equal(KindIO))

			var ioErr *IOError
			Expect(errors.As(err, &ioErr)).To(BeTrue())
			Expect(ioErr.Op).To(Equal("bind"))
			Expect(ioErr.Unwrap()).NotTo(BeNil())
		})

		It("should report a bad destination as a resolve IOError", func() {
			_, err := sender.SendTo(ctx, packet, DefaultSource, "not-an-address")

			var ioErr *IOError
			Expect(errors.As(err, &ioErr)).To(BeTrue())
			Expect(ioErr.Op).To(Equal("resolve"))
		})

		It("should report a bad source as a resolve IOError", func() {
			_, err := sender.SendTo(ctx, packet, "0.0.0.0:notaport", "127.0.0.1:9")

			var ioErr *IOError
			Expect(errors.As(err, &ioErr)).To(BeTrue())
			Expect(ioErr.Op).To(Equal("resolve"))
		})
	})

	Context("When computing write deadlines", func() {
		It("should prefer the earlier of context deadline and timeout", func() {
			s := &Sender{Timeout: time.Hour}
			dctx, dcancel := context.WithTimeout(ctx, time.Minute)
			defer dcancel()

			deadline, ok := s.deadline(dctx)
			Expect(ok).To(BeTrue())
			Expect(deadline).To(BeTemporally("<", time.Now().Add(2*time.Minute)))

			_, ok = (&Sender{}).deadline(ctx)
			Expect(ok).To(BeFalse())
		})
	})
})

var _ = Describe("ListenerGroup", func() {
	It("should fail and release earlier ports when one port is taken", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		taken, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
		Expect(err).NotTo(HaveOccurred())
		defer taken.Close()

		free, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
		Expect(err).NotTo(HaveOccurred())
		freePort := free.LocalAddr().(*net.UDPAddr).Port
		Expect(free.Close()).To(Succeed())

		_, err = ListenPorts(ctx, "127.0.0.1", []int{freePort, taken.LocalAddr().(*net.UDPAddr).Port}, nil, logr.Discard())
		Expect(err).To(HaveOccurred())

		// the first port must be free again
		again, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: freePort})
		Expect(err).NotTo(HaveOccurred())
		Expect(again.Close()).To(Succeed())
	})

	It("should stop every listener", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		group, err := ListenPorts(ctx, "127.0.0.1", []int{0, 0}, nil, logr.Discard())
		Expect(err).NotTo(HaveOccurred())
		Expect(group).To(HaveLen(2))
		Expect(group.Stop()).To(Succeed())
	})
})
