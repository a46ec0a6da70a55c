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

package server

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gpillon/wakey/internal/config"
	"github.com/gpillon/wakey/internal/hosts"
	"github.com/gpillon/wakey/pkg/wol"
)

var _ = Describe("Wake Server", func() {
	var (
		target   *net.UDPConn
		registry *hosts.Registry
		handler  http.Handler
	)

	do := func(method, url string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(method, url, nil))
		return rec
	}

	readPacket := func() []byte {
		Expect(target.SetReadDeadline(time.Now().Add(5 * time.Second))).To(Succeed())
		buf := make([]byte, 1024)
		n, _, err := target.ReadFromUDP(buf)
		Expect(err).NotTo(HaveOccurred())
		return buf[:n]
	}

	BeforeEach(func() {
		var err error
		target, err = net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
		Expect(err).NotTo(HaveOccurred())

		registry = hosts.NewRegistry(GinkgoLogr)
		Expect(registry.Load(&config.File{
			Defaults: config.Defaults{Destination: target.LocalAddr().String()},
			Hosts: []config.HostEntry{
				{Name: "nas", MAC: "52:54:00:12:34:56"},
				{Name: "broken", MAC: "52:54:00:12:34:57", Source: "192.0.2.1:0"},
			},
		})).To(Succeed())

		handler = NewServer(":0", registry, wol.NewSender(time.Second, GinkgoLogr), GinkgoLogr).Handler()
	})

	AfterEach(func() {
		Expect(target.Close()).To(Succeed())
	})

	Context("When probing health", func() {
		It("should answer healthz and readyz", func() {
			Expect(do(http.MethodGet, "/healthz").Code).To(Equal(http.StatusOK))
			Expect(do(http.MethodGet, "/readyz").Body.String()).To(Equal("ready"))
		})

		It("should expose WOL metrics", func() {
			Expect(do(http.MethodPost, "/wake/nas").Code).To(Equal(http.StatusOK))
			readPacket()

			rec := do(http.MethodGet, "/metrics")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring("wol_packets_sent_total"))
		})
	})

	Context("When waking a registered host", func() {
		It("should send the magic packet of that host", func() {
			rec := do(http.MethodPost, "/wake/NAS")
			Expect(rec.Code).To(Equal(http.StatusOK))

			var resp wakeResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Host).To(Equal("nas"))
			Expect(resp.MAC).To(Equal("52:54:00:12:34:56"))
			Expect(resp.Bytes).To(Equal(wol.MagicPacketSize))
			Expect(resp.Destination).To(Equal(target.LocalAddr().String()))

			mac, ok := wol.ParseMagicPacket(readPacket())
			Expect(ok).To(BeTrue())
			Expect(mac.String()).To(Equal("52:54:00:12:34:56"))
		})

		It("should return 404 for unknown hosts", func() {
			Expect(do(http.MethodPost, "/wake/unknown").Code).To(Equal(http.StatusNotFound))
		})

		It("should return 502 with the IO kind when the send fails", func() {
			rec := do(http.MethodPost, "/wake/broken")
			Expect(rec.Code).To(Equal(http.StatusBadGateway))

			var resp errorResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Kind).To(Equal("IO"))
		})

		It("should list hosts", func() {
			rec := do(http.MethodGet, "/hosts")
			Expect(rec.Code).To(Equal(http.StatusOK))

			var resp []hostResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp).To(HaveLen(2))
			Expect(resp[0].Name).To(Equal("broken"))
			Expect(resp[1].MAC).To(Equal("52:54:00:12:34:56"))
		})
	})

	Context("When waking an ad-hoc MAC", func() {
		It("should parse the MAC with the given separator", func() {
			rec := do(http.MethodPost, "/wake?mac=DE-AD-BE-EF-CA-FE&separator=-")
			Expect(rec.Code).To(Equal(http.StatusOK))

			expected, err := wol.FromString("DE:AD:BE:EF:CA:FE", ':')
			Expect(err).NotTo(HaveOccurred())
			Expect(readPacket()).To(Equal(expected.Bytes()))
		})

		It("should refuse source and destination overrides by default", func() {
			for _, url := range []string{
				"/wake?mac=010203040506&destination=127.0.0.1:9",
				"/wake?mac=010203040506&source=127.0.0.1:0",
				"/wake?mac=010203040506&destination=",
			} {
				rec := do(http.MethodPost, url)
				Expect(rec.Code).To(Equal(http.StatusForbidden), url)
			}
		})

		It("should honour an explicit destination when overrides are enabled", func() {
			other, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
			Expect(err).NotTo(HaveOccurred())
			defer other.Close()

			handler = NewServer(":0", registry, wol.NewSender(time.Second, GinkgoLogr), GinkgoLogr,
				WithEndpointOverride()).Handler()

			rec := do(http.MethodPost, "/wake?mac=010203040506&destination="+other.LocalAddr().String())
			Expect(rec.Code).To(Equal(http.StatusOK))

			Expect(other.SetReadDeadline(time.Now().Add(5 * time.Second))).To(Succeed())
			buf := make([]byte, 1024)
			n, _, err := other.ReadFromUDP(buf)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(wol.MagicPacketSize))
		})

		It("should reject malformed MACs with their error kind", func() {
			for url, kind := range map[string]string{
				"/wake?mac=ZZ:02:03:04:05:06": "HexDecode",
				"/wake?mac=01002:03:04:05:06": "InvalidLength",
				"/wake":                       "InvalidLength",
			} {
				rec := do(http.MethodPost, url)
				Expect(rec.Code).To(Equal(http.StatusBadRequest), url)

				var resp errorResponse
				Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
				Expect(resp.Kind).To(Equal(kind), url)
			}
		})

		It("should reject multi-character separators", func() {
			Expect(do(http.MethodPost, "/wake?mac=01::02&separator=::").Code).To(Equal(http.StatusBadRequest))
		})
	})
})

var _ = Describe("Wake Server without a registry", func() {
	It("should serve an empty host list and report readiness from the sender", func() {
		handler := NewServer(":0", nil, nil, GinkgoLogr).Handler()

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hosts", nil))
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(MatchJSON("[]"))

		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/wake/nas", nil))
		Expect(rec.Code).To(Equal(http.StatusNotFound))

		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/wake?mac=010203040506", nil))
		Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))

		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
	})
})
