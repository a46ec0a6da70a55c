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
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	// PacketsSentTotal counts magic packets handed to the OS network stack
	PacketsSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wol_packets_sent_total",
			Help: "Number of Wake-on-LAN magic packets sent",
		},
	)

	// BytesSentTotal counts payload bytes written by successful sends
	BytesSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wol_bytes_sent_total",
			Help: "Number of magic packet payload bytes sent",
		},
	)

	// SendErrorsTotal counts failed sends by the socket operation that failed
	SendErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wol_send_errors_total",
			Help: "Number of failed magic packet sends",
		},
		[]string{"op"},
	)

	// PacketsReceivedTotal counts valid magic packets seen by listeners
	PacketsReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wol_packets_received_total",
			Help: "Number of valid Wake-on-LAN magic packets received",
		},
	)

	// DuplicatePacketsTotal counts magic packets dropped by a Deduplicator
	DuplicatePacketsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wol_duplicate_packets_total",
			Help: "Number of magic packets dropped as duplicates",
		},
	)

	// InvalidPacketsTotal counts datagrams that were not magic packets
	InvalidPacketsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wol_invalid_packets_total",
			Help: "Number of received datagrams that were not magic packets",
		},
	)
)

func init() {
	// Register metrics with controller-runtime's registry
	metrics.Registry.MustRegister(
		PacketsSentTotal,
		BytesSentTotal,
		SendErrorsTotal,
		PacketsReceivedTotal,
		DuplicatePacketsTotal,
		InvalidPacketsTotal,
	)
}
