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
	"net"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// Deduplicator drops repeats of the same target MAC seen within a window.
// Senders usually emit several copies of a magic packet per wake request.
type Deduplicator struct {
	window time.Duration
	log    logr.Logger
	now    func() time.Time

	mu       sync.Mutex
	lastSeen map[MACAddress]time.Time
}

// NewDeduplicator returns a Deduplicator for window. A zero window lets
// every packet through.
func NewDeduplicator(window time.Duration, log logr.Logger) *Deduplicator {
	return &Deduplicator{
		window:   window,
		log:      log,
		now:      time.Now,
		lastSeen: make(map[MACAddress]time.Time),
	}
}

// Allow reports whether mac should be handled and records it as seen.
func (d *Deduplicator) Allow(mac MACAddress) bool {
	if d.window <= 0 {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if lastSeen, exists := d.lastSeen[mac]; exists {
		if elapsed := now.Sub(lastSeen); elapsed < d.window {
			DuplicatePacketsTotal.Inc()
			d.log.V(1).Info("Skipping duplicate MAC",
				"mac", mac.String(),
				"lastSeenAgo", elapsed.String(),
				"window", d.window.String())
			return false
		}
	}
	d.lastSeen[mac] = now
	return true
}

// Len returns the number of remembered MACs.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lastSeen)
}

// Prune forgets MACs not seen for three windows.
func (d *Deduplicator) Prune() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for mac, lastSeen := range d.lastSeen {
		if now.Sub(lastSeen) > d.window*3 {
			delete(d.lastSeen, mac)
		}
	}
}

// Run prunes the cache every 30 seconds until ctx is done.
func (d *Deduplicator) Run(ctx context.Context) {
	if d.window <= 0 {
		return
	}
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Prune()
			d.log.V(1).Info("Pruned dedupe cache", "remaining", d.Len())
		}
	}
}

// Wrap returns a PacketHandler that calls h only for packets Allow accepts.
func (d *Deduplicator) Wrap(h PacketHandler) PacketHandler {
	return func(mac MACAddress, from *net.UDPAddr) {
		if d.Allow(mac) {
			h(mac, from)
		}
	}
}

// WrapEthernet is Wrap for raw Ethernet handlers.
func (d *Deduplicator) WrapEthernet(h EthernetHandler) EthernetHandler {
	return func(mac MACAddress, from net.HardwareAddr) {
		if d.Allow(mac) {
			h(mac, from)
		}
	}
}
