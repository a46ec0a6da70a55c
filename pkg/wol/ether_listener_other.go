//go:build !linux

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

	"github.com/go-logr/logr"
)

// EthernetHandler is called for every valid 0x0842 frame an
// EthernetListener receives.
type EthernetHandler func(mac MACAddress, from net.HardwareAddr)

// EthernetListener is only implemented on Linux.
type EthernetListener struct {
	interfaceName string
}

func NewEthernetListener(interfaceName string, _ EthernetHandler, _ logr.Logger) *EthernetListener {
	return &EthernetListener{interfaceName: interfaceName}
}

func (r *EthernetListener) Start(_ context.Context) error {
	return fmt.Errorf("raw Ethernet listener on %s: %w", r.interfaceName, errors.ErrUnsupported)
}

func (r *EthernetListener) Stop() {}
