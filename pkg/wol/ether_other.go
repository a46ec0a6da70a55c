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
)

// SendEthernet is only implemented on Linux, where AF_PACKET sockets exist.
func (s *Sender) SendEthernet(_ context.Context, _ MagicPacket, ifaceName string) (int, error) {
	return 0, s.fail("unsupported", errors.Join(errors.ErrUnsupported, errors.New("raw Ethernet send on "+ifaceName)))
}
