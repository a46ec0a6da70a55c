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

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the default config path
const EnvConfigPath = "WAKEY_CONFIG"

// File is the on-disk wakey configuration.
type File struct {
	Defaults Defaults    `yaml:"defaults"`
	Hosts    []HostEntry `yaml:"hosts"`
}

// Defaults apply to every send that does not override them.
type Defaults struct {
	// Source is the host:port the UDP socket binds to
	Source string `yaml:"source,omitempty"`
	// Destination is the host:port packets are sent to
	Destination string `yaml:"destination,omitempty"`
	// Timeout bounds each datagram write
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// HostEntry names a machine that can be woken.
type HostEntry struct {
	Name string `yaml:"name"`
	// MAC in format xx:xx:xx:xx:xx:xx or xx-xx-xx-xx-xx-xx
	MAC         string `yaml:"mac"`
	Source      string `yaml:"source,omitempty"`
	Destination string `yaml:"destination,omitempty"`
	// Interface selects the directed broadcast address of a local NIC when
	// Destination is empty
	Interface string `yaml:"interface,omitempty"`
	Port      int    `yaml:"port,omitempty"`
}

func ReadYAML(file string, v interface{}) error {
	b, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("error reading yaml config file: %w", err)
	}
	if err := yaml.Unmarshal(b, v); err != nil {
		return fmt.Errorf("error decoding config from yaml: %w", err)
	}
	return nil
}

// Load reads the config at path. An empty path falls back to $WAKEY_CONFIG;
// if that is empty too an empty config is returned.
func Load(path string) (*File, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	cfg := &File{}
	if path == "" {
		return cfg, nil
	}
	if err := ReadYAML(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
