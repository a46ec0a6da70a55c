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

package hosts

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/gpillon/wakey/internal/config"
	"github.com/gpillon/wakey/pkg/wol"
)

// Target is a named machine that can be woken
type Target struct {
	Name        string
	MAC         wol.MACAddress
	Source      string
	Destination string
	Interface   string
	Port        int
}

// Registry maps host names and MAC addresses to targets
type Registry struct {
	log      logr.Logger
	mu       sync.RWMutex
	byName   map[string]Target
	byMAC    map[wol.MACAddress]Target
	defaults config.Defaults
}

// NewRegistry creates an empty registry
func NewRegistry(log logr.Logger) *Registry {
	return &Registry{
		log:    log,
		byName: make(map[string]Target),
		byMAC:  make(map[wol.MACAddress]Target),
	}
}

// Load validates cfg and replaces the registry content. On validation
// failure the registry is left untouched and every problem is reported.
func (r *Registry) Load(cfg *config.File) error {
	if err := Validate(cfg).ToAggregate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	byName := make(map[string]Target, len(cfg.Hosts))
	byMAC := make(map[wol.MACAddress]Target, len(cfg.Hosts))
	for _, h := range cfg.Hosts {
		mac, _ := parseMACAddress(h.MAC)
		t := Target{
			Name:        h.Name,
			MAC:         mac,
			Source:      h.Source,
			Destination: h.Destination,
			Interface:   h.Interface,
			Port:        h.Port,
		}
		byName[normalizeName(h.Name)] = t
		byMAC[mac] = t
		r.log.V(1).Info("Registered host", "name", t.Name, "mac", mac.String())
	}

	r.mu.Lock()
	r.byName = byName
	r.byMAC = byMAC
	r.defaults = cfg.Defaults
	r.mu.Unlock()

	r.log.Info("Host registry loaded", "hostCount", len(byName))
	return nil
}

// Lookup finds a target by host name or by MAC address.
func (r *Registry) Lookup(nameOrMAC string) (Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if t, found := r.byName[normalizeName(nameOrMAC)]; found {
		return t, true
	}
	if mac, err := parseMACAddress(nameOrMAC); err == nil {
		t, found := r.byMAC[mac]
		return t, found
	}
	return Target{}, false
}

// List returns every target sorted by name
func (r *Registry) List() []Target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	targets := make([]Target, 0, len(r.byName))
	for _, t := range r.byName {
		targets = append(targets, t)
	}
	sort.Slice(targets, func(i, j int) bool {
		return targets[i].Name < targets[j].Name
	})
	return targets
}

// Count returns the number of registered hosts
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// Defaults returns the defaults of the last loaded configuration
func (r *Registry) Defaults() config.Defaults {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults
}

// Endpoints returns the source and destination to use for t. Host settings
// win over registry defaults, which win over the library defaults. A host
// with an Interface and no Destination is sent to that interface's directed
// broadcast address.
func (r *Registry) Endpoints(t Target) (src, dst string, err error) {
	defaults := r.Defaults()

	src = firstNonEmpty(t.Source, defaults.Source, wol.DefaultSource)

	switch {
	case t.Destination != "":
		dst = t.Destination
	case t.Interface != "":
		bcast, err := wol.InterfaceBroadcast(t.Interface)
		if err != nil {
			return "", "", fmt.Errorf("failed to resolve destination for host %s: %w", t.Name, err)
		}
		dst = net.JoinHostPort(bcast.String(), strconv.Itoa(wol.DefaultWOLPort))
	default:
		dst = firstNonEmpty(defaults.Destination, wol.DefaultDestination)
	}

	if t.Port > 0 {
		host, _, err := net.SplitHostPort(dst)
		if err != nil {
			return "", "", fmt.Errorf("invalid destination %q for host %s: %w", dst, t.Name, err)
		}
		dst = net.JoinHostPort(host, strconv.Itoa(t.Port))
	}
	return src, dst, nil
}

// Validate checks every host entry and the defaults, returning all problems.
func Validate(cfg *config.File) field.ErrorList {
	var allErrs field.ErrorList

	defaultsPath := field.NewPath("defaults")
	allErrs = append(allErrs, validateEndpoint(defaultsPath.Child("source"), cfg.Defaults.Source)...)
	allErrs = append(allErrs, validateEndpoint(defaultsPath.Child("destination"), cfg.Defaults.Destination)...)
	if cfg.Defaults.Timeout < 0 {
		allErrs = append(allErrs, field.Invalid(defaultsPath.Child("timeout"), cfg.Defaults.Timeout.String(), "must not be negative"))
	}

	names := make(map[string]bool, len(cfg.Hosts))
	macs := make(map[wol.MACAddress]bool, len(cfg.Hosts))
	for i, h := range cfg.Hosts {
		hostPath := field.NewPath("hosts").Index(i)

		name := normalizeName(h.Name)
		switch {
		case name == "":
			allErrs = append(allErrs, field.Required(hostPath.Child("name"), "host name is required"))
		case names[name]:
			allErrs = append(allErrs, field.Duplicate(hostPath.Child("name"), h.Name))
		default:
			names[name] = true
		}

		if h.MAC == "" {
			allErrs = append(allErrs, field.Required(hostPath.Child("mac"), "MAC address is required"))
		} else if mac, err := parseMACAddress(h.MAC); err != nil {
			allErrs = append(allErrs, field.Invalid(hostPath.Child("mac"), h.MAC, err.Error()))
		} else if macs[mac] {
			allErrs = append(allErrs, field.Duplicate(hostPath.Child("mac"), h.MAC))
		} else {
			macs[mac] = true
		}

		allErrs = append(allErrs, validateEndpoint(hostPath.Child("source"), h.Source)...)
		allErrs = append(allErrs, validateEndpoint(hostPath.Child("destination"), h.Destination)...)

		if h.Port != 0 {
			for _, msg := range validation.IsValidPortNum(h.Port) {
				allErrs = append(allErrs, field.Invalid(hostPath.Child("port"), h.Port, msg))
			}
		}
		if h.Destination != "" && h.Interface != "" {
			allErrs = append(allErrs, field.Invalid(hostPath.Child("interface"), h.Interface, "must not be set together with destination"))
		}
	}

	return allErrs
}

func validateEndpoint(path *field.Path, endpoint string) field.ErrorList {
	if endpoint == "" {
		return nil
	}
	_, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		return field.ErrorList{field.Invalid(path, endpoint, "must be host:port")}
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		// named service ports are resolved at send time
		return nil
	}
	var allErrs field.ErrorList
	for _, msg := range validation.IsInRange(n, 0, 65535) {
		allErrs = append(allErrs, field.Invalid(path, endpoint, msg))
	}
	return allErrs
}

// parseMACAddress accepts colon or dash separated MACs
func parseMACAddress(mac string) (wol.MACAddress, error) {
	return wol.ParseMAC(strings.ReplaceAll(strings.TrimSpace(mac), "-", ":"), ':')
}

// normalizeName converts host names to lowercase without surrounding spaces
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
