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

package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/gpillon/wakey/internal/config"
	"github.com/gpillon/wakey/internal/hosts"
	"github.com/gpillon/wakey/internal/server"
	"github.com/gpillon/wakey/pkg/wol"
)

// repeatOptions controls caller-side repetition of a send. Each repetition
// is an independent send.
type repeatOptions struct {
	count    int
	interval time.Duration
}

func (o *repeatOptions) bindFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&o.count, "count", 1, "Number of magic packets to send")
	cmd.Flags().DurationVar(&o.interval, "interval", 100*time.Millisecond, "Delay between packets when --count > 1")
}

func newSendCommand() *cobra.Command {
	var (
		separator   string
		source      string
		destination string
		iface       string
		ethernet    bool
		timeout     time.Duration
		repeat      repeatOptions
	)

	cmd := &cobra.Command{
		Use:   "send <mac>",
		Short: "send a magic packet to a MAC address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sep, err := parseSeparator(separator)
			if err != nil {
				return err
			}
			packet, err := wol.FromString(args[0], sep)
			if err != nil {
				return fmt.Errorf("invalid MAC address %q: %w", args[0], err)
			}

			sender := wol.NewSender(timeout, ctrl.Log.WithName("sender"))

			if ethernet {
				if iface == "" {
					return fmt.Errorf("--ethernet requires --interface")
				}
				return sendRepeated(cmd, repeat, packet, "ethernet:"+iface, func(ctx context.Context) (int, error) {
					return sender.SendEthernet(ctx, packet, iface)
				})
			}

			if iface != "" && !cmd.Flags().Changed("destination") {
				destination, err = interfaceDestination(iface, destination)
				if err != nil {
					return err
				}
			}

			return sendRepeated(cmd, repeat, packet, destination, func(ctx context.Context) (int, error) {
				return sender.SendTo(ctx, packet, source, destination)
			})
		},
	}

	cmd.Flags().StringVar(&separator, "separator", ":", "Character separating the MAC octets")
	cmd.Flags().StringVar(&source, "source", wol.DefaultSource, "Source address (host:port) to bind")
	cmd.Flags().StringVar(&destination, "destination", wol.DefaultDestination, "Destination address (host:port)")
	cmd.Flags().StringVar(&iface, "interface", "",
		"Send to the directed broadcast address of this interface (or the raw interface with --ethernet)")
	cmd.Flags().BoolVar(&ethernet, "ethernet", false, "Send a raw 0x0842 Ethernet frame instead of UDP (needs CAP_NET_RAW)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Write timeout (0 means none)")
	repeat.bindFlags(cmd)
	return cmd
}

func newWakeCommand(configPath *string) *cobra.Command {
	var (
		timeout time.Duration
		repeat  repeatOptions
	)

	cmd := &cobra.Command{
		Use:   "wake <host>",
		Short: "send a magic packet to a host from the config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := loadRegistry(*configPath)
			if err != nil {
				return err
			}

			target, found := registry.Lookup(args[0])
			if !found {
				return fmt.Errorf("unknown host %q", args[0])
			}
			src, dst, err := registry.Endpoints(target)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("timeout") {
				timeout = registry.Defaults().Timeout
			}
			sender := wol.NewSender(timeout, ctrl.Log.WithName("sender"))
			packet := wol.NewMagicPacket(target.MAC)

			return sendRepeated(cmd, repeat, packet, dst, func(ctx context.Context) (int, error) {
				return sender.SendTo(ctx, packet, src, dst)
			})
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Write timeout (defaults to the config file value)")
	repeat.bindFlags(cmd)
	return cmd
}

func newListenCommand() *cobra.Command {
	var (
		address  string
		portsStr string
		iface    string
		ethernet bool
		dedupe   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "print magic packets received on UDP ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := parsePorts(portsStr)
			if err != nil {
				return fmt.Errorf("failed to parse ports %q: %w", portsStr, err)
			}

			out := cmd.OutOrStdout()
			dedup := wol.NewDeduplicator(dedupe, ctrl.Log.WithName("dedupe"))
			go dedup.Run(cmd.Context())

			report := func(mac wol.MACAddress, from fmt.Stringer) {
				fmt.Fprintf(out, "%s\t%s\t%s\n", time.Now().Format(time.RFC3339), mac, from)
			}
			handler := dedup.Wrap(func(mac wol.MACAddress, from *net.UDPAddr) { report(mac, from) })

			if ethernet {
				if iface == "" {
					return fmt.Errorf("--ethernet requires --interface")
				}
				raw := wol.NewEthernetListener(iface, dedup.WrapEthernet(func(mac wol.MACAddress, from net.HardwareAddr) { report(mac, from) }),
					ctrl.Log.WithName("raw-listener"))
				if err := raw.Start(cmd.Context()); err != nil {
					return err
				}
				defer raw.Stop()
			}

			group, err := wol.ListenPorts(cmd.Context(), address, ports, handler, ctrl.Log.WithName("listener"))
			if err != nil {
				return err
			}

			setupLog.Info("Listening for magic packets", "address", address, "ports", ports)
			<-cmd.Context().Done()
			return group.Stop()
		},
	}

	cmd.Flags().StringVar(&address, "address", "0.0.0.0", "Address to listen on")
	cmd.Flags().StringVar(&portsStr, "ports", "9", "UDP ports for WOL packets (comma-separated)")
	cmd.Flags().StringVar(&iface, "interface", "", "Interface for the raw Ethernet listener")
	cmd.Flags().DurationVar(&dedupe, "dedupe", 0, "Drop repeats of the same MAC within this window (0 disables)")
	cmd.Flags().BoolVar(&ethernet, "ethernet", false, "Also listen for raw 0x0842 frames on --interface (needs CAP_NET_RAW)")
	return cmd
}

func newServeCommand(configPath *string) *cobra.Command {
	var (
		bindAddr      string
		timeout       time.Duration
		allowOverride bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "serve an HTTP API that sends magic packets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := loadRegistry(*configPath)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("timeout") {
				timeout = registry.Defaults().Timeout
			}

			sender := wol.NewSender(timeout, ctrl.Log.WithName("sender"))
			var opts []server.Option
			if allowOverride {
				opts = append(opts, server.WithEndpointOverride())
			}
			srv := server.NewServer(bindAddr, registry, sender, ctrl.Log.WithName("server"), opts...)
			return srv.Start(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&bindAddr, "bind", ":8080", "The address the HTTP server binds to")
	cmd.Flags().BoolVar(&allowOverride, "allow-endpoint-override", false,
		"Let POST /wake clients set source and destination query parameters")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Write timeout (defaults to the config file value)")
	return cmd
}

func newInterfacesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "interfaces",
		Short: "list interfaces that can send broadcast magic packets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			interfaces, err := wol.CandidateInterfaces(ctrl.Log.WithName("interfaces"))
			if err != nil {
				return fmt.Errorf("failed to detect network interfaces: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tMAC\tBROADCAST")
			for _, iface := range interfaces {
				bcast := "-"
				if ip, err := wol.InterfaceBroadcast(iface.Name); err == nil {
					bcast = ip.String()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", iface.Name, iface.HardwareAddr, bcast)
			}
			return w.Flush()
		},
	}
}

func sendRepeated(cmd *cobra.Command, opts repeatOptions, packet wol.MagicPacket, dst string, send func(ctx context.Context) (int, error)) error {
	ctx := cmd.Context()
	if opts.count < 1 {
		return fmt.Errorf("--count must be at least 1")
	}

	for i := 0; i < opts.count; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.interval):
			}
		}

		n, err := send(ctx)
		if err != nil {
			return fmt.Errorf("failed to send magic packet to %s: %w", packet.MAC(), err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sent magic packet for %s to %s (%d bytes)\n", packet.MAC(), dst, n)
	}
	return nil
}

func loadRegistry(configPath string) (*hosts.Registry, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	registry := hosts.NewRegistry(ctrl.Log.WithName("hosts"))
	if err := registry.Load(cfg); err != nil {
		return nil, err
	}
	return registry, nil
}

// interfaceDestination keeps the port of destination and replaces its host
// with the directed broadcast address of iface
func interfaceDestination(iface, destination string) (string, error) {
	port := strconv.Itoa(wol.DefaultWOLPort)
	if _, p, err := net.SplitHostPort(destination); err == nil {
		port = p
	}
	bcast, err := wol.InterfaceBroadcast(iface)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(bcast.String(), port), nil
}

func parseSeparator(s string) (rune, error) {
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("separator must be a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

func parsePorts(portsStr string) ([]int, error) {
	parts := strings.Split(portsStr, ",")
	ports := make([]int, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		port, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid port %q: %w", part, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("port %d out of range (must be 1-65535)", port)
		}
		ports = append(ports, port)
	}

	if len(ports) == 0 {
		return []int{wol.DefaultWOLPort}, nil
	}

	return ports, nil
}
