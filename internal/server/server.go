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
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/gpillon/wakey/internal/hosts"
	"github.com/gpillon/wakey/pkg/wol"
)

// Server exposes magic packet sending over HTTP
type Server struct {
	addr     string
	registry *hosts.Registry
	sender   *wol.Sender
	log      logr.Logger

	allowEndpointOverride bool
}

// Option configures a Server
type Option func(*Server)

// WithEndpointOverride lets POST /wake clients choose the source and
// destination of the packet through query parameters. Without it the
// service only sends to the configured defaults, so an HTTP client cannot
// direct UDP traffic at arbitrary addresses.
func WithEndpointOverride() Option {
	return func(s *Server) {
		s.allowEndpointOverride = true
	}
}

type wakeResponse struct {
	Host        string `json:"host,omitempty"`
	MAC         string `json:"mac"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Bytes       int    `json:"bytes"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type hostResponse struct {
	Name        string `json:"name"`
	MAC         string `json:"mac"`
	Destination string `json:"destination,omitempty"`
	Interface   string `json:"interface,omitempty"`
	Port        int    `json:"port,omitempty"`
}

// NewServer creates a wake server listening on addr. A nil registry is
// replaced with an empty one.
func NewServer(addr string, registry *hosts.Registry, sender *wol.Sender, log logr.Logger, opts ...Option) *Server {
	if registry == nil {
		registry = hosts.NewRegistry(log)
	}
	s := &Server{
		addr:     addr,
		registry: registry,
		sender:   sender,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		s.writeText(w, http.StatusOK, "ok")
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if s.sender == nil {
			s.writeText(w, http.StatusServiceUnavailable, "sender not configured")
			return
		}
		s.writeText(w, http.StatusOK, "ready")
	})

	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /hosts", s.listHosts)
	mux.HandleFunc("POST /wake/{name}", s.wakeHost)
	mux.HandleFunc("POST /wake", s.wakeMAC)

	return mux
}

// Start serves HTTP until ctx is done
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.log.Error(err, "Failed to shutdown wake server")
		}
	}()

	s.log.Info("Starting wake server", "address", s.addr)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) listHosts(w http.ResponseWriter, r *http.Request) {
	targets := s.registry.List()
	resp := make([]hostResponse, 0, len(targets))
	for _, t := range targets {
		resp = append(resp, hostResponse{
			Name:        t.Name,
			MAC:         t.MAC.String(),
			Destination: t.Destination,
			Interface:   t.Interface,
			Port:        t.Port,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// wakeHost sends to a host from the registry
func (s *Server) wakeHost(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	target, found := s.registry.Lookup(name)
	if !found {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown host " + name})
		return
	}

	src, dst, err := s.registry.Endpoints(target)
	if err != nil {
		s.writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}

	s.send(w, r, target.Name, wol.NewMagicPacket(target.MAC), src, dst)
}

// wakeMAC sends to an ad-hoc MAC given as query parameters:
// mac (required), separator (default ':'), and source and destination when
// endpoint overrides are enabled.
func (s *Server) wakeMAC(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if !s.allowEndpointOverride && (q.Has("source") || q.Has("destination")) {
		s.writeJSON(w, http.StatusForbidden, errorResponse{Error: "source and destination overrides are disabled"})
		return
	}

	sep := ':'
	if v := q.Get("separator"); v != "" {
		if utf8.RuneCountInString(v) != 1 {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "separator must be a single character"})
			return
		}
		sep, _ = utf8.DecodeRuneInString(v)
	}

	packet, err := wol.FromString(q.Get("mac"), sep)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: wol.ErrorKind(err).String()})
		return
	}

	defaults := s.registry.Defaults()
	src := firstNonEmpty(q.Get("source"), defaults.Source, wol.DefaultSource)
	dst := firstNonEmpty(q.Get("destination"), defaults.Destination, wol.DefaultDestination)

	s.send(w, r, "", packet, src, dst)
}

func (s *Server) send(w http.ResponseWriter, r *http.Request, host string, packet wol.MagicPacket, src, dst string) {
	if s.sender == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "sender not configured"})
		return
	}

	n, err := s.sender.SendTo(r.Context(), packet, src, dst)
	if err != nil {
		s.log.Error(err, "Failed to send magic packet",
			"host", host,
			"mac", packet.MAC().String(),
			"destination", dst)
		s.writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), Kind: wol.ErrorKind(err).String()})
		return
	}

	s.log.Info("Magic packet sent",
		"host", host,
		"mac", packet.MAC().String(),
		"destination", dst,
		"remote", r.RemoteAddr)

	s.writeJSON(w, http.StatusOK, wakeResponse{
		Host:        host,
		MAC:         packet.MAC().String(),
		Source:      src,
		Destination: dst,
		Bytes:       n,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error(err, "Failed to write response")
	}
}

func (s *Server) writeText(w http.ResponseWriter, status int, body string) {
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		s.log.Error(err, "Failed to write response")
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
