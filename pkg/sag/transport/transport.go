// Package transport is the one network adapter the specification allows
// outside the core: a text-frame sender/receiver over HTTP. Nothing in
// pkg/sag/{parse,minify,knowledge,tree,grove} imports this package; it is a
// consumer built on top of the core, not part of it.
package transport

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sag-project/sag/internal/logging"
	"github.com/sag-project/sag/pkg/sag/metrics"
	"github.com/sag-project/sag/pkg/sag/minify"
	"github.com/sag-project/sag/pkg/sag/model"
	"github.com/sag-project/sag/pkg/sag/sanitize"
)

// Handler receives one already-sanitized inbound message.
type Handler func(*model.Message) error

// Server exposes POST /messages (raw SAG wire text in, sanitized through
// sanitizer before Handler ever sees it), GET /healthz, and, if Metrics is
// attached, GET /metrics.
type Server struct {
	router    chi.Router
	sanitizer *sanitize.Sanitizer
	handler   Handler
}

// NewServer builds a Server that runs every inbound POST /messages body
// through sanitizer before calling handler.
func NewServer(sanitizer *sanitize.Sanitizer, handler Handler, m *metrics.Metrics) *Server {
	s := &Server{sanitizer: sanitizer, handler: handler}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Post("/messages", s.handleMessage)
	if reg := m.Registry(); reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	result := s.sanitizer.Sanitize(string(body))
	if result.ParseErr != nil {
		logging.Log().Warn("transport: rejected unparseable message", "error", result.ParseErr)
		http.Error(w, result.ParseErr.Error(), http.StatusBadRequest)
		return
	}
	if !result.Valid() {
		logging.Log().Warn("transport: rejected message", "errors", result.Errors)
		http.Error(w, "message failed validation", http.StatusUnprocessableEntity)
		return
	}

	if s.handler != nil {
		if err := s.handler(result.Message); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(http.StatusAccepted)
}

// Client posts minified wire text to a peer's /messages endpoint, for a
// deployment where agents are separate processes rather than in-process
// tree nodes.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client posting to baseURL (e.g. "http://peer:8080").
func NewClient(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}
}

// Send minifies msg and posts it to the peer.
func (c *Client) Send(msg *model.Message) error {
	body := minify.Minify(msg)
	resp, err := c.http.Post(c.baseURL+"/messages", "text/plain", bytes.NewBufferString(body))
	if err != nil {
		return fmt.Errorf("transport: send to %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("transport: peer %s rejected message (%d): %s", c.baseURL, resp.StatusCode, respBody)
	}
	return nil
}
