// Package admin serves the master's read-only observability surface: a
// Prometheus scrape endpoint and a websocket that mirrors queue snapshots
// to dashboards (SPEC_FULL.md §4.12). Nothing in this package ever mutates
// scheduler state; it is a side channel, not part of the wire protocol in
// spec.md §6, and can be disabled entirely without affecting scheduling.
package admin

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/gorilla/websocket"
	"github.com/mgpu-project/mgpu/internal/metrics"
	"github.com/mgpu-project/mgpu/internal/wire"
	"github.com/rs/cors"
)

// Snapshotter is the read-only view of master state this surface needs.
// internal/master.Master satisfies it; the interface exists so this
// package never imports internal/master's mutating surface.
type Snapshotter interface {
	Snapshot() wire.QueueResponse
}

// Server hosts the metrics and websocket endpoints.
type Server struct {
	snap         Snapshotter
	upgrader     websocket.Upgrader
	pushInterval time.Duration
}

// New builds an admin Server. pushInterval is how often connected websocket
// clients receive a fresh queue snapshot; zero defaults to one second.
func New(snap Snapshotter, pushInterval time.Duration) *Server {
	if pushInterval <= 0 {
		pushInterval = time.Second
	}
	return &Server{
		snap:         snap,
		pushInterval: pushInterval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler builds the CORS-wrapped mux serving /metrics, /ws, and /healthz.
// Exported so tests can drive it with httptest without binding a real port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	})
	return c.Handler(mux)
}

// Serve runs the HTTP surface on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	logging.Log.WithField("addr", addr).Info("admin surface listening")
	err = srv.Serve(ln)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// handleWS upgrades the connection and pushes a queue snapshot every
// pushInterval until a write fails, for example because the client
// disconnected. Shutting the HTTP server down does not close upgraded
// websocket connections, so a push loop outlives Serve until its next write
// fails.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.WriteJSON(s.snap.Snapshot()); err != nil {
			return
		}
	}
}
