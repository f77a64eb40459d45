package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/room4-2/zellolink/registry"
)

// StreamCounter reports how many streams are open
type StreamCounter interface {
	ActiveStreams() int
}

// StreamLister lists tracked streams
type StreamLister interface {
	Get(streamID uint32) (registry.Entry, bool)
	ActiveIDs(ctx context.Context) ([]uint32, error)
}

// Server exposes health, stream listing and Prometheus metrics
type Server struct {
	httpServer *http.Server
	streams    StreamCounter
	registry   StreamLister
	logger     logrus.FieldLogger
}

type healthResponse struct {
	Status  string `json:"status"`
	Streams int    `json:"streams"`
}

type streamResponse struct {
	StreamID  uint32 `json:"stream_id"`
	Channel   string `json:"channel,omitempty"`
	From      string `json:"from,omitempty"`
	StartedAt string `json:"started_at,omitempty"`
	Remote    bool   `json:"remote,omitempty"`
}

// NewStatusServer builds the status endpoints. reg may be nil.
func NewStatusServer(port int, streams StreamCounter, reg StreamLister, gatherer prometheus.Gatherer, logger logrus.FieldLogger) *Server {
	s := &Server{
		streams:  streams,
		registry: reg,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/streams", s.handleStreams)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the route multiplexer
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("🚀 Status server starting")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Serve is Start on an existing listener
func (s *Server) Serve(l net.Listener) error {
	err := s.httpServer.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("🛑 Shutting down status server...")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Streams: s.streams.ActiveStreams()})
}

func (s *Server) handleStreams(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		s.writeJSON(w, http.StatusOK, []streamResponse{})
		return
	}

	ids, err := s.registry.ActiveIDs(r.Context())
	if err != nil {
		s.logger.WithError(err).Warn("⚠️ Failed to list streams")
		http.Error(w, "stream registry unavailable", http.StatusServiceUnavailable)
		return
	}

	out := make([]streamResponse, 0, len(ids))
	for _, id := range ids {
		entry, ok := s.registry.Get(id)
		if !ok {
			out = append(out, streamResponse{StreamID: id, Remote: true})
			continue
		}
		out = append(out, streamResponse{
			StreamID:  id,
			Channel:   entry.Channel,
			From:      entry.From,
			StartedAt: entry.StartedAt.Format(time.RFC3339),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		s.logger.WithError(err).Error("❌ Failed to encode response")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
