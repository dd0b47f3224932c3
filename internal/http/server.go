package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"cloudamp/internal/core"
)

// Server exposes the UI push socket, health endpoints and prometheus
// metrics on one listener.
type Server struct {
	config  *core.ServerConfig
	logger  *zap.Logger
	server  *http.Server
	metrics *Metrics
	hub     *Hub
}

// Metrics implements core.Metrics with prometheus collectors.
type Metrics struct {
	CacheOpsTotal    *prometheus.CounterVec
	ResolutionsTotal *prometheus.CounterVec
	SkipChainLength  prometheus.Histogram
	CatalogPlaylists prometheus.Gauge
	ConnectedClients prometheus.Gauge
}

func NewServer(config *core.ServerConfig, logger *zap.Logger) *Server {
	metrics := &Metrics{
		CacheOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudamp_cache_ops_total",
				Help: "Cache lookups by kind and result",
			},
			[]string{"kind", "result"},
		),
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudamp_resolutions_total",
				Help: "Song URL resolutions by outcome",
			},
			[]string{"outcome"},
		),
		SkipChainLength: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cloudamp_skip_chain_length",
				Help:    "Number of unplayable tracks skipped before a playable one",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
			},
		),
		CatalogPlaylists: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cloudamp_catalog_playlists",
				Help: "Playlists currently in the catalog",
			},
		),
		ConnectedClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cloudamp_connected_clients",
				Help: "Connected UI websocket clients",
			},
		),
	}

	prometheus.MustRegister(
		metrics.CacheOpsTotal,
		metrics.ResolutionsTotal,
		metrics.SkipChainLength,
		metrics.CatalogPlaylists,
		metrics.ConnectedClients,
	)

	hub := NewHub(logger.Named("hub"), metrics.ConnectedClients)

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"cloudamp"}`)) //nolint:errcheck
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready","service":"cloudamp"}`)) //nolint:errcheck
	})

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", hub.ServeWS)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return &Server{
		config:  config,
		logger:  logger,
		server:  server,
		metrics: metrics,
		hub:     hub,
	}
}

// Hub returns the websocket hub; it implements core.Notifier.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		s.hub.Close()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// CacheHit implements core.Metrics.
func (m *Metrics) CacheHit(kind string) {
	m.CacheOpsTotal.WithLabelValues(kind, "hit").Inc()
}

func (m *Metrics) CacheMiss(kind string) {
	m.CacheOpsTotal.WithLabelValues(kind, "miss").Inc()
}

func (m *Metrics) Resolution(outcome string) {
	m.ResolutionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SkipChain(length int) {
	m.SkipChainLength.Observe(float64(length))
}

func (m *Metrics) CatalogSize(n int) {
	m.CatalogPlaylists.Set(float64(n))
}

func (s *Server) Metrics() *Metrics {
	return s.metrics
}
