// Package server exposes the orchestrator over HTTP.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zen-systems/finroute/pkg/orchestrator"
)

// Server wires HTTP routes to an orchestrator.
type Server struct {
	orch     *orchestrator.Orchestrator
	engine   *gin.Engine
	gatherer prometheus.Gatherer
	store    ResponderStore
	debug    bool
	started  time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// WithStore enables the responder admin routes. Changes are written to st and
// the registry is reloaded afterwards, so st should back the registry provider.
func WithStore(st ResponderStore) Option {
	return func(s *Server) {
		s.store = st
	}
}

// WithDebug enables gin debug mode and request logging.
func WithDebug(debug bool) Option {
	return func(s *Server) {
		s.debug = debug
	}
}

// New builds the HTTP surface for orch.
func New(orch *orchestrator.Orchestrator, opts ...Option) *Server {
	s := &Server{
		orch:     orch,
		gatherer: prometheus.DefaultGatherer,
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if !s.debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	if s.debug {
		engine.Use(gin.Logger())
	}
	engine.Use(gin.Recovery())
	s.engine = engine
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.healthz)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := s.engine.Group("/v1")
	v1.POST("/query", s.query)
	v1.POST("/collaborate", s.collaborate)
	v1.POST("/classify", s.classify)
	v1.GET("/responders", s.responders)
	v1.POST("/responders", s.upsertResponder)
	v1.POST("/responders/reload", s.reload)
	v1.PUT("/responders/:id", s.upsertResponder)
	v1.DELETE("/responders/:id", s.deleteResponder)
	v1.POST("/responders/:id/active", s.setActive)
	v1.GET("/gates", s.gates)
	v1.POST("/gates/reset", s.resetAllGates)
	v1.POST("/gates/:id/reset", s.resetGate)
	v1.POST("/metrics/reset", s.resetHealth)
	v1.GET("/status", s.status)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[server] listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Printf("[server] shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
