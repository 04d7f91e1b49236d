package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cuemby/ember/pkg/dispatcher"
	"github.com/cuemby/ember/pkg/events"
	"github.com/cuemby/ember/pkg/log"
	"github.com/cuemby/ember/pkg/manager"
	"github.com/cuemby/ember/pkg/metrics"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
)

// Server exposes the dispatcher over HTTP and a gRPC health service
type Server struct {
	dispatcher  *dispatcher.Dispatcher
	broker      *events.Broker
	health      *metrics.HealthChecker
	cluster     *manager.Manager
	corsOrigins []string
	limiter     *clientLimiter
	access      *accessList
	proxies     []*net.IPNet

	router     chi.Router
	httpServer *http.Server
	grpc       *grpc.Server
	grpcHealth *HealthService
	mu         sync.Mutex

	logger zerolog.Logger
}

// Option configures a Server
type Option func(*Server)

// WithBroker enables the /v1/events stream
func WithBroker(b *events.Broker) Option {
	return func(s *Server) { s.broker = b }
}

// WithHealthChecker serves /health and /ready from h
func WithHealthChecker(h *metrics.HealthChecker) Option {
	return func(s *Server) { s.health = h }
}

// WithCluster enables the /v1/cluster endpoints
func WithCluster(m *manager.Manager) Option {
	return func(s *Server) { s.cluster = m }
}

// WithRateLimit throttles task submissions per client address. A rate of
// zero or less leaves submissions unthrottled.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = newClientLimiter(rps, burst)
	}
}

// WithAccessList restricts /v1 to clients matching allowed and not matching
// denied. An unparseable list denies every client.
func WithAccessList(allowed, denied []string) Option {
	return func(s *Server) {
		if len(allowed) == 0 && len(denied) == 0 {
			s.access = nil
			return
		}
		a, err := newAccessList(allowed, denied)
		if err != nil {
			s.logger.Error().Err(err).Msg("invalid access list, denying all clients")
			a = &accessList{denied: []*net.IPNet{
				{IP: net.IPv4zero.To4(), Mask: net.CIDRMask(0, 32)},
				{IP: net.IPv6zero, Mask: net.CIDRMask(0, 128)},
			}}
		}
		s.access = a
	}
}

// WithTrustedProxies names the peers whose forwarding headers identify the
// client. Without it every client is known by its connection address.
func WithTrustedProxies(proxies []string) Option {
	return func(s *Server) {
		nets, err := parseNets(proxies)
		if err != nil {
			s.logger.Error().Err(err).Msg("invalid trusted proxies, ignoring forwarding headers")
			nets = nil
		}
		s.proxies = nets
	}
}

// WithCORS allows cross-origin requests from the given origins
func WithCORS(origins ...string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// NewServer creates a new API server
func NewServer(d *dispatcher.Dispatcher, opts ...Option) *Server {
	s := &Server{
		dispatcher: d,
		logger:     log.WithComponent("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.health == nil {
		s.health = metrics.NewHealthChecker("", "workers")
	}

	s.grpcHealth = NewHealthService(d)
	s.grpc = grpc.NewServer(
		grpc.ChainUnaryInterceptor(UnaryInterceptor(s.logger)),
		grpc.ChainStreamInterceptor(StreamInterceptor(s.logger)),
	)
	s.grpcHealth.Register(s.grpc)

	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	if len(s.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/health", s.health.HealthHandler())
	r.Get("/ready", s.health.ReadyHandler())
	r.Get("/live", s.health.LivenessHandler())
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.checkAccess)
		r.With(s.limitSubmissions).Post("/tasks", s.submitTask)
		r.Get("/history", s.history)
		r.Get("/events", s.streamEvents)

		r.Route("/workers", func(r chi.Router) {
			r.Get("/", s.listWorkers)
			r.Post("/", s.addWorker)
			r.Get("/{id}", s.getWorker)
			r.Delete("/{id}", s.removeWorker)
			r.Put("/{id}/state", s.updateState)
			r.Post("/{id}/tasks/{task}/complete", s.completeTask)
			r.Post("/{id}/tasks/{task}/cancel", s.cancelTask)
		})

		r.Route("/cluster", func(r chi.Router) {
			r.Use(s.requireCluster)
			r.Get("/", s.clusterInfo)
			r.Get("/tokens", s.listJoinTokens)
			r.Post("/tokens", s.createJoinToken)
			r.Post("/join", s.joinCluster)
			r.Delete("/servers/{id}", s.removeServer)
		})
	})

	return r
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info().Str("addr", addr).Msg("HTTP API listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartGRPC serves the gRPC health service on addr
func (s *Server) StartGRPC(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.logger.Info().Str("addr", addr).Msg("gRPC health listening")
	return s.ServeGRPC(lis)
}

// ServeGRPC serves the gRPC health service on lis
func (s *Server) ServeGRPC(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// WatchHealth keeps the gRPC serving status in line with worker readiness
// until ctx ends
func (s *Server) WatchHealth(ctx context.Context, interval time.Duration) {
	s.grpcHealth.Watch(ctx, interval)
}

// Shutdown stops both servers
func (s *Server) Shutdown(ctx context.Context) error {
	s.grpcHealth.Shutdown()
	s.grpc.GracefulStop()

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
