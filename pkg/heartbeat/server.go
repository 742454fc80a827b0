package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vyvo/heartbeat/pkg/registry"
)

const (
	// DefaultAddr is the local endpoint heartbeats are accepted on.
	DefaultAddr = "localhost:12211"

	defaultShutdownTimeout = 5 * time.Second
	tracerName             = "github.com/vyvo/heartbeat/pkg/heartbeat"
)

// Metrics receives heartbeat traffic and registry observations.
type Metrics interface {
	ObserveRequest(status int)
	SetTrackedClients(count int)
	SetSilentClients(count int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveRequest(int)    {}
func (nopMetrics) SetTrackedClients(int) {}
func (nopMetrics) SetSilentClients(int)  {}

// Options configures a Server. Zero values fall back to defaults.
type Options struct {
	Addr            string
	ShutdownTimeout time.Duration
	Registry        *registry.Registry
	Logger          *zap.Logger
	Metrics         Metrics
	Tracer          trace.Tracer
}

// Server accepts heartbeats over HTTP and records them in a Registry.
// The registry is owned by the caller and outlives Stop.
type Server struct {
	addr            string
	shutdownTimeout time.Duration
	registry        *registry.Registry
	logger          *zap.Logger
	metrics         Metrics
	tracer          trace.Tracer

	mu       sync.Mutex
	running  atomic.Bool
	httpSrv  *http.Server
	listener net.Listener
	quit     chan struct{}
	done     chan struct{}
}

// New builds a stopped server.
func New(opts Options) *Server {
	s := &Server{
		addr:            opts.Addr,
		shutdownTimeout: opts.ShutdownTimeout,
		registry:        opts.Registry,
		logger:          opts.Logger,
		metrics:         opts.Metrics,
		tracer:          opts.Tracer,
	}
	if s.addr == "" {
		s.addr = DefaultAddr
	}
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = defaultShutdownTimeout
	}
	if s.registry == nil {
		s.registry = registry.New()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	return s
}

// Registry exposes the last-seen registry to the host process.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// Running reports whether the server is currently accepting heartbeats.
func (s *Server) Running() bool {
	return s.running.Load()
}

// Addr returns the bound address, or nil while stopped.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start binds the endpoint and serves in the background. It is a no-op when
// the server is already running. Bind failures are returned and leave the
// server stopped.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.logger.Error("failed to start heartbeat server", zap.String("addr", s.addr), zap.Error(err))
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	errorLog, err := zap.NewStdLogAt(s.logger.Named("http"), zap.ErrorLevel)
	if err != nil {
		errorLog = zap.NewStdLog(s.logger.Named("http"))
	}

	srv := &http.Server{
		Handler:  s.routes(),
		ErrorLog: errorLog,
	}
	quit := make(chan struct{})
	done := make(chan struct{})

	s.httpSrv = srv
	s.listener = ln
	s.quit = quit
	s.done = done
	s.running.Store(true)

	go s.serve(srv, &acceptLoop{Listener: ln, server: s, quit: quit}, done)

	s.logger.Info("heartbeat server started", zap.String("addr", ln.Addr().String()))
	return nil
}

// serve runs the accept loop until Stop, or until the listener is closed out
// from under a running server. In the latter case the server is moved to
// stopped so Start can bind again.
func (s *Server) serve(srv *http.Server, ln net.Listener, done chan struct{}) {
	defer close(done)

	err := srv.Serve(ln)
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return
	}
	if !s.running.CompareAndSwap(true, false) {
		return
	}

	s.logger.Error("heartbeat listener error", zap.Error(err))
	if err := srv.Close(); err != nil {
		s.logger.Error("error closing heartbeat server", zap.Error(err))
	}

	s.mu.Lock()
	if s.done == done {
		s.httpSrv = nil
		s.listener = nil
		s.quit = nil
		s.done = nil
	}
	s.mu.Unlock()

	s.logger.Info("heartbeat server stopped")
}

const maxAcceptDelay = time.Second

// acceptLoop keeps accepting while the server is running: accept failures are
// logged and retried with backoff. It gives up only once the server is
// stopping or the listener itself has been closed.
type acceptLoop struct {
	net.Listener
	server *Server
	quit   <-chan struct{}
}

func (l *acceptLoop) Accept() (net.Conn, error) {
	var delay time.Duration
	for {
		conn, err := l.Listener.Accept()
		if err == nil {
			return conn, nil
		}
		if !l.server.running.Load() || errors.Is(err, net.ErrClosed) {
			return nil, err
		}

		if delay == 0 {
			delay = 5 * time.Millisecond
		} else if delay *= 2; delay > maxAcceptDelay {
			delay = maxAcceptDelay
		}
		l.server.logger.Error("heartbeat accept error", zap.Error(err), zap.Duration("retry_in", delay))

		timer := time.NewTimer(delay)
		select {
		case <-l.quit:
			timer.Stop()
			return nil, err
		case <-timer.C:
		}
	}
}

// Stop releases the endpoint. It is a no-op when already stopped, and it
// always leaves the server stopped; cleanup errors are logged.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.CompareAndSwap(true, false) {
		return
	}
	close(s.quit)

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("error stopping heartbeat server", zap.Error(err))
		if err := s.httpSrv.Close(); err != nil {
			s.logger.Error("error closing heartbeat server", zap.Error(err))
		}
	}
	<-s.done

	s.httpSrv = nil
	s.listener = nil
	s.quit = nil
	s.done = nil

	s.logger.Info("heartbeat server stopped")
}
