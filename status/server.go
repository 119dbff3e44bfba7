package status

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/kbukum/medallion/component"
	"github.com/kbukum/medallion/logger"
)

const componentName = "status-server"

var (
	_ component.Component   = (*Server)(nil)
	_ component.Describable = (*Server)(nil)
)

// Server is the Gin-backed status endpoint. It is a component.Component.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     Config
	src        Sources
	log        *logger.Logger
	addr       atomic.Value // bound address once started
	serving    atomic.Bool
}

// New creates the server and registers its routes.
func New(cfg Config, src Sources, log *logger.Logger) *Server {
	cfg.ApplyDefaults()
	switch {
	case gin.Mode() == gin.TestMode:
	case zerolog.GlobalLevel() <= zerolog.DebugLevel:
		gin.SetMode(gin.DebugMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		engine: gin.New(),
		config: cfg,
		src:    src,
		log:    logger.OrComponent(log, "status"),
	}
	s.engine.Use(recovery(s.log), requestID(), requestLogger(s.log))
	s.engine.GET("/healthz", s.healthz)
	s.engine.GET("/status", s.status)
	s.engine.GET("/freshness", s.freshness)
	s.engine.GET("/version", s.version)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.engine,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Name returns the component name.
func (s *Server) Name() string { return componentName }

// Start binds the port and serves in the background. It returns once the
// listener is bound.
func (s *Server) Start(_ context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("status server failed to bind %s: %w", s.httpServer.Addr, err)
	}
	s.addr.Store(listener.Addr().String())
	s.serving.Store(true)

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("Status server error", logger.ErrorFields("serve", err))
		}
		s.serving.Store(false)
	}()

	s.log.Info("Status server started", logger.Fields("addr", listener.Addr().String()))
	return nil
}

// Stop gracefully shuts down the server with a 5-second deadline.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	s.serving.Store(false)
	s.log.Info("Status server stopped")
	return nil
}

// Health reports whether the server is serving.
func (s *Server) Health(_ context.Context) component.Health {
	if !s.serving.Load() {
		return component.Health{Name: componentName, Status: component.StatusUnhealthy, Message: "status server not serving"}
	}
	return component.Health{Name: componentName, Status: component.StatusHealthy}
}

// Addr returns the bound address after Start, or the configured one before.
func (s *Server) Addr() string {
	if a, ok := s.addr.Load().(string); ok {
		return a
	}
	return s.httpServer.Addr
}

// Describe returns a startup summary.
func (s *Server) Describe() component.Description {
	return component.Description{
		Name:    "Status Server",
		Type:    "server",
		Details: s.Addr(),
		Port:    s.config.Port,
	}
}
