package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/webitel/im-realtime-service/config"
	"go.uber.org/fx"
)

var Module = fx.Module("http-server",
	fx.Provide(func(cfg *config.Config, h http.Handler, logger *slog.Logger) *Server {
		return New(cfg.HTTP.Addr, h, cfg.HTTP.ShutdownTimeout, logger.With("component", "http-server"))
	}),
	fx.Invoke(func(lc fx.Lifecycle, s *Server) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error { return s.Start() },
			OnStop:  s.Stop,
		})
	}),
)

type Server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
	addr            net.Addr
}

func New(addr string, h http.Handler, shutdownTimeout time.Duration, logger *slog.Logger) *Server {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: shutdownTimeout,
		logger:          logger,
	}
}

// Start binds the listener synchronously so a taken port fails the app start.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("http: listen %s: %w", s.srv.Addr, err)
	}
	s.addr = ln.Addr()
	s.logger.Info("HTTP_SERVER_STARTED", "addr", s.addr.String())

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP_SERVER_FAILED", "err", err)
		}
	}()
	return nil
}

// Stop drains in-flight requests. Hijacked WebSocket connections are not
// tracked by Shutdown; they end when the registry shuts down.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http: shutdown: %w", err)
	}
	s.logger.Info("HTTP_SERVER_STOPPED")
	return nil
}

// Addr is the bound address once started.
func (s *Server) Addr() net.Addr { return s.addr }
