package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hrygo/likewise/internal/profile"
	ratelimit "github.com/hrygo/likewise/server/middleware"
	apiv1 "github.com/hrygo/likewise/server/router/api/v1"
)

// Per-client request budget for the API group.
const (
	apiRequestsPerSecond = 10
	apiBurst             = 20
)

// Server serves the HTTP API. The caller owns the store behind recommender.
type Server struct {
	Profile *profile.Profile

	echoServer *echo.Echo
}

func NewServer(ctx context.Context, profile *profile.Profile, recommender apiv1.Recommender) (*Server, error) {
	s := &Server{
		Profile: profile,
	}

	echoServer := echo.New()
	echoServer.Debug = profile.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.JSONSerializer = jsonSerializer{}
	echoServer.Use(middleware.Recover())
	s.echoServer = echoServer

	// Register healthz endpoint.
	echoServer.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})
	echoServer.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	limiter := ratelimit.NewRateLimiter(apiRequestsPerSecond, apiBurst)
	apiv1.NewAPIV1Service(recommender).RegisterGateway(ctx, echoServer, limiter.Middleware())

	return s, nil
}

func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}

	s.echoServer.Listener = listener
	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", "error", err)
		}
	}()
	slog.InfoContext(ctx, "server started", "address", address, "version", s.Profile.Version)
	return nil
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// Shutdown echo server.
	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	slog.Info("server stopped properly")
}

// Handler exposes the router for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}
