package server

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Burch-Group/labsync/internal/config"
	"github.com/Burch-Group/labsync/internal/hub"
)

type Server struct {
	echo        *echo.Echo
	config      *config.Config
	hub         *hub.Hub
	limits      *ConnectionLimits
	redisClient *goredis.Client
	startTime   time.Time
}

// NewServer wires routes and middleware. redisClient may be nil when the
// producer bridge is disabled; readiness then skips the Redis check.
func NewServer(cfg *config.Config, h *hub.Hub, redisClient *goredis.Client) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	srv := &Server{
		echo:        e,
		config:      cfg,
		hub:         h,
		limits:      NewConnectionLimits(cfg.MaxConnections, cfg.MaxConnectionsPerIP, cfg.ConnectRatePerIP, cfg.ConnectBurstPerIP),
		redisClient: redisClient,
		startTime:   time.Now(),
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
