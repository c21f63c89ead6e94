package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"AeroTrend/pkg/http/middleware"
	"AeroTrend/pkg/logger"
)

// Handler registers its routes on the shared Echo instance.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

// ServerConfig configures a Server. Port 0 picks a free port.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORS            bool
	// MetricsPath serves the Prometheus registry; empty disables it.
	MetricsPath string
	// SlowThreshold logs requests slower than this at warn level.
	SlowThreshold time.Duration
	Logger        *logger.Logger
}

// Server is the Echo instance with the JSON envelope error handler, the
// common middleware chain, /healthz, and optionally /metrics.
type Server struct {
	cfg  ServerConfig
	echo *echo.Echo
	log  *logger.Logger
	srv  *http.Server
	addr net.Addr
}

func NewServer(cfg ServerConfig, handlers ...Handler) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = 500 * time.Millisecond
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	e := echo.New()
	e.HideBanner, e.HidePort = true, true
	e.HTTPErrorHandler = ErrorHandler(log)
	e.Use(
		middleware.Recover(log),
		middleware.Metrics(log, cfg.SlowThreshold),
		middleware.RequestLogging(log, cfg.MetricsPath),
	)
	if cfg.CORS {
		e.Use(middleware.CORS(middleware.CORSConfig{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	for _, h := range handlers {
		if h != nil {
			h.RegisterRoutes(e)
		}
	}
	if cfg.MetricsPath != "" {
		e.GET(cfg.MetricsPath, echo.WrapHandler(promhttp.Handler()))
	}
	e.GET("/healthz", func(c echo.Context) error {
		return SuccessResponse(c, map[string]string{"status": "ok"})
	})

	return &Server{
		cfg:  cfg,
		echo: e,
		log:  log.With(logger.String("component", "http")),
	}
}

// Start binds the listener, so address errors are returned here, then
// serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)))
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.addr = ln.Addr()
	s.srv = &http.Server{
		Handler:      s.echo,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server exited", logger.Error(err))
		}
	}()
	s.log.Info("listening", logger.String("addr", s.addr.String()))
	return nil
}

// Addr is the bound address, nil before Start.
func (s *Server) Addr() net.Addr { return s.addr }

// Stop drains in-flight requests. Without a ctx deadline it waits at most
// ShutdownTimeout.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

// Echo exposes the router, mainly for in-process tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

// ErrorHandler renders every error in the APIResponse envelope. Unexpected
// errors and 5xx AppErrors are logged.
func ErrorHandler(log *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var he *echo.HTTPError
		if errors.As(err, &he) {
			_ = DataResponse(c, he.Code, fmt.Sprint(he.Message))
			return
		}
		var ae *AppError
		if !errors.As(err, &ae) || ae.Status >= http.StatusInternalServerError {
			log.Error("request failed",
				logger.String("method", c.Request().Method),
				logger.String("route", c.Path()),
				logger.Error(err),
			)
		}
		_ = AppErrorResponse(c, err)
	}
}
