package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"AeroTrend/pkg/logger"
)

// RequestLogging writes one debug line per request. Paths in skip are not
// logged; the metrics scrape would otherwise dominate the output.
func RequestLogging(log *logger.Logger, skip ...string) echo.MiddlewareFunc {
	quiet := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		quiet[p] = struct{}{}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := quiet[c.Request().URL.Path]; ok {
				return next(c)
			}
			began := time.Now()
			err := next(c)

			res := c.Response()
			fields := []logger.Field{
				logger.String("method", c.Request().Method),
				logger.String("route", routeOf(c)),
				logger.Int("status", res.Status),
				logger.Int64("bytes", res.Size),
				logger.String("remote", c.RealIP()),
				logger.Duration("duration_ms", time.Since(began)),
			}
			if id := c.Request().Header.Get(echo.HeaderXRequestID); id != "" {
				fields = append(fields, logger.String("request_id", id))
			}
			log.Debug("http request", fields...)
			return err
		}
	}
}

func routeOf(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return c.Request().URL.Path
}
