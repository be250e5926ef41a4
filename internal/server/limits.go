package server

import (
	"log"
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/earshotfm/earshot/config"
	"github.com/earshotfm/earshot/internal/ratelimit"
)

// checkRate enforces one fixed-window budget for a caller. A limiter outage
// fails open: the budget protects capacity, it is not an authorization step.
func checkRate(c echo.Context, l *ratelimit.Limiter, surface, subject string, rs config.RateSetting) error {
	if l == nil {
		return nil
	}
	res, err := l.Check(c.Request().Context(), surface+":"+subject, rs.Max, rs.Window)
	if err != nil {
		log.Printf("[HTTP] rate limit check for %s: %v", surface, err)
		return nil
	}
	if res.Allowed {
		return nil
	}
	rateLimitRejections.WithLabelValues(surface).Inc()
	retry := int(math.Ceil(res.RetryAfter.Seconds()))
	if retry < 1 {
		retry = 1
	}
	c.Response().Header().Set("Retry-After", strconv.Itoa(retry))
	return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded, slow down")
}

// logf writes through the handler's logger, falling back to the process
// logger so a zero-value handler still reports.
func logf(l *log.Logger, format string, args ...interface{}) {
	if l == nil {
		log.Printf(format, args...)
		return
	}
	l.Printf(format, args...)
}
