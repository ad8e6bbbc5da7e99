package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/agriplan/internal/handler"
)

// RegisterAnalyze mounts POST /api/analyze.  The limiter runs after JWTAuth
// so buckets are keyed by user as well as by IP.
func RegisterAnalyze(e *echo.Echo, h *handler.AnalyzeHandler, jwt, rateLimit echo.MiddlewareFunc) {
	e.POST("/api/analyze", h.Analyze, jwt, rateLimit)
}
