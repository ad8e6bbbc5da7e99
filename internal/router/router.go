package router // package router defines how HTTP routes are registered for the API

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/agriplan/internal/config"
	"github.com/iliyamo/agriplan/internal/handler"    // import the handlers that implement business logic
	"github.com/iliyamo/agriplan/internal/middleware" // import middleware for JWT authentication and role enforcement
)

// Deps carries everything the routes need.  RateLimit may be nil.
type Deps struct {
	Log       *zap.Logger
	DB        *sql.DB
	Auth      *handler.AuthHandler
	Analyze   *handler.AnalyzeHandler
	Admin     *handler.AdminHandler
	RateLimit echo.MiddlewareFunc
	Now       func() time.Time // clock for token expiry; nil means time.Now
}

// New builds the Echo instance with the global middleware stack and every
// route registered.
func New(cfg config.Config, d Deps) *echo.Echo {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.RateLimit == nil {
		d.RateLimit = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(d.Log.Named("http")))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType},
	}))
	bodyLimit := cfg.BodyLimit
	if bodyLimit == "" {
		bodyLimit = "10M"
	}
	e.Use(echomw.BodyLimit(bodyLimit))

	jwt := middleware.JWTAuth(cfg.JWTSecret, d.Now)
	RegisterRoutes(e, d.DB)
	RegisterAuth(e, d.Auth, jwt, d.RateLimit)
	RegisterAnalyze(e, d.Analyze, jwt, d.RateLimit)
	RegisterAdmin(e, d.Admin, jwt)
	return e
}

// RegisterRoutes registers routes that do not require authentication:
// the liveness probe and, when a database is given, the readiness probe.
func RegisterRoutes(e *echo.Echo, db *sql.DB) {
	e.GET("/healthz", handler.Health)
	if db != nil {
		e.GET("/readyz", handler.Ready(db))
	}
}

// RegisterAuth registers register/login (rate limited, no session needed)
// and /api/me (session required).
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwt, rateLimit echo.MiddlewareFunc) {
	g := e.Group("/api")
	g.POST("/register", a.Register, rateLimit)
	g.POST("/login", a.Login, rateLimit)
	g.GET("/me", a.Me, jwt)
}
