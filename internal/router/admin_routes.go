package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/agriplan/internal/handler"
	"github.com/iliyamo/agriplan/internal/middleware"
	"github.com/iliyamo/agriplan/internal/model"
)

// RegisterAdmin mounts the account management endpoints under /api/admin.
// Every route requires a session with the admin role.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, jwt echo.MiddlewareFunc) {
	g := e.Group("/api/admin")
	g.Use(jwt)
	g.Use(middleware.RequireRole(model.RoleAdmin))
	g.GET("/users", h.ListUsers)
	g.POST("/update-status", h.UpdateStatus)
	g.POST("/update-limit", h.UpdateLimit)
	g.POST("/reset-usage", h.ResetUsage)
}
