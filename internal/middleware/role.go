package middleware // middleware provides shared request processing for handlers

import (
    "github.com/labstack/echo/v4" // echo provides middleware chaining and context

    "github.com/iliyamo/agriplan/internal/apperr"
)

// RequireRole returns a middleware that lets the request through only when
// the identity stored by JWTAuth has one of roles.  Anything else, including
// a missing identity, is answered with 403.
func RequireRole(roles ...string) echo.MiddlewareFunc {
    allowed := make(map[string]bool, len(roles))
    for _, r := range roles {
        allowed[r] = true
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            id, ok := IdentityFrom(c)
            if !ok || !allowed[id.Role] {
                return abort(c, apperr.ErrAccessDenied)
            }
            return next(c)
        }
    }
}
