package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "strings" // header parsing
    "time"    // injected clock for expiry checks

    "github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

    "github.com/iliyamo/agriplan/internal/apperr"
    "github.com/iliyamo/agriplan/internal/utils"
)

// JWTAuth returns an Echo middleware that validates the session token in
// `Authorization: Bearer <token>` and stores the caller's identity in the
// context (see IdentityFrom).  now supplies the time expiry is checked
// against; nil means time.Now.
func JWTAuth(secret string, now func() time.Time) echo.MiddlewareFunc {
    if now == nil {
        now = time.Now
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
            if !ok {
                return abort(c, apperr.ErrMissingToken)
            }
            id, err := utils.ParseSessionToken(secret, raw, now())
            if err != nil {
                return abort(c, err)
            }
            SetIdentity(c, id)
            return next(c)
        }
    }
}

// bearerToken extracts the token from an Authorization header value.  The
// scheme is matched case-insensitively.
func bearerToken(h string) (string, bool) {
    scheme, token, found := strings.Cut(strings.TrimSpace(h), " ")
    if !found || !strings.EqualFold(scheme, "Bearer") {
        return "", false
    }
    token = strings.TrimSpace(token)
    return token, token != ""
}
