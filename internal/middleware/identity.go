package middleware

// identity.go holds the helpers that move the authenticated caller between
// JWTAuth and the handlers, plus the error body shared by every middleware
// in this package.

import (
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/agriplan/internal/apperr"
    "github.com/iliyamo/agriplan/internal/model"
)

const identityKey = "identity"

// SetIdentity stores id on the request context.  "user_id" and "role" are
// set as well for code that only needs those.
func SetIdentity(c echo.Context, id model.Identity) {
    c.Set(identityKey, id)
    c.Set("user_id", id.ID)
    c.Set("role", id.Role)
}

// IdentityFrom returns the caller stored by JWTAuth.
func IdentityFrom(c echo.Context) (model.Identity, bool) {
    id, ok := c.Get(identityKey).(model.Identity)
    return id, ok
}

// userKey identifies the caller for rate limiting: the user id when
// authenticated, "anon" otherwise.
func userKey(c echo.Context) string {
    if id, ok := IdentityFrom(c); ok && id.ID != 0 {
        return strconv.FormatUint(id.ID, 10)
    }
    return "anon"
}

func abort(c echo.Context, err error) error {
    return c.JSON(apperr.Status(err), echo.Map{"error": err.Error(), "code": apperr.Code(err)})
}
