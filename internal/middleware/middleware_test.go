package middleware

import (
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/agriplan/internal/config"
    "github.com/iliyamo/agriplan/internal/model"
    "github.com/iliyamo/agriplan/internal/utils"
)

var now = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func newServer() *echo.Echo {
    e := echo.New()
    echoIdentity := func(c echo.Context) error {
        id, ok := IdentityFrom(c)
        if !ok {
            return c.NoContent(http.StatusInternalServerError)
        }
        return c.JSON(http.StatusOK, id)
    }
    e.GET("/me", echoIdentity, JWTAuth("secret", clock))
    e.GET("/admin", echoIdentity, JWTAuth("secret", clock), RequireRole(model.RoleAdmin))
    return e
}

func do(e *echo.Echo, path, auth string) *httptest.ResponseRecorder {
    req := httptest.NewRequest(http.MethodGet, path, nil)
    if auth != "" {
        req.Header.Set(echo.HeaderAuthorization, auth)
    }
    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, req)
    return rec
}

func token(t *testing.T, id model.Identity, issued time.Time) string {
    t.Helper()
    tok, err := utils.NewSessionToken("secret", id, 24*time.Hour, issued)
    require.NoError(t, err)
    return tok.Token
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
    t.Helper()
    var body map[string]string
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
    assert.NotEmpty(t, body["error"])
    return body["code"]
}

func TestJWTAuth(t *testing.T) {
    e := newServer()
    user := model.Identity{ID: 3, Role: model.RoleUser, Username: "farmer"}

    rec := do(e, "/me", "")
    assert.Equal(t, http.StatusUnauthorized, rec.Code)
    assert.Equal(t, "missing_token", errorCode(t, rec))

    rec = do(e, "/me", "Basic abc")
    assert.Equal(t, http.StatusUnauthorized, rec.Code)
    assert.Equal(t, "missing_token", errorCode(t, rec))

    rec = do(e, "/me", "Bearer garbage")
    assert.Equal(t, http.StatusUnauthorized, rec.Code)
    assert.Equal(t, "invalid_token", errorCode(t, rec))

    rec = do(e, "/me", "Bearer "+token(t, user, now.Add(-25*time.Hour)))
    assert.Equal(t, http.StatusUnauthorized, rec.Code)
    assert.Equal(t, "invalid_token", errorCode(t, rec))

    rec = do(e, "/me", "bearer "+token(t, user, now.Add(-time.Hour)))
    require.Equal(t, http.StatusOK, rec.Code)
    var got model.Identity
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
    assert.Equal(t, user, got)
}

func TestRequireRole(t *testing.T) {
    e := newServer()

    rec := do(e, "/admin", "Bearer "+token(t, model.Identity{ID: 3, Role: model.RoleUser, Username: "farmer"}, now))
    assert.Equal(t, http.StatusForbidden, rec.Code)
    assert.Equal(t, "access_denied", errorCode(t, rec))

    rec = do(e, "/admin", "Bearer "+token(t, model.Identity{ID: 1, Role: model.RoleAdmin, Username: "admin"}, now))
    assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildRateKey(t *testing.T) {
    e := echo.New()
    req := httptest.NewRequest(http.MethodPost, "/api/analyze", nil)
    req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
    c := e.NewContext(req, httptest.NewRecorder())
    c.SetPath("/api/analyze")

    cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip_user_route"}
    assert.Equal(t, "rl:ip:10.0.0.1:user:anon:route:POST /api/analyze", buildRateKey(cfg, c))

    SetIdentity(c, model.Identity{ID: 42, Role: model.RoleUser})
    cfg.KeyStrategy = "user"
    assert.Equal(t, "rl:user:42", buildRateKey(cfg, c))
}

func TestNewTokenBucket_DisabledPassesThrough(t *testing.T) {
    e := echo.New()
    e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
        NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil, nil))
    rec := do(e, "/", "")
    assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRetryAfterSeconds(t *testing.T) {
    assert.Equal(t, 1, retryAfterSeconds(0))
    assert.Equal(t, 1, retryAfterSeconds(999))
    assert.Equal(t, 3, retryAfterSeconds(2001))
}
