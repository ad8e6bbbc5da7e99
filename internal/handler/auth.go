package handler

import (
    "context"  // provides context with cancellation for DB calls
    "net/http" // HTTP status codes and primitives
    "time"     // timeouts for DB calls

    "github.com/labstack/echo/v4" // Echo framework for HTTP routing
    "go.uber.org/zap"

    "github.com/iliyamo/agriplan/internal/apperr"
    "github.com/iliyamo/agriplan/internal/middleware"
    "github.com/iliyamo/agriplan/internal/model"
    "github.com/iliyamo/agriplan/internal/service"
)

// AuthHandler serves registration, login and the caller's own profile.
type AuthHandler struct {
	Auth *service.AuthService
	log  *zap.Logger
}

func NewAuthHandler(auth *service.AuthService, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{Auth: auth, log: log}
}

// ----- DTOs -----

type credentialsReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerResp struct {
	Message string `json:"message"`
	Role    string `json:"role"`
	Status  string `json:"status"`
}

// Register creates an account.  Admin accounts can log in immediately;
// everyone else waits for approval.
func (h *AuthHandler) Register(c echo.Context) error {
	var req credentialsReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Auth.Register(ctx, req.Username, req.Password)
	if err != nil {
		return respondError(c, h.log, err)
	}
	msg := "registered; waiting for admin approval"
	if u.Status == model.StatusApproved {
		msg = "registered"
	}
	return c.JSON(http.StatusOK, registerResp{Message: msg, Role: u.Role, Status: u.Status})
}

// Login verifies the credentials and returns a session token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req credentialsReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	sess, err := h.Auth.Login(ctx, req.Username, req.Password)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, sess)
}

// Me returns the authenticated caller's account including quota counters.
func (h *AuthHandler) Me(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return respondError(c, h.log, apperr.ErrMissingToken)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Auth.Me(ctx, id.ID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, u)
}
