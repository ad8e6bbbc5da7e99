package handler

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/agriplan/internal/apperr"
    "github.com/iliyamo/agriplan/internal/service"
)

// AdminHandler serves the role-gated account management endpoints.
type AdminHandler struct {
	Quota *service.QuotaController
	log   *zap.Logger
}

func NewAdminHandler(q *service.QuotaController, log *zap.Logger) *AdminHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminHandler{Quota: q, log: log}
}

// userID accepts a JSON number or a numeric string, since older clients
// send ids either way.
type userID uint64

func (u *userID) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	n, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil || n == 0 {
		return fmt.Errorf("invalid userId %s", b)
	}
	*u = userID(n)
	return nil
}

type updateStatusReq struct {
	UserID *userID `json:"userId"`
	Status string  `json:"status"`
}

type updateLimitReq struct {
	UserID *userID `json:"userId"`
	Limit  *int    `json:"limit"`
}

type resetUsageReq struct {
	UserID *userID `json:"userId"`
}

var success = echo.Map{"success": true}

// ListUsers returns every account.
func (h *AdminHandler) ListUsers(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	users, err := h.Quota.List(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, users)
}

// UpdateStatus approves or bans an account.
func (h *AdminHandler) UpdateStatus(c echo.Context) error {
	var req updateStatusReq
	if err := c.Bind(&req); err != nil || req.UserID == nil {
		return badRequest(c, "userId and status required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Quota.SetStatus(ctx, uint64(*req.UserID), req.Status); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, success)
}

// UpdateLimit changes an account's daily limit.
func (h *AdminHandler) UpdateLimit(c echo.Context) error {
	var req updateLimitReq
	if err := c.Bind(&req); err != nil || req.UserID == nil || req.Limit == nil {
		return badRequest(c, "userId and limit required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Quota.SetLimit(ctx, uint64(*req.UserID), *req.Limit); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, success)
}

// ResetUsage sets an account's usage counter back to zero.
func (h *AdminHandler) ResetUsage(c echo.Context) error {
	var req resetUsageReq
	if err := c.Bind(&req); err != nil || req.UserID == nil {
		return badRequest(c, "userId required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Quota.ResetUsage(ctx, uint64(*req.UserID)); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, success)
}

// fail answers 404 for unknown target accounts; on analyze the same error
// means the caller's own session is stale and stays 401.
func (h *AdminHandler) fail(c echo.Context, err error) error {
	if errors.Is(err, apperr.ErrUserNotFound) {
		return respondErrorStatus(c, h.log, http.StatusNotFound, err)
	}
	return respondError(c, h.log, err)
}

var _ json.Unmarshaler = (*userID)(nil)
