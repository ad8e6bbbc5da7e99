package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/agriplan/internal/apperr"
)

// respondError writes the standard error body {"error", "code"} with the
// status apperr assigns to err.  Unclassified errors are logged and their
// text is not shown to the client.
func respondError(c echo.Context, log *zap.Logger, err error) error {
    return respondErrorStatus(c, log, apperr.Status(err), err)
}

func respondErrorStatus(c echo.Context, log *zap.Logger, status int, err error) error {
    code := apperr.Code(err)
    msg := err.Error()
    if code == "internal_error" {
        log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
        msg = "internal server error"
    }
    return c.JSON(status, echo.Map{"error": msg, "code": code})
}

func badRequest(c echo.Context, msg string) error {
    return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "code": apperr.Code(apperr.ErrInvalidInput)})
}
