package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/agriplan/internal/analysis"
    "github.com/iliyamo/agriplan/internal/apperr"
    "github.com/iliyamo/agriplan/internal/middleware"
    "github.com/iliyamo/agriplan/internal/service"
)

// AnalyzeHandler exposes the analysis pipeline.
type AnalyzeHandler struct {
	Svc *service.AnalysisService
	log *zap.Logger
}

func NewAnalyzeHandler(svc *service.AnalysisService, log *zap.Logger) *AnalyzeHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AnalyzeHandler{Svc: svc, log: log}
}

// Analyze accepts either the structured scenario or a legacy
// {prompt, imageBase64} body and answers with the provider's plan document
// byte for byte.  X-Cache tells whether the plan came from the cache.
//
// The service bounds the provider call itself, so no extra timeout is put
// on the request context here.
func (h *AnalyzeHandler) Analyze(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return respondError(c, h.log, apperr.ErrMissingToken)
	}
	var req analysis.Request
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.Svc.Analyze(c.Request().Context(), id, req)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if out.Cached {
		c.Response().Header().Set("X-Cache", "HIT")
	} else {
		c.Response().Header().Set("X-Cache", "MISS")
	}
	return c.JSONBlob(http.StatusOK, out.Result.Raw)
}
