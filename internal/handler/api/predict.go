package api

import (
	"strings"

	"github.com/labstack/echo/v4"

	"InvSight/internal/domain/models"
	"InvSight/internal/service/ratelimit"
	"InvSight/internal/usecase"
	xhttp "InvSight/pkg/http"
	applogger "InvSight/pkg/logger"
)

// PredictHandler serves predictions and the artifact listing.
type PredictHandler struct {
	orch *usecase.Orchestrator
	rl   *ratelimit.Limiter
	l    *applogger.Logger
}

func NewPredictHandler(orch *usecase.Orchestrator, rl *ratelimit.Limiter) *PredictHandler {
	return &PredictHandler{orch: orch, rl: rl}
}

func (h *PredictHandler) SetLogger(l *applogger.Logger) { h.l = l }

func (h *PredictHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	var mw []echo.MiddlewareFunc
	if h.rl != nil {
		mw = append(mw, h.rl.Middleware())
	}
	g.POST("/predict/:role", h.Predict, mw...)
	g.GET("/artifacts", h.Artifacts)
}

// Predict godoc
// POST /api/predict/:role {subject, horizon, features}
func (h *PredictHandler) Predict(c echo.Context) error {
	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	features := make(models.Row, len(req.Features))
	for k, v := range req.Features {
		features[strings.TrimSpace(k)] = models.FromAny(v)
	}
	preq := models.PredictionRequest{
		RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
		Role:      models.Role(req.Role),
		Subject:   req.Subject,
		Horizon:   req.Horizon,
		Features:  features,
	}

	res, err := h.orch.Predict(c.Request().Context(), preq)
	if err != nil {
		return failure(c, h.l, "predict "+req.Role, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PredictHandler) Artifacts(c echo.Context) error {
	reg := h.orch.Registry()
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"location":  reg.Location(),
		"roles":     reg.Roles(),
		"artifacts": reg.List(),
	})
}

var _ xhttp.Handler = (*PredictHandler)(nil)
