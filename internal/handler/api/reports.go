package api

import (
	"github.com/labstack/echo/v4"

	"InvSight/internal/domain/models"
	"InvSight/internal/usecase"
	xhttp "InvSight/pkg/http"
	applogger "InvSight/pkg/logger"
)

// ReportsHandler serves the inventory reports computed over the active snapshot.
type ReportsHandler struct {
	reports *usecase.Reports
	l       *applogger.Logger
}

func NewReportsHandler(reports *usecase.Reports) *ReportsHandler {
	return &ReportsHandler{reports: reports}
}

func (h *ReportsHandler) SetLogger(l *applogger.Logger) { h.l = l }

func (h *ReportsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/reports")
	g.GET("/suppliers", h.Suppliers)
	g.GET("/replenishment", h.Replenishment)
	g.GET("/warehouses", h.Warehouses)
}

func (h *ReportsHandler) Suppliers(c echo.Context) error {
	out, err := h.reports.SupplierPerformance(c.Request().Context())
	if err != nil {
		return failure(c, h.l, "supplier report", err)
	}
	return xhttp.ListResponse(c, out, int64(len(out)))
}

func (h *ReportsHandler) Replenishment(c echo.Context) error {
	req := &models.ReplenishmentRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	out, err := h.reports.Replenishment(c.Request().Context(), req.Quantile, req.Limit)
	if err != nil {
		return failure(c, h.l, "replenishment report", err)
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *ReportsHandler) Warehouses(c echo.Context) error {
	out, err := h.reports.Warehouses(c.Request().Context())
	if err != nil {
		return failure(c, h.l, "warehouse report", err)
	}
	return xhttp.ListResponse(c, out, int64(len(out)))
}

var _ xhttp.Handler = (*ReportsHandler)(nil)
