package api

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"InvSight/internal/domain/models"
	"InvSight/internal/usecase"
	xhttp "InvSight/pkg/http"
	applogger "InvSight/pkg/logger"
)

// SnapshotHandler exposes snapshot refresh, background jobs and training exports.
type SnapshotHandler struct {
	snaps    *usecase.SnapshotManager
	dispatch *usecase.Dispatcher
	l        *applogger.Logger
}

func NewSnapshotHandler(snaps *usecase.SnapshotManager, dispatch *usecase.Dispatcher) *SnapshotHandler {
	return &SnapshotHandler{snaps: snaps, dispatch: dispatch}
}

func (h *SnapshotHandler) SetLogger(l *applogger.Logger) { h.l = l }

func (h *SnapshotHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/snapshots/current", h.Current)
	g.POST("/snapshots/refresh", h.Refresh)
	g.POST("/export/:role", h.Export)
	g.GET("/jobs/:id", h.Job)
}

func (h *SnapshotHandler) Current(c echo.Context) error {
	snap := h.snaps.Current()
	if snap == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no snapshot has been built yet"))
	}
	return xhttp.SuccessResponse(c, snap.Info())
}

// Refresh rebuilds the snapshot. With a job queue the rebuild is queued
// unless wait=true.
func (h *SnapshotHandler) Refresh(c echo.Context) error {
	req := &models.RefreshRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if w, err := strconv.ParseBool(c.QueryParam("wait")); err == nil {
		req.Wait = w
	}
	ctx := c.Request().Context()

	if req.Wait || !h.dispatch.Queued() {
		snap, err := h.snaps.Refresh(ctx)
		if err != nil {
			return failure(c, h.l, "snapshot refresh", err)
		}
		return xhttp.SuccessResponse(c, snap.Info())
	}

	id, _, err := h.dispatch.SubmitRefresh(ctx, "api")
	if err != nil {
		return failure(c, h.l, "snapshot refresh", err)
	}
	return xhttp.AcceptedResponse(c, map[string]string{"job_id": id})
}

func (h *SnapshotHandler) Export(c echo.Context) error {
	req := &models.ExportRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	id, res, err := h.dispatch.SubmitExport(c.Request().Context(), models.Role(req.Role))
	if err != nil {
		return failure(c, h.l, "export "+req.Role, err)
	}
	if res == nil {
		return xhttp.AcceptedResponse(c, map[string]string{"job_id": id})
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SnapshotHandler) Job(c echo.Context) error {
	id := c.Param("id")
	st, err := h.dispatch.Status(c.Request().Context(), id)
	if err != nil {
		return failure(c, h.l, "job status", err)
	}
	return xhttp.SuccessResponse(c, map[string]string{"job_id": id, "status": string(st)})
}

var _ xhttp.Handler = (*SnapshotHandler)(nil)
