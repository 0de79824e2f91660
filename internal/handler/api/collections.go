package api

import (
	"github.com/labstack/echo/v4"

	"InvSight/internal/domain/errs"
	"InvSight/internal/domain/models"
	domrepo "InvSight/internal/domain/repository"
	xhttp "InvSight/pkg/http"
	applogger "InvSight/pkg/logger"
)

// CollectionsHandler pages through raw entity collections in the store.
type CollectionsHandler struct {
	store domrepo.EntityStore
	l     *applogger.Logger
}

func NewCollectionsHandler(store domrepo.EntityStore) *CollectionsHandler {
	return &CollectionsHandler{store: store}
}

func (h *CollectionsHandler) SetLogger(l *applogger.Logger) { h.l = l }

func (h *CollectionsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/collections/:name", h.Get)
}

func (h *CollectionsHandler) Get(c echo.Context) error {
	req := &models.CollectionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !domrepo.IsValidCollection(req.Name) {
		return failure(c, h.l, "collection fetch", errs.InvalidRequest("collections", "invalid collection name %q", req.Name))
	}

	tbl, err := h.store.Fetch(c.Request().Context(), req.Name)
	if err != nil {
		return failure(c, h.l, "collection fetch", err)
	}
	total := len(tbl.Rows)
	from := req.Offset
	if from > total {
		from = total
	}
	to := from + req.Limit
	if to > total {
		to = total
	}
	return xhttp.ListResponse(c, tbl.Rows[from:to], int64(total))
}

var _ xhttp.Handler = (*CollectionsHandler)(nil)
