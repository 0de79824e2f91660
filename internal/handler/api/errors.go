package api

import (
	"github.com/labstack/echo/v4"

	"InvSight/internal/domain/errs"
	xhttp "InvSight/pkg/http"
	applogger "InvSight/pkg/logger"
)

// appError maps a typed domain error onto the API error envelope.
func appError(err error) *xhttp.AppError {
	kind := errs.KindOf(err)
	msg := err.Error()
	if kind == errs.KindUnknown {
		msg = "internal error"
	}
	return xhttp.NewAppError(errs.Code(kind), "", msg, errs.Status(kind)).
		WithParam("kind", string(kind)).
		WithError(err)
}

// failure logs err by severity and writes the mapped response.
func failure(c echo.Context, l *applogger.Logger, what string, err error) error {
	ae := appError(err)
	if l != nil {
		fields := []applogger.Field{
			applogger.String("path", c.Path()),
			applogger.Int("status", ae.Status),
			applogger.Error(err),
		}
		if ae.Status >= 500 {
			l.Error(what+" failed", fields...)
		} else {
			l.Debug(what+" rejected", fields...)
		}
	}
	return xhttp.AppErrorResponse(c, ae)
}
