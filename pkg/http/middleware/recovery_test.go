package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	applogger "InvSight/pkg/logger"
)

func TestRecoverWritesEnvelope(t *testing.T) {
	e := echo.New()
	e.Use(Recover(applogger.Nop()))
	e.GET("/api/reports/suppliers", func(echo.Context) error { panic("nil frame") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reports/suppliers", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body struct {
		Status int `json:"status"`
		Data   []struct {
			Code string `json:"code"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusInternalServerError, body.Status)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "ERR_INTERNAL", body.Data[0].Code)
}

func TestRecoverReraisesAbort(t *testing.T) {
	e := echo.New()
	e.Use(Recover(nil))
	e.GET("/ws/predictions", func(echo.Context) error { panic(http.ErrAbortHandler) })

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ws/predictions", nil))
	})
}
