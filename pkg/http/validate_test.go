package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type forecastRequest struct {
	Role    string `param:"role" validate:"required,oneof=demand anomaly pricing"`
	Subject string `json:"subject"`
	Horizon int    `json:"horizon" default:"7" validate:"gte=1,lte=365"`
}

func bindContext(method, target, body string, params ...string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())
	if len(params) == 2 {
		c.SetParamNames(params[0])
		c.SetParamValues(params[1])
	}
	return c
}

func TestReadAndValidateRequestAppliesDefaults(t *testing.T) {
	var req forecastRequest
	c := bindContext(http.MethodPost, "/api/predict/demand", `{"subject":"7"}`, "role", "demand")
	require.Nil(t, ReadAndValidateRequest(c, &req))
	assert.Equal(t, "demand", req.Role)
	assert.Equal(t, 7, req.Horizon)
}

func TestReadAndValidateRequestNamesWireFields(t *testing.T) {
	var req forecastRequest
	c := bindContext(http.MethodPost, "/api/predict/weather", `{"horizon":1000}`, "role", "weather")
	verr := ReadAndValidateRequest(c, &req)
	require.Len(t, verr, 2)

	assert.Equal(t, "ERR_ONEOF", verr[0].Code)
	assert.Equal(t, "role", verr[0].Field)
	assert.Equal(t, []string{"demand", "anomaly", "pricing"}, verr[0].Params["options"])

	assert.Equal(t, "ERR_LTE", verr[1].Code)
	assert.Equal(t, "horizon", verr[1].Field)
	assert.Equal(t, "horizon must be at most 365", verr[1].Message)
}

func TestReadAndValidateRequestMalformedBody(t *testing.T) {
	var req forecastRequest
	c := bindContext(http.MethodPost, "/api/predict/demand", `{"horizon":`, "role", "demand")
	verr := ReadAndValidateRequest(c, &req)
	require.Len(t, verr, 1)
	assert.Equal(t, "ERR_BAD_REQUEST", verr[0].Code)
}
