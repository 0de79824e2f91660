package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"InvSight/internal/domain/models"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/stream/predictions" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubFiltersByRole(t *testing.T) {
	hub := NewHub()
	e := echo.New()
	hub.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()

	all := dial(t, srv, "")
	pricing := dial(t, srv, "?role=pricing")
	require.Eventually(t, func() bool { return hub.Subscribers() == 2 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(&models.PredictionResult{RequestID: "a", Role: models.RoleDemand, Subject: "1"})
	hub.Broadcast(&models.PredictionResult{RequestID: "b", Role: models.RolePricing})

	read := func(c *websocket.Conn) string {
		_ = c.SetReadDeadline(time.Now().Add(time.Second))
		_, b, err := c.ReadMessage()
		require.NoError(t, err)
		var r models.PredictionResult
		require.NoError(t, json.Unmarshal(b, &r))
		return r.RequestID
	}
	assert.Equal(t, "a", read(all))
	assert.Equal(t, "b", read(all))
	assert.Equal(t, "b", read(pricing))
}

func TestHubRejectsUnknownRole(t *testing.T) {
	hub := NewHub()
	e := echo.New()
	hub.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/stream/predictions?role=weather"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	assert.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub()
	cl := &client{send: make(chan []byte, 1)}
	hub.clients[cl] = struct{}{}

	hub.Broadcast(&models.PredictionResult{RequestID: "a", Role: models.RoleAnomaly})
	hub.Broadcast(&models.PredictionResult{RequestID: "b", Role: models.RoleAnomaly})
	assert.Equal(t, int64(1), hub.Dropped())

	hub.Close()
	assert.Equal(t, 0, hub.Subscribers())
}
