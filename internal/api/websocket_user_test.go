package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-dashboard/internal/events"
)

func readEvent(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws?access_token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// The greeting is queued before registration completes
	assert.Equal(t, "CONNECTED", readEvent(t, conn)["type"])
	return conn
}

func TestUserWebSocket_RoutesEventsByUser(t *testing.T) {
	ts := newTestServer(t)
	go ts.Hub().Run()
	defer ts.Hub().Stop()
	srv := httptest.NewServer(ts.Handler())
	defer srv.Close()

	asha := dial(t, srv, ts.token(t, "u1", false))
	vikram := dial(t, srv, ts.token(t, "u2", false))
	root := dial(t, srv, ts.token(t, "root", true))

	require.Eventually(t, func() bool { return ts.Hub().GetTotalClientCount() == 3 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, ts.Hub().GetUserClientCount("u1"))

	ts.bus.PublishKYCStatusChanged("u1", "Verified")
	ev := readEvent(t, asha)
	assert.Equal(t, string(events.EventKYCStatusChanged), ev["type"])
	assert.Equal(t, "Verified", ev["data"].(map[string]interface{})["status"])
	assert.NotContains(t, ev, "user_id", "routing id stays server side")

	ts.bus.PublishMetricsUpdated("u2", map[string]float64{"total_pl": 75})
	ev = readEvent(t, vikram)
	assert.Equal(t, string(events.EventMetricsUpdated), ev["type"])

	ts.bus.PublishKYCSubmitted("u2")
	ev = readEvent(t, root)
	assert.Equal(t, string(events.EventKYCSubmitted), ev["type"])

	// u1 saw only its own event
	require.NoError(t, asha.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := asha.ReadMessage()
	assert.Error(t, err)
}

func TestUserWSHub_StopClosesClients(t *testing.T) {
	hub := NewUserWSHub(zerolog.Nop())
	client := &UserWSClient{send: make(chan []byte, 1), hub: hub, userID: "u1", closeChan: make(chan struct{})}

	go hub.Run()
	require.True(t, hub.add(client))
	assert.Equal(t, 1, hub.GetUserClientCount("u1"))

	hub.Stop()
	hub.Stop()

	select {
	case _, ok := <-client.send:
		assert.False(t, ok, "send channel is closed on stop")
	case <-time.After(time.Second):
		t.Fatal("client not closed")
	}
	assert.False(t, hub.add(&UserWSClient{send: make(chan []byte, 1), hub: hub}), "no registrations after stop")
}

func TestUserWSHub_DropsSlowConsumer(t *testing.T) {
	hub := NewUserWSHub(zerolog.Nop())
	go hub.Run()
	defer hub.Stop()

	client := &UserWSClient{send: make(chan []byte), hub: hub, userID: "u1", closeChan: make(chan struct{})}
	require.True(t, hub.add(client))

	hub.BroadcastToUser("u1", events.Event{Type: events.EventMetricsUpdated})
	require.Eventually(t, func() bool { return hub.GetUserClientCount("u1") == 0 }, time.Second, 10*time.Millisecond)
}
