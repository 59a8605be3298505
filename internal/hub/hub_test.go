package hub_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/voxbridge/callengine/internal/eventbus"
	"github.com/voxbridge/callengine/internal/hub"
	"github.com/voxbridge/callengine/internal/logging"
)

type fakeSnapshotter struct {
	data map[string]any
}

func (f *fakeSnapshotter) Snapshot(ctx context.Context, topic string) (any, error) {
	return f.data[topic], nil
}

func dialHub(t *testing.T, h *hub.Hub) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(h)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func TestHub_SubscribeReceivesSnapshotThenEvents(t *testing.T) {
	bus := eventbus.New(8, logging.NewNop())
	snap := &fakeSnapshotter{data: map[string]any{eventbus.TopicCallUpdates: []string{"call-1"}}}
	h := hub.New(bus, snap, logging.NewNop())

	conn, cleanup := dialHub(t, h)
	defer cleanup()

	require.NoError(t, conn.WriteJSON(hub.ClientMessage{Event: "subscribe", Topic: eventbus.TopicCallUpdates}))

	var snapshotMsg hub.ServerMessage
	require.NoError(t, conn.ReadJSON(&snapshotMsg))
	require.Equal(t, "snapshot.call.updates", snapshotMsg.Event)

	// Give the subscription goroutine a moment to register before publishing.
	time.Sleep(20 * time.Millisecond)
	bus.Publish(eventbus.TopicCallUpdates, eventbus.TypeCallUpdated, map[string]string{"callId": "call-2"})

	var eventMsg hub.ServerMessage
	require.NoError(t, conn.ReadJSON(&eventMsg))
	require.Equal(t, "event.call.updates", eventMsg.Event)
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	bus := eventbus.New(8, logging.NewNop())
	snap := &fakeSnapshotter{data: map[string]any{}}
	h := hub.New(bus, snap, logging.NewNop())

	conn, cleanup := dialHub(t, h)
	defer cleanup()

	require.NoError(t, conn.WriteJSON(hub.ClientMessage{Event: "subscribe", Topic: eventbus.TopicCallUpdates}))
	var snapshotMsg hub.ServerMessage
	require.NoError(t, conn.ReadJSON(&snapshotMsg))

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, conn.WriteJSON(hub.ClientMessage{Event: "unsubscribe", Topic: eventbus.TopicCallUpdates}))
	time.Sleep(20 * time.Millisecond)

	bus.Publish(eventbus.TopicCallUpdates, eventbus.TypeCallUpdated, "x")

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	require.Error(t, err, "expected read timeout after unsubscribe, got a delivered message")
}

func TestHub_ClientCount(t *testing.T) {
	bus := eventbus.New(8, logging.NewNop())
	h := hub.New(bus, &fakeSnapshotter{data: map[string]any{}}, logging.NewNop())

	conn, cleanup := dialHub(t, h)
	defer cleanup()

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	_ = conn
}
