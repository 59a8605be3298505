package bridge_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/voxbridge/callengine/internal/aiprovider"
	"github.com/voxbridge/callengine/internal/arbiter"
	"github.com/voxbridge/callengine/internal/bridge"
	"github.com/voxbridge/callengine/internal/eventbus"
	"github.com/voxbridge/callengine/internal/logging"
	"github.com/voxbridge/callengine/internal/models"
	"github.com/voxbridge/callengine/internal/store"
	"github.com/voxbridge/callengine/internal/telephony"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, store.AutoMigrate(db))
	return store.New(db, logging.NewNop())
}

type fakeGateway struct {
	terminated chan telephony.TerminateReason
}

func (f *fakeGateway) CreateCall(ctx context.Context, req telephony.CreateCallRequest) (*telephony.CreateCallResult, error) {
	return &telephony.CreateCallResult{ProviderCallID: "provider-1"}, nil
}

func (f *fakeGateway) TerminateCall(ctx context.Context, providerCallID string, reason telephony.TerminateReason) error {
	f.terminated <- reason
	return nil
}

// fakeAIClient resolves the signed stream URL to a test server's own
// websocket address, standing in for the real conversational AI provider.
type fakeAIClient struct {
	url string
}

func (f *fakeAIClient) GetSignedStreamURL(ctx context.Context, req aiprovider.SignedURLRequest) (string, error) {
	return f.url, nil
}

// newFakeAIServer accepts one websocket connection, sends an immediate
// conversation_initiation_metadata_event, then, once it observes at least
// one inbound frame, one agent audio chunk followed by a
// conversation_completed_event with the given initiator.
func newFakeAIServer(t *testing.T, initiatedBy string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.WriteJSON(map[string]any{
			"type": "conversation_initiation_metadata",
			"conversation_initiation_metadata_event": map[string]string{"conversation_id": "conv-1"},
		}))

		_, _, _ = conn.ReadMessage() // the forwarded user_audio_chunk frame

		require.NoError(t, conn.WriteJSON(map[string]any{
			"type":        "audio",
			"audio_event": map[string]string{"audio_base_64": "ZmFrZS1haS1hdWRpbw=="},
		}))
		time.Sleep(50 * time.Millisecond) // let the bridge relay the audio before the call ends

		require.NoError(t, conn.WriteJSON(map[string]any{
			"type": "conversation_completed",
			"conversation_completed_event": map[string]string{"initiated_by": initiatedBy},
		}))

		time.Sleep(50 * time.Millisecond)
	}))
	return srv
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestBridge_FullCallLifecycle_AgentEndsCall(t *testing.T) {
	aiSrv := newFakeAIServer(t, "agent")
	defer aiSrv.Close()

	s := newTestStore(t)
	callID := "call-bridge-1"
	require.NoError(t, s.CreateCall(context.Background(), &models.Call{ID: callID, State: models.CallInProgress}))

	bus := eventbus.New(8, logging.NewNop())
	arb := arbiter.New(s, logging.NewNop())
	gw := &fakeGateway{terminated: make(chan telephony.TerminateReason, 1)}
	ai := &fakeAIClient{url: wsURL(aiSrv.URL)}

	b := bridge.New(s, bus, arb, gw, ai, logging.NewNop(), 0, 0)
	telSrv := httptest.NewServer(b)
	defer telSrv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(telSrv.URL), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(bridge.TelephonyMessage{
		Event:     "start",
		StreamSid: "stream-1",
		Start: &bridge.TelephonyStart{
			CallSid:          callID,
			CustomParameters: map[string]string{"campaignId": "camp-1", "contactId": "contact-1"},
		},
	}))
	require.NoError(t, conn.WriteJSON(bridge.TelephonyMessage{
		Event:     "media",
		StreamSid: "stream-1",
		Media:     &bridge.TelephonyMedia{Payload: "ZmFrZS1hdWRpbw=="},
	}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var mediaOut bridge.TelephonyMessage
	require.NoError(t, conn.ReadJSON(&mediaOut))
	require.Equal(t, "media", mediaOut.Event)

	select {
	case reason := <-gw.terminated:
		require.Equal(t, telephony.TerminateReason(arbiter.TagAgent), reason)
	case <-time.After(2 * time.Second):
		t.Fatal("gateway.TerminateCall was never invoked")
	}

	require.Eventually(t, func() bool {
		call, err := s.GetCall(context.Background(), callID)
		return err == nil && call.TerminatedBy == string(arbiter.TagAgent)
	}, time.Second, 10*time.Millisecond)

	call, err := s.GetCall(context.Background(), callID)
	require.NoError(t, err)
	require.Equal(t, models.CallCompleted, call.State)
}

func TestBridge_Terminate_EndsRegisteredCall(t *testing.T) {
	aiSrv := newFakeAIServer(t, "caller")
	defer aiSrv.Close()

	s := newTestStore(t)
	callID := "call-bridge-2"
	require.NoError(t, s.CreateCall(context.Background(), &models.Call{ID: callID, State: models.CallInProgress}))

	bus := eventbus.New(8, logging.NewNop())
	arb := arbiter.New(s, logging.NewNop())
	gw := &fakeGateway{terminated: make(chan telephony.TerminateReason, 1)}
	ai := &fakeAIClient{url: wsURL(aiSrv.URL)}

	b := bridge.New(s, bus, arb, gw, ai, logging.NewNop(), 0, 0)
	telSrv := httptest.NewServer(b)
	defer telSrv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(telSrv.URL), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(bridge.TelephonyMessage{
		Event:     "start",
		StreamSid: "stream-2",
		Start:     &bridge.TelephonyStart{CallSid: callID},
	}))

	require.Eventually(t, func() bool { return len(b.ActiveCallIDs()) == 1 }, time.Second, 10*time.Millisecond)

	require.True(t, b.Terminate(context.Background(), callID))

	select {
	case reason := <-gw.terminated:
		require.Equal(t, telephony.TerminateReason(arbiter.TagAPIRequest), reason)
	case <-time.After(2 * time.Second):
		t.Fatal("gateway.TerminateCall was never invoked")
	}
}
