package api_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/voxbridge/callengine/internal/api"
	"github.com/voxbridge/callengine/internal/arbiter"
	"github.com/voxbridge/callengine/internal/campaign"
	"github.com/voxbridge/callengine/internal/config"
	"github.com/voxbridge/callengine/internal/eventbus"
	"github.com/voxbridge/callengine/internal/logging"
	"github.com/voxbridge/callengine/internal/models"
	"github.com/voxbridge/callengine/internal/store"
)

func sign(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return "t=" + ts + ",v0=" + hex.EncodeToString(mac.Sum(nil))
}

func newSecuredWebhookServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()
	s := newTestStore(t)
	gw := &fakeGateway{}
	bus := eventbus.New(16, logging.NewNop())
	log := logging.NewNop()
	arb := arbiter.New(s, log)
	eng := campaign.New(s, bus, gw, "http://example.test", log)
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(eng.Stop)

	cfg := &config.AppConfig{ServerURL: "http://example.test", AIWebhookSecret: "whsec"}
	r := api.New(api.Deps{
		Config:  cfg,
		Log:     log,
		Store:   s,
		Bus:     bus,
		Gateway: gw,
		Engine:  eng,
		Arbiter: arb,
		Hub:     noopHandler{},
	})
	return httptest.NewServer(r), s
}

func TestElevenLabsWebhook_AcceptsValidSignature(t *testing.T) {
	srv, _ := newSecuredWebhookServer(t)
	defer srv.Close()

	body := []byte(`{"call_id":"CA999","conversation_id":"conv-1"}`)
	header := sign("whsec", "1700000000", body)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/webhooks/elevenlabs", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("elevenlabs-signature", header)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestElevenLabsWebhook_StillReturns200OnBadSignature(t *testing.T) {
	srv, _ := newSecuredWebhookServer(t)
	defer srv.Close()

	body := []byte(`{"call_id":"CA999","conversation_id":"conv-1"}`)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/webhooks/elevenlabs", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("elevenlabs-signature", "t=1700000000,v0=deadbeef")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "webhook handlers always return 200 regardless of internal outcome")
}

func TestAMDWebhook_MachineDetectionLocksArbiter(t *testing.T) {
	srv, s := newSecuredWebhookServer(t)
	defer srv.Close()

	require.NoError(t, s.CreateCall(context.Background(), &models.Call{ID: "CA1", State: models.CallInProgress, To: "+15550001111"}))

	form := url.Values{"CallSid": {"CA1"}, "AnsweredBy": {"machine_start"}}
	resp, err := http.PostForm(srv.URL+"/amd-status-callback", form)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	call, err := s.GetCall(context.Background(), "CA1")
	require.NoError(t, err)
	require.Equal(t, "amd_machine", call.TerminatedBy)

	// A later natural signal must not overwrite the AMD lock (spec §4.6 rule 1).
	statusResp, err := http.PostForm(srv.URL+"/call-status-callback", url.Values{"CallSid": {"CA1"}, "CallStatus": {"no-answer"}})
	require.NoError(t, err)
	statusResp.Body.Close()

	call, err = s.GetCall(context.Background(), "CA1")
	require.NoError(t, err)
	require.Equal(t, "amd_machine", call.TerminatedBy)
}
