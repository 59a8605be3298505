package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/voxbridge/callengine/internal/api"
	"github.com/voxbridge/callengine/internal/arbiter"
	"github.com/voxbridge/callengine/internal/campaign"
	"github.com/voxbridge/callengine/internal/config"
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

// fakeGateway records every CreateCall and hands back a deterministic id.
type fakeGateway struct {
	mu      sync.Mutex
	created []telephony.CreateCallRequest
	nextID  int
}

func (f *fakeGateway) CreateCall(ctx context.Context, req telephony.CreateCallRequest) (*telephony.CreateCallResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	f.nextID++
	return &telephony.CreateCallResult{ProviderCallID: fmt.Sprintf("provider-%d", f.nextID)}, nil
}

func (f *fakeGateway) TerminateCall(ctx context.Context, providerCallID string, reason telephony.TerminateReason) error {
	return nil
}

type noopHandler struct{}

func (noopHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

func newTestServer(t *testing.T, apiKey string) (*httptest.Server, store.Store, *fakeGateway) {
	t.Helper()
	s := newTestStore(t)
	gw := &fakeGateway{}
	bus := eventbus.New(16, logging.NewNop())
	log := logging.NewNop()
	arb := arbiter.New(s, log)
	eng := campaign.New(s, bus, gw, "http://example.test", log)
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(eng.Stop)

	cfg := &config.AppConfig{APIKey: apiKey, ServerURL: "http://example.test"}
	r := api.New(api.Deps{
		Config:  cfg,
		Log:     log,
		Store:   s,
		Bus:     bus,
		Gateway: gw,
		Engine:  eng,
		Arbiter: arb,
		Bridge:  nil,
		Hub:     noopHandler{},
	})
	return httptest.NewServer(r), s, gw
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, bearer string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestOutboundCall_CreatesCallAndPersistsIt(t *testing.T) {
	srv, s, gw := newTestServer(t, "secret")
	defer srv.Close()

	resp := doJSON(t, srv, http.MethodPost, "/api/outbound-call", "secret", map[string]string{"to": "+15551230000"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Success bool   `json:"success"`
		CallID  string `json:"callId"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.True(t, out.Success)
	require.NotEmpty(t, out.CallID)
	require.Equal(t, 1, len(gw.created))

	call, err := s.GetCall(context.Background(), out.CallID)
	require.NoError(t, err)
	require.Equal(t, "+15551230000", call.To)
}

func TestOutboundCall_RejectsMissingBearer(t *testing.T) {
	srv, _, _ := newTestServer(t, "secret")
	defer srv.Close()

	resp := doJSON(t, srv, http.MethodPost, "/api/outbound-call", "", map[string]string{"to": "+15551230000"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCampaignLifecycle_CreateStartPauseResumeStop(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	defer srv.Close()

	resp := doJSON(t, srv, http.MethodPost, "/api/campaigns", "", map[string]any{
		"name":     "q3 outreach",
		"settings": models.CampaignSettings{CallDelayMs: 60000, MaxConcurrentCalls: 1},
	})
	var created models.Campaign
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	require.NotEmpty(t, created.ID)

	addResp := doJSON(t, srv, http.MethodPost, "/api/campaigns/"+created.ID+"/contacts", "", map[string]any{
		"contacts": []map[string]any{{"phone": "+15550001111"}},
	})
	require.Equal(t, http.StatusOK, addResp.StatusCode)
	addResp.Body.Close()

	startResp := doJSON(t, srv, http.MethodPost, "/api/campaigns/"+created.ID+"/start", "", nil)
	require.Equal(t, http.StatusOK, startResp.StatusCode)
	startResp.Body.Close()

	pauseResp := doJSON(t, srv, http.MethodPost, "/api/campaigns/"+created.ID+"/pause", "", nil)
	require.Equal(t, http.StatusOK, pauseResp.StatusCode)
	pauseResp.Body.Close()

	getResp := doJSON(t, srv, http.MethodGet, "/api/campaigns/"+created.ID, "", nil)
	var got models.Campaign
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&got))
	getResp.Body.Close()
	require.Equal(t, models.CampaignPaused, got.Status)

	stopResp := doJSON(t, srv, http.MethodPost, "/api/campaigns/"+created.ID+"/stop", "", nil)
	require.Equal(t, http.StatusOK, stopResp.StatusCode)
	stopResp.Body.Close()
}

func TestCallStatusWebhook_FinalizesTerminalCallAndTagsArbiter(t *testing.T) {
	srv, s, _ := newTestServer(t, "")
	defer srv.Close()

	require.NoError(t, s.CreateCall(context.Background(), &models.Call{ID: "CA123", State: models.CallInitiated, To: "+15550001111"}))

	form := url.Values{"CallSid": {"CA123"}, "CallStatus": {"busy"}, "CallDuration": {"4"}}
	resp, err := http.PostForm(srv.URL+"/call-status-callback", form)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	call, err := s.GetCall(context.Background(), "CA123")
	require.NoError(t, err)
	require.Equal(t, models.CallBusy, call.State)
	require.Equal(t, "user_busy", call.TerminatedBy)
}

func TestFallbackTwiML_ReturnsApologyXML(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/fallback-twiml", "application/x-www-form-urlencoded", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/xml", resp.Header.Get("Content-Type"))
}
