package campaign_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	twilioclient "github.com/twilio/twilio-go/client"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/voxbridge/callengine/internal/campaign"
	"github.com/voxbridge/callengine/internal/eventbus"
	"github.com/voxbridge/callengine/internal/logging"
	"github.com/voxbridge/callengine/internal/models"
	"github.com/voxbridge/callengine/internal/store"
	"github.com/voxbridge/callengine/internal/telephony"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, store.AutoMigrate(db))
	return store.New(db, logging.NewNop())
}

func seedCampaign(t *testing.T, s store.Store, n int, settings models.CampaignSettings) string {
	t.Helper()
	ctx := context.Background()
	c := &models.Campaign{Name: "seed", Status: models.CampaignDraft, Settings: settings}
	require.NoError(t, s.CreateCampaign(ctx, c))

	contacts := make([]*models.Contact, n)
	for i := 0; i < n; i++ {
		contacts[i] = &models.Contact{Phone: fmt.Sprintf("+1555%07d", i)}
	}
	require.NoError(t, s.AddContactsToCampaign(ctx, c.ID, contacts))
	return c.ID
}

// fakeGateway records every CreateCall and optionally fails it via createErr.
type fakeGateway struct {
	mu         sync.Mutex
	created    []telephony.CreateCallRequest
	createErr  error
	nextID     int
	terminated []string
}

func (f *fakeGateway) CreateCall(ctx context.Context, req telephony.CreateCallRequest) (*telephony.CreateCallResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	return &telephony.CreateCallResult{ProviderCallID: fmt.Sprintf("provider-%d", f.nextID)}, nil
}

func (f *fakeGateway) TerminateCall(ctx context.Context, providerCallID string, reason telephony.TerminateReason) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = append(f.terminated, providerCallID)
	return nil
}

func (f *fakeGateway) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

// S1: Pause-mid-dial — callDelayMs=1000, maxConcurrentCalls=1, 3 contacts.
// Start at t=0, pause at t=1500ms. Expect exactly 1 call initiated, 0
// further creates, campaign state paused after Pause returns.
func TestEngine_PauseMidDial(t *testing.T) {
	s := newTestStore(t)
	campaignID := seedCampaign(t, s, 3, models.CampaignSettings{CallDelayMs: 1000, MaxConcurrentCalls: 1})

	gw := &fakeGateway{}
	bus := eventbus.New(16, logging.NewNop())
	e := campaign.New(s, bus, gw, "http://localhost:8080", logging.NewNop())
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	started, err := e.StartCampaign(context.Background(), campaignID)
	require.NoError(t, err)
	require.True(t, started)

	time.Sleep(1500 * time.Millisecond)
	ok, err := e.Pause(context.Background(), campaignID)
	require.NoError(t, err)
	require.True(t, ok)

	require.Equal(t, 1, gw.createCount())

	c, err := s.GetCampaign(context.Background(), campaignID)
	require.NoError(t, err)
	require.Equal(t, models.CampaignPaused, c.Status)

	// No further call should land even after waiting out another tick.
	time.Sleep(1200 * time.Millisecond)
	require.Equal(t, 1, gw.createCount())
}

// Natural completion after pause (spec §8 invariant 3): the one in-flight
// call from TestEngine_PauseMidDial's scenario must still finalize its
// contact and campaign stats once it completes, even though the campaign
// is already paused.
func TestEngine_PauseThenInFlightCallStillFinalizes(t *testing.T) {
	s := newTestStore(t)
	campaignID := seedCampaign(t, s, 1, models.CampaignSettings{CallDelayMs: 50, MaxConcurrentCalls: 1})

	gw := &fakeGateway{}
	bus := eventbus.New(16, logging.NewNop())
	e := campaign.New(s, bus, gw, "http://localhost:8080", logging.NewNop())
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	started, err := e.StartCampaign(context.Background(), campaignID)
	require.NoError(t, err)
	require.True(t, started)

	require.Eventually(t, func() bool { return gw.createCount() == 1 }, time.Second, 10*time.Millisecond)

	ok, err := e.Pause(context.Background(), campaignID)
	require.NoError(t, err)
	require.True(t, ok)

	calls, err := s.ListCalls(context.Background(), store.CallFilter{CampaignID: campaignID})
	require.NoError(t, err)
	require.Len(t, calls, 1)
	callID := calls[0].ID
	require.NotNil(t, calls[0].ContactID)
	contactID := *calls[0].ContactID

	require.NoError(t, s.FinalizeCall(context.Background(), callID, models.CallCompleted, time.Now(), 12))
	bus.Publish(eventbus.TopicCallUpdates, eventbus.TypeCallUpdated, map[string]string{"callId": callID, "bridgeState": "closed"})

	require.Eventually(t, func() bool {
		contact, err := s.GetContact(context.Background(), contactID)
		return err == nil && contact.Status == models.ContactCalled
	}, time.Second, 10*time.Millisecond)

	c, err := s.GetCampaign(context.Background(), campaignID)
	require.NoError(t, err)
	require.Equal(t, 1, c.Stats.CallsCompleted)

	// The campaign itself remains paused; only the contact/stats finalize.
	require.Equal(t, models.CampaignPaused, c.Status)
}

// Conflict: starting an already-active campaign must fail rather than
// silently replacing its runtime handle (spec §7: 409 on double-start).
func TestEngine_StartCampaign_ConflictWhenAlreadyActive(t *testing.T) {
	s := newTestStore(t)
	campaignID := seedCampaign(t, s, 1, models.CampaignSettings{CallDelayMs: 1000, MaxConcurrentCalls: 1})

	gw := &fakeGateway{}
	bus := eventbus.New(16, logging.NewNop())
	e := campaign.New(s, bus, gw, "http://localhost:8080", logging.NewNop())
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	started, err := e.StartCampaign(context.Background(), campaignID)
	require.NoError(t, err)
	require.True(t, started)

	started, err = e.StartCampaign(context.Background(), campaignID)
	require.NoError(t, err)
	require.False(t, started)
}

// Resume after pause must restart scheduling on the same handle: once the
// call placed before the pause has finalized (freeing the single slot),
// resuming dials the remaining contact.
func TestEngine_ResumeRestartsDialingAfterPause(t *testing.T) {
	s := newTestStore(t)
	campaignID := seedCampaign(t, s, 2, models.CampaignSettings{CallDelayMs: 50, MaxConcurrentCalls: 1})

	gw := &fakeGateway{}
	bus := eventbus.New(16, logging.NewNop())
	e := campaign.New(s, bus, gw, "http://localhost:8080", logging.NewNop())
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	started, err := e.StartCampaign(context.Background(), campaignID)
	require.NoError(t, err)
	require.True(t, started)

	require.Eventually(t, func() bool { return gw.createCount() == 1 }, time.Second, 10*time.Millisecond)

	ok, err := e.Pause(context.Background(), campaignID)
	require.NoError(t, err)
	require.True(t, ok)

	calls, err := s.ListCalls(context.Background(), store.CallFilter{CampaignID: campaignID})
	require.NoError(t, err)
	require.Len(t, calls, 1)
	require.NoError(t, s.FinalizeCall(context.Background(), calls[0].ID, models.CallCompleted, time.Now(), 5))
	bus.Publish(eventbus.TopicCallUpdates, eventbus.TypeCallUpdated, map[string]string{"callId": calls[0].ID, "bridgeState": "closed"})
	require.Eventually(t, func() bool {
		contact, err := s.GetContact(context.Background(), *calls[0].ContactID)
		return err == nil && contact.Status == models.ContactCalled
	}, time.Second, 10*time.Millisecond)

	ok, err = e.Resume(context.Background(), campaignID)
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool { return gw.createCount() == 2 }, time.Second, 10*time.Millisecond)
}

func TestEngine_OutcomeHandler_CompletesCampaignWhenExhausted(t *testing.T) {
	s := newTestStore(t)
	campaignID := seedCampaign(t, s, 1, models.CampaignSettings{CallDelayMs: 50, MaxConcurrentCalls: 1})

	gw := &fakeGateway{}
	bus := eventbus.New(16, logging.NewNop())
	e := campaign.New(s, bus, gw, "http://localhost:8080", logging.NewNop())
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	started, err := e.StartCampaign(context.Background(), campaignID)
	require.NoError(t, err)
	require.True(t, started)

	require.Eventually(t, func() bool { return gw.createCount() == 1 }, time.Second, 10*time.Millisecond)

	calls, err := s.ListCalls(context.Background(), store.CallFilter{CampaignID: campaignID})
	require.NoError(t, err)
	require.Len(t, calls, 1)
	callID := calls[0].ID

	require.NoError(t, s.FinalizeCall(context.Background(), callID, models.CallCompleted, time.Now(), 30))
	bus.Publish(eventbus.TopicCallUpdates, eventbus.TypeCallUpdated, map[string]string{"callId": callID, "bridgeState": "closed"})

	require.Eventually(t, func() bool {
		c, err := s.GetCampaign(context.Background(), campaignID)
		return err == nil && c.Status == models.CampaignCompleted
	}, time.Second, 10*time.Millisecond)
}

// Credit-exhaustion auto-pause: 3 insufficient_funds CreateCall failures
// within the window auto-pauses the campaign and fails the contacts rather
// than leaving them pending for endless retry.
func TestEngine_AutoPausesOnRepeatedInsufficientFunds(t *testing.T) {
	s := newTestStore(t)
	campaignID := seedCampaign(t, s, 5, models.CampaignSettings{CallDelayMs: 30, MaxConcurrentCalls: 5})

	gw := &fakeGateway{createErr: &twilioclient.TwilioRestError{Status: 400, Code: 20003, Message: "account restricted"}}
	bus := eventbus.New(16, logging.NewNop())
	e := campaign.New(s, bus, gw, "http://localhost:8080", logging.NewNop())
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	started, err := e.StartCampaign(context.Background(), campaignID)
	require.NoError(t, err)
	require.True(t, started)

	require.Eventually(t, func() bool {
		c, err := s.GetCampaign(context.Background(), campaignID)
		return err == nil && c.Status == models.CampaignPaused
	}, 2*time.Second, 10*time.Millisecond)
}

