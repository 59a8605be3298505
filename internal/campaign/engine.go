// Package campaign implements the Campaign Engine (spec §4.7): a
// concurrency-safe scheduler that claims contacts, throttles dial rate,
// enforces per-campaign concurrency caps, and reacts to call-outcome
// events, all without ever holding a lock across network I/O.
package campaign

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxbridge/callengine/internal/apperrors"
	"github.com/voxbridge/callengine/internal/eventbus"
	"github.com/voxbridge/callengine/internal/logging"
	"github.com/voxbridge/callengine/internal/metrics"
	"github.com/voxbridge/callengine/internal/models"
	"github.com/voxbridge/callengine/internal/store"
	"github.com/voxbridge/callengine/internal/telephony"
)

// lagWindow/lagThreshold/lagCooldown implement the backpressure rule (spec
// §4.7): halve the effective dial rate once call.updates shows sustained
// subscriber lag, and restore it only after a quiet period.
const (
	lagWindow      = 30 * time.Second
	lagThreshold   = 3
	lagCooldown    = 60 * time.Second
	contactLockTTL = 2 * time.Minute
)

// Engine owns the active/paused campaign maps and the outcome handler that
// retires in-flight calls as they finish (spec §4.7).
type Engine struct {
	store     store.Store
	bus       *eventbus.Bus
	gateway   telephony.Gateway
	serverURL string
	log       logging.Logger

	mu      sync.Mutex
	active  map[string]*runtimeHandle
	paused  map[string]*pausedSnapshot
	// handles is the full runtime-handle registry, keyed by campaign id. It
	// is never pruned by Pause/StopCampaign, only overwritten by the next
	// registerRuntime for that id: the outcome handler looks calls up here,
	// not in `active`, so an in-flight call started before a pause/stop
	// still gets finalized once it completes (spec §8 invariant 3).
	handles map[string]*runtimeHandle

	lagMu    sync.Mutex
	lagAt    []time.Time
	unlagged *time.Timer

	cancelOutcome context.CancelFunc
}

func New(s store.Store, bus *eventbus.Bus, gw telephony.Gateway, serverURL string, log logging.Logger) *Engine {
	return &Engine{
		store:     s,
		bus:       bus,
		gateway:   gw,
		serverURL: serverURL,
		log:       log,
		active:    make(map[string]*runtimeHandle),
		paused:    make(map[string]*pausedSnapshot),
		handles:   make(map[string]*runtimeHandle),
	}
}

// Start launches the outcome handler and rebuilds runtime handles for every
// campaign the Store still has in the `active` state, withholding dialing
// for one callDelayMs per campaign so webhook backlog can drain (spec §9
// graceful restart).
func (e *Engine) Start(ctx context.Context) error {
	outcomeCtx, cancel := context.WithCancel(ctx)
	e.cancelOutcome = cancel
	go e.runOutcomeHandler(outcomeCtx)

	ids, err := e.store.ListActiveCampaignIDs(ctx)
	if err != nil {
		return apperrors.New(apperrors.KindInternal, "campaign.Start", err)
	}
	for _, id := range ids {
		c, err := e.store.GetCampaign(ctx, id)
		if err != nil {
			e.log.Warnw("campaign: failed to reload active campaign on restart", "campaignId", id, "error", err)
			continue
		}
		e.registerRuntime(ctx, c, false /* don't tick immediately */)
	}
	return nil
}

// Stop halts every running ticker and the outcome handler. It does not
// wait for in-flight calls (spec §5 Cancellation).
func (e *Engine) Stop() {
	if e.cancelOutcome != nil {
		e.cancelOutcome()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range e.active {
		r.stop()
	}
	e.active = make(map[string]*runtimeHandle)
}

// StartCampaign transitions a draft campaign to active and runs its first
// tick immediately. Reports false, with no error, if the campaign is
// already active (spec §7: 409 Conflict on starting an already-active
// campaign) instead of silently replacing its runtime handle.
func (e *Engine) StartCampaign(ctx context.Context, campaignID string) (bool, error) {
	e.mu.Lock()
	_, alreadyActive := e.active[campaignID]
	e.mu.Unlock()
	if alreadyActive {
		return false, nil
	}

	c, err := e.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return false, err
	}
	if err := e.store.SetCampaignStatus(ctx, campaignID, models.CampaignActive); err != nil {
		return false, err
	}
	if ok := e.registerRuntime(ctx, c, true); !ok {
		return false, nil
	}
	return true, nil
}

// registerRuntime installs a fresh runtime handle in `active` and `handles`
// and starts its ticker goroutine, unless one is already active for this
// campaign id. runImmediately also fires one tick right away (used by
// StartCampaign, not by the graceful-restart path).
func (e *Engine) registerRuntime(ctx context.Context, c *models.Campaign, runImmediately bool) bool {
	r := newRuntimeHandle(c.ID, c.Settings)

	e.mu.Lock()
	if _, ok := e.active[c.ID]; ok {
		e.mu.Unlock()
		return false
	}
	e.active[c.ID] = r
	e.handles[c.ID] = r
	delete(e.paused, c.ID)
	e.mu.Unlock()
	metrics.ActiveCampaigns.Set(float64(len(e.active)))

	go e.runTicker(ctx, r)
	if runImmediately {
		go e.tick(ctx, r)
	}
	return true
}

func (e *Engine) runTicker(ctx context.Context, r *runtimeHandle) {
	ticker, done := r.tickerAndDone()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx, r)
		}
	}
}

// tick is one scheduler cycle (spec §4.7 Tick).
func (e *Engine) tick(ctx context.Context, r *runtimeHandle) {
	if r.shouldSkipForBackoff() {
		return
	}
	if !r.cycleInProgress.CompareAndSwap(false, true) {
		metrics.CampaignCyclesSkippedTotal.WithLabelValues(r.id).Inc()
		return
	}
	defer r.cycleInProgress.Store(false)

	slots := r.settings.MaxConcurrentCalls - r.inFlightCount()
	if slots <= 0 {
		return
	}

	contacts, err := e.store.ClaimNextContacts(ctx, r.id, slots, contactLockTTL)
	if err != nil {
		e.log.Warnw("campaign: claim failed", "campaignId", r.id, "error", err)
		return
	}

	var g errgroup.Group
	for _, contact := range contacts {
		g.Go(func() error {
			e.dial(ctx, r, contact)
			return nil
		})
	}
	_ = g.Wait()

	e.bus.Publish(eventbus.TopicCampaign(r.id), eventbus.TypeCampaignUpdate, map[string]any{
		"campaignId": r.id,
		"inFlight":   r.inFlightCount(),
	})
}

func (e *Engine) dial(ctx context.Context, r *runtimeHandle, contact models.Contact) {
	req := telephony.CreateCallRequest{
		To:                   contact.Phone,
		From:                 r.settings.CallerID,
		CampaignID:           r.id,
		ContactID:            contact.ID,
		PromptOverride:       r.settings.DialerPrompt,
		FirstMessageOverride: r.settings.FirstMessage,
		Name:                 contact.Name,
		StatusCallbackURL:    telephony.WebhookURL(e.serverURL, "/call-status-callback"),
		AMDStatusCallbackURL: telephony.WebhookURL(e.serverURL, "/amd-status-callback"),
		RecordingCallbackURL: telephony.WebhookURL(e.serverURL, "/recording-status-callback"),
		StreamURL:            telephony.StreamURL(e.serverURL),
	}

	result, err := e.gateway.CreateCall(ctx, req)
	if err != nil {
		e.handleDialFailure(ctx, r, contact, err)
		return
	}

	call := &models.Call{
		ID:         result.ProviderCallID,
		CampaignID: &r.id,
		ContactID:  &contact.ID,
		State:      models.CallInitiated,
		Direction:  "outbound",
		To:         contact.Phone,
		From:       req.From,
	}
	if err := e.store.CreateCall(ctx, call); err != nil {
		e.log.Warnw("campaign: failed to persist placed call", "campaignId", r.id, "contactId", contact.ID, "error", err)
	}

	r.addInFlight(result.ProviderCallID)
	metrics.CallsPlacedTotal.WithLabelValues(r.id).Inc()
	if err := e.store.ApplyCampaignStats(ctx, r.id, store.CampaignStatsDelta{CallsPlaced: 1}); err != nil {
		e.log.Warnw("campaign: failed to record placed-call stat", "campaignId", r.id, "error", err)
	}
}

// handleDialFailure finalizes the contact as failed and, for repeated
// insufficient_funds failures, auto-pauses the campaign (spec §4.7 Balance
// exhaustion).
func (e *Engine) handleDialFailure(ctx context.Context, r *runtimeHandle, contact models.Contact, err error) {
	reason := telephony.ClassifyFailureReason(err)
	e.log.Warnw("campaign: create-call failed", "campaignId", r.id, "contactId", contact.ID, "reason", reason, "error", err)

	if ferr := e.store.FinalizeContact(ctx, contact.ID, store.OutcomeFailed); ferr != nil {
		e.log.Warnw("campaign: failed to finalize failed contact", "contactId", contact.ID, "error", ferr)
	}
	if serr := e.store.ApplyCampaignStats(ctx, r.id, store.CampaignStatsDelta{CallsFailed: 1}); serr != nil {
		e.log.Warnw("campaign: failed to record failed-call stat", "campaignId", r.id, "error", serr)
	}

	if reason != telephony.ReasonInsufficientFunds {
		return
	}
	if r.recordInsufficientFunds(time.Now()) {
		e.log.Warnw("campaign: auto-pausing on repeated insufficient_funds", "campaignId", r.id)
		if _, perr := e.Pause(ctx, r.id); perr != nil {
			e.log.Warnw("campaign: auto-pause failed", "campaignId", r.id, "error", perr)
		}
	}
}

// Pause stops the ticker and moves the handle from `active` to `paused`,
// then snapshots and persists. It does not wait for in-flight calls to
// finish dialing, but it keeps the handle in `handles` so any call that
// completes naturally after the pause still reaches the outcome handler
// and finalizes its contact/stats (spec §4.7, §8 invariant 3).
func (e *Engine) Pause(ctx context.Context, campaignID string) (bool, error) {
	e.mu.Lock()
	r, ok := e.active[campaignID]
	if !ok {
		e.mu.Unlock()
		return false, nil
	}
	delete(e.active, campaignID)
	e.paused[campaignID] = &pausedSnapshot{handle: r}
	e.mu.Unlock()
	metrics.ActiveCampaigns.Set(float64(len(e.active)))

	r.stop()

	if err := e.store.SetCampaignStatus(ctx, campaignID, models.CampaignPaused); err != nil {
		return true, err
	}
	return true, nil
}

// Resume rearms the same handle Pause stashed and moves it back to
// `active`, running one tick immediately (spec §4.7). Reusing the handle
// rather than building a new one keeps its in-flight set intact across the
// pause/resume cycle.
func (e *Engine) Resume(ctx context.Context, campaignID string) (bool, error) {
	e.mu.Lock()
	snap, ok := e.paused[campaignID]
	if !ok {
		e.mu.Unlock()
		return false, nil
	}
	delete(e.paused, campaignID)
	r := snap.handle
	e.active[campaignID] = r
	e.mu.Unlock()
	metrics.ActiveCampaigns.Set(float64(len(e.active)))

	if err := e.store.SetCampaignStatus(ctx, campaignID, models.CampaignActive); err != nil {
		return true, err
	}

	r.rearm()
	go e.runTicker(ctx, r)
	go e.tick(ctx, r)
	return true, nil
}

// StopCampaign is pause-equivalent but moves the campaign to `cancelled`
// and discards any paused snapshot. The handle stays in `handles` for the
// same reason Pause keeps it there: an in-flight call must still be able to
// finalize its contact/stats after the campaign stops (spec §4.7, §8
// invariant 3).
func (e *Engine) StopCampaign(ctx context.Context, campaignID string) (bool, error) {
	e.mu.Lock()
	if r, ok := e.active[campaignID]; ok {
		delete(e.active, campaignID)
		r.stop()
	}
	if snap, ok := e.paused[campaignID]; ok {
		snap.handle.stop()
		delete(e.paused, campaignID)
	}
	e.mu.Unlock()
	metrics.ActiveCampaigns.Set(float64(len(e.active)))

	if err := e.store.SetCampaignStatus(ctx, campaignID, models.CampaignCancelled); err != nil {
		return false, err
	}
	return true, nil
}

// runOutcomeHandler subscribes to call.updates and retires in-flight calls
// as they reach a terminal state (spec §4.7 Outcome handler), also feeding
// the lag-based backoff from any `lagged` markers it observes.
func (e *Engine) runOutcomeHandler(ctx context.Context) {
	ch, cancel := e.bus.Subscribe(eventbus.TopicCallUpdates)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Type == eventbus.TypeLagged {
				e.observeLag()
				continue
			}
			e.handleCallUpdate(ctx, ev)
		}
	}
}

func (e *Engine) handleCallUpdate(ctx context.Context, ev eventbus.Event) {
	data, ok := ev.Data.(map[string]string)
	if !ok {
		return
	}
	callID := data["callId"]
	if callID == "" {
		return
	}

	call, err := e.store.GetCall(ctx, callID)
	if err != nil || call.CampaignID == nil || !call.IsTerminal() {
		return
	}

	e.mu.Lock()
	r, ok := e.handles[*call.CampaignID]
	e.mu.Unlock()
	if !ok || !r.removeInFlight(callID) {
		return
	}

	outcome := store.OutcomeCalled
	delta := store.CampaignStatsDelta{CallsCompleted: 1, DurationSec: call.DurationSec}
	if call.State == models.CallFailed {
		outcome = store.OutcomeFailed
		delta = store.CampaignStatsDelta{CallsFailed: 1}
	}
	if call.AnsweredBy == models.AnsweredByHuman {
		delta.CallsAnswered = 1
	}

	if call.ContactID != nil {
		if err := e.store.FinalizeContact(ctx, *call.ContactID, outcome); err != nil {
			e.log.Warnw("campaign: failed to finalize contact on outcome", "callId", callID, "error", err)
		}
	}
	if err := e.store.ApplyCampaignStats(ctx, r.id, delta); err != nil {
		e.log.Warnw("campaign: failed to apply stats on outcome", "campaignId", r.id, "error", err)
	}

	e.maybeComplete(ctx, r)
}

// maybeComplete transitions a campaign to completed once its contact pool
// is exhausted and no call is still in flight (spec §4.7 Outcome handler).
func (e *Engine) maybeComplete(ctx context.Context, r *runtimeHandle) {
	if r.inFlightCount() > 0 {
		return
	}
	pending, err := e.store.HasPendingContacts(ctx, r.id)
	if err != nil || pending {
		return
	}

	e.mu.Lock()
	_, stillActive := e.active[r.id]
	if stillActive {
		delete(e.active, r.id)
	}
	e.mu.Unlock()
	if !stillActive {
		return
	}
	metrics.ActiveCampaigns.Set(float64(len(e.active)))

	r.stop()
	if err := e.store.SetCampaignStatus(ctx, r.id, models.CampaignCompleted); err != nil {
		e.log.Warnw("campaign: failed to mark campaign completed", "campaignId", r.id, "error", err)
	}
}

// observeLag records a lag marker and halves every active campaign's
// effective dial rate once lagThreshold markers land within lagWindow,
// restoring it after lagCooldown of quiet (spec §4.7 Backpressure).
func (e *Engine) observeLag() {
	e.lagMu.Lock()
	now := time.Now()
	cutoff := now.Add(-lagWindow)
	kept := e.lagAt[:0]
	for _, t := range e.lagAt {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	e.lagAt = kept
	tripped := len(kept) >= lagThreshold
	if e.unlagged != nil {
		e.unlagged.Stop()
	}
	e.unlagged = time.AfterFunc(lagCooldown, e.clearLagBackoff)
	e.lagMu.Unlock()

	if tripped {
		e.setHalved(true)
	}
}

func (e *Engine) clearLagBackoff() {
	e.setHalved(false)
}

func (e *Engine) setHalved(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range e.active {
		r.halved.Store(v)
	}
}

