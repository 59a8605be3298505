package campaign

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxbridge/callengine/internal/models"
)

// insufficientFundsThreshold and its window implement the credit-exhaustion
// auto-pause rule (spec §4.7): N repeated insufficient_funds CreateCall
// failures within the window trips the pause.
const (
	insufficientFundsThreshold = 3
	insufficientFundsWindow    = 60 * time.Second
)

// runtimeHandle is the in-memory state the Engine keeps for one active
// campaign: its ticker, the in-flight call set, the cycle latch, and the
// bookkeeping needed for credit-exhaustion and lag backoff. Every field is
// touched from the campaign's own tick goroutine and the shared outcome
// handler goroutine, so it owns its own locks rather than relying on the
// Engine's map lock.
type runtimeHandle struct {
	id       string
	settings models.CampaignSettings

	tickerMu sync.Mutex
	ticker   *time.Ticker
	done     chan struct{}
	stopped  atomic.Bool

	cycleInProgress atomic.Bool
	halved          atomic.Bool
	tickCount       atomic.Uint64

	inFlightMu sync.Mutex
	inFlight   map[string]struct{}

	failureMu           sync.Mutex
	insufficientFundsAt []time.Time
}

func newRuntimeHandle(id string, settings models.CampaignSettings) *runtimeHandle {
	ticker, done := newTickerAndDone(settings.CallDelayMs)
	return &runtimeHandle{
		id:       id,
		settings: settings,
		ticker:   ticker,
		done:     done,
		inFlight: make(map[string]struct{}),
	}
}

func newTickerAndDone(callDelayMs int) (*time.Ticker, chan struct{}) {
	interval := time.Duration(callDelayMs) * time.Millisecond
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return time.NewTicker(interval), make(chan struct{})
}

// stop halts the ticker once; a paused handle that gets stopped again by
// StopCampaign is a no-op rather than a double-close panic.
func (r *runtimeHandle) stop() {
	if !r.stopped.CompareAndSwap(false, true) {
		return
	}
	r.tickerMu.Lock()
	r.ticker.Stop()
	close(r.done)
	r.tickerMu.Unlock()
}

// rearm gives a stopped handle a fresh ticker/done pair so Resume can
// restart scheduling on the very same handle instead of registering a new
// one — which would orphan its in-flight set (spec §8 invariant 3: an
// in-flight call must still complete and update stats after pause/resume).
func (r *runtimeHandle) rearm() {
	r.tickerMu.Lock()
	r.ticker, r.done = newTickerAndDone(r.settings.CallDelayMs)
	r.tickerMu.Unlock()
	r.stopped.Store(false)
}

// tickerAndDone returns the handle's current ticker/done pair under lock, so
// a goroutine that captures them at start isn't racing a later rearm.
func (r *runtimeHandle) tickerAndDone() (*time.Ticker, chan struct{}) {
	r.tickerMu.Lock()
	defer r.tickerMu.Unlock()
	return r.ticker, r.done
}

func (r *runtimeHandle) inFlightCount() int {
	r.inFlightMu.Lock()
	defer r.inFlightMu.Unlock()
	return len(r.inFlight)
}

func (r *runtimeHandle) addInFlight(callID string) {
	r.inFlightMu.Lock()
	r.inFlight[callID] = struct{}{}
	r.inFlightMu.Unlock()
}

// removeInFlight reports whether callID was present (a caller may observe
// the same call's terminal update twice if a subscriber lags and resyncs).
func (r *runtimeHandle) removeInFlight(callID string) bool {
	r.inFlightMu.Lock()
	defer r.inFlightMu.Unlock()
	_, ok := r.inFlight[callID]
	delete(r.inFlight, callID)
	return ok
}

// shouldSkipForBackoff halves the effective dial rate by skipping every
// other tick once sustained Event Bus lag has been observed (spec §4.7
// Backpressure), without touching the underlying ticker.
func (r *runtimeHandle) shouldSkipForBackoff() bool {
	n := r.tickCount.Add(1)
	return r.halved.Load() && n%2 == 0
}

// recordInsufficientFunds appends now to the failure window, pruning
// entries outside it, and reports whether the threshold has been crossed.
func (r *runtimeHandle) recordInsufficientFunds(now time.Time) bool {
	r.failureMu.Lock()
	defer r.failureMu.Unlock()

	cutoff := now.Add(-insufficientFundsWindow)
	kept := r.insufficientFundsAt[:0]
	for _, t := range r.insufficientFundsAt {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	r.insufficientFundsAt = kept
	return len(kept) >= insufficientFundsThreshold
}

// pausedSnapshot is what Pause stashes: the same runtime handle, kept
// reachable so Resume can rearm it in place and so the outcome handler can
// still finalize any call that completes naturally while paused (spec §4.7,
// §8 invariant 3).
type pausedSnapshot struct {
	handle *runtimeHandle
}
