// Package arbiter computes the canonical terminatedBy for a call from the
// competing signals telephony, AMD, the AI provider, the Bridge's own
// timers, and the operator API can all emit for the same call (spec §4.6).
package arbiter

import (
	"context"
	"sync"
	"time"

	"github.com/voxbridge/callengine/internal/logging"
	"github.com/voxbridge/callengine/internal/models"
	"github.com/voxbridge/callengine/internal/store"
)

// Source names the subsystem that observed a termination signal, recorded
// on the CallEvent for audit regardless of whether it was authoritative.
type Source string

const (
	SourceTelephonyStatus Source = "telephony_status"
	SourceTelephonyAMD    Source = "telephony_amd"
	SourceAIWebhook       Source = "ai_webhook"
	SourceBridgeTimer     Source = "bridge_timer"
	SourceAdminAPI        Source = "admin_api"
	SourceHeuristic       Source = "heuristic"
)

// Tag is the canonical terminatedBy value (spec §4.6 signal table).
type Tag string

const (
	TagUserBusy           Tag = "user_busy"
	TagUserNoAnswer       Tag = "user_no_answer"
	TagSystem             Tag = "system"
	TagAMDMachine         Tag = "amd_machine"
	TagAgent              Tag = "agent"
	TagUser               Tag = "user"
	TagSystemInactivity   Tag = "system_inactivity"
	TagDurationLimit      Tag = "duration_limit"
	TagAPIRequest         Tag = "api_request"
	TagUserImmediateHangup Tag = "user_immediate_hangup"
	TagUnknown            Tag = "unknown"
)

// apiRequestDominanceWindow is how long a just-issued api_request override
// keeps reasserting itself against racing natural signals (spec §4.6 rule 2).
const apiRequestDominanceWindow = 5 * time.Second

type callRecord struct {
	amdLocked    bool
	apiRequestAt time.Time
}

// Arbiter tracks the in-flight dominance state (AMD lock, api_request
// window) needed on top of the Store's write-once column to implement the
// full §4.6 rule set; it's the only writer of Call.terminatedBy.
type Arbiter struct {
	store store.Store
	log   logging.Logger

	mu      sync.Mutex
	records map[string]*callRecord
}

func New(s store.Store, log logging.Logger) *Arbiter {
	return &Arbiter{store: s, log: log, records: make(map[string]*callRecord)}
}

// Report records a termination signal for callID and applies it to
// Call.terminatedBy per the dominance rules, always appending an audit
// CallEvent regardless of whether this signal was authoritative.
func (a *Arbiter) Report(ctx context.Context, callID string, source Source, tag Tag) error {
	rec := a.recordFor(callID)

	a.mu.Lock()
	amdLocked := rec.amdLocked
	apiAt := rec.apiRequestAt
	a.mu.Unlock()

	applied := false
	var err error

	switch {
	case amdLocked && tag != TagAMDMachine:
		// amd_machine dominates everything that arrives after it (rule 1).

	case tag == TagAMDMachine:
		err = a.store.ForceTerminatedBy(ctx, callID, string(tag), time.Now())
		if err == nil {
			a.mu.Lock()
			rec.amdLocked = true
			a.mu.Unlock()
			applied = true
		}

	case tag == TagAPIRequest:
		err = a.store.ForceTerminatedBy(ctx, callID, string(tag), time.Now())
		if err == nil {
			a.mu.Lock()
			rec.apiRequestAt = time.Now()
			a.mu.Unlock()
			applied = true
		}

	case !apiAt.IsZero() && time.Since(apiAt) < apiRequestDominanceWindow:
		// A natural signal raced an api_request issued moments ago;
		// reassert api_request rather than let the race decide (rule 2).
		err = a.store.ForceTerminatedBy(ctx, callID, string(TagAPIRequest), apiAt)

	default:
		applied, err = a.store.SetTerminatedByOnce(ctx, callID, string(tag), time.Now())
	}

	if err != nil {
		return err
	}

	a.logSignal(ctx, callID, source, tag, applied)
	return nil
}

// ReportHeuristic applies the "Unclassified" fallback rows of the signal
// table: a short call (<3s) with no other classification becomes
// user_immediate_hangup, otherwise unknown. Callers invoke this once,
// after all other signals for a call have had a chance to arrive.
func (a *Arbiter) ReportHeuristic(ctx context.Context, callID string, duration time.Duration) error {
	tag := TagUnknown
	if duration < 3*time.Second {
		tag = TagUserImmediateHangup
	}
	return a.Report(ctx, callID, SourceHeuristic, tag)
}

// SignalVoiceInsights is an optional termination signal entry point for a
// post-call quality-analysis integration (spec §9 open question). No
// caller wires this by default; an operator may attach one.
func (a *Arbiter) SignalVoiceInsights(ctx context.Context, callID string, tag Tag) error {
	return a.Report(ctx, callID, SourceAIWebhook, tag)
}

// Forget drops the in-memory dominance record for a call once it has been
// fully finalized, so long-running processes don't accumulate one entry
// per call forever.
func (a *Arbiter) Forget(callID string) {
	a.mu.Lock()
	delete(a.records, callID)
	a.mu.Unlock()
}

func (a *Arbiter) recordFor(callID string) *callRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.records[callID]
	if !ok {
		rec = &callRecord{}
		a.records[callID] = rec
	}
	return rec
}

func (a *Arbiter) logSignal(ctx context.Context, callID string, source Source, tag Tag, applied bool) {
	event := &models.CallEvent{
		CallID: callID,
		Type:   models.EventTerminationSignal,
		Source: string(source),
		Payload: models.JSON{
			"tag":     string(tag),
			"applied": applied,
		},
	}
	if err := a.store.AppendCallEvent(ctx, event); err != nil {
		a.log.Warnw("arbiter: failed to record termination signal event", "callId", callID, "error", err)
	}
}
