package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/voxbridge/callengine/internal/arbiter"
	"github.com/voxbridge/callengine/internal/eventbus"
	"github.com/voxbridge/callengine/internal/models"
	"github.com/voxbridge/callengine/internal/signature"
	"github.com/voxbridge/callengine/internal/telephony"
)

type webhooksAPI struct {
	Deps
}

// statusToCallState maps a Twilio-shaped CallStatus onto the Call lifecycle
// (spec §4.4 status callback row).
var statusToCallState = map[string]string{
	"initiated":   models.CallInitiated,
	"ringing":     models.CallRinging,
	"in-progress": models.CallInProgress,
	"completed":   models.CallCompleted,
	"busy":        models.CallBusy,
	"failed":      models.CallFailed,
	"no-answer":   models.CallNoAnswer,
	"canceled":    models.CallCanceled,
}

// statusToArbiterTag implements the terminal rows of spec §4.6's signal
// table that the status callback itself is authoritative for. "completed"
// is deliberately absent: that outcome's terminatedBy comes from the
// Bridge session or the AI webhook, not the bare status transition.
var statusToArbiterTag = map[string]arbiter.Tag{
	"busy":      arbiter.TagUserBusy,
	"no-answer": arbiter.TagUserNoAnswer,
	"failed":    arbiter.TagSystem,
	"canceled":  arbiter.TagSystem,
}

// CallStatus ingests the provider's call-status callback: persists the
// transition, emits call.updates, and — for the statuses it is itself
// authoritative for — reports a termination signal (spec §4.4, §6.2).
// Always responds 200 so the provider never retry-storms a failing handler.
func (a *webhooksAPI) CallStatus(c *gin.Context) {
	var p telephony.StatusCallbackPayload
	if err := c.ShouldBind(&p); err != nil {
		a.Log.Warnw("webhook: malformed call-status-callback", "error", err)
		c.Status(http.StatusOK)
		return
	}
	ctx := c.Request.Context()

	state, ok := statusToCallState[p.CallStatus]
	if !ok {
		state = models.CallInProgress
	}

	if telephony.IsTerminalStatus(p.CallStatus) {
		duration, _ := strconv.Atoi(p.CallDuration)
		if err := a.Store.FinalizeCall(ctx, p.CallSid, state, time.Now(), duration); err != nil {
			a.Log.Warnw("webhook: failed to finalize call", "callId", p.CallSid, "error", err)
		}
	} else if err := a.Store.UpdateCallState(ctx, p.CallSid, state, time.Now()); err != nil {
		a.Log.Warnw("webhook: failed to update call state", "callId", p.CallSid, "error", err)
	}

	if tag, ok := statusToArbiterTag[p.CallStatus]; ok {
		if err := a.Arbiter.Report(ctx, p.CallSid, arbiter.SourceTelephonyStatus, tag); err != nil {
			a.Log.Warnw("webhook: arbiter report failed", "callId", p.CallSid, "error", err)
		}
	}

	a.Bus.Publish(eventbus.TopicCallUpdates, eventbus.TypeCallUpdated, map[string]string{"callId": p.CallSid, "status": p.CallStatus})
	c.Status(http.StatusOK)
}

// AMDStatus ingests the asynchronous answering-machine-detection callback
// (spec §4.4). A machine_* classification is reported to the Arbiter, which
// locks terminatedBy=amd_machine against any later signal (spec §4.6 rule 1).
func (a *webhooksAPI) AMDStatus(c *gin.Context) {
	var p telephony.AMDStatusCallbackPayload
	if err := c.ShouldBind(&p); err != nil {
		a.Log.Warnw("webhook: malformed amd-status-callback", "error", err)
		c.Status(http.StatusOK)
		return
	}
	ctx := c.Request.Context()

	if err := a.Store.SetAnsweredBy(ctx, p.CallSid, p.AnsweredBy, time.Now()); err != nil {
		a.Log.Warnw("webhook: failed to set answeredBy", "callId", p.CallSid, "error", err)
	}
	if strings.HasPrefix(p.AnsweredBy, "machine") {
		if err := a.Arbiter.Report(ctx, p.CallSid, arbiter.SourceTelephonyAMD, arbiter.TagAMDMachine); err != nil {
			a.Log.Warnw("webhook: arbiter report failed", "callId", p.CallSid, "error", err)
		}
	}
	a.Bus.Publish(eventbus.TopicCall(p.CallSid), eventbus.TypeCallUpdated, map[string]string{"callId": p.CallSid, "answeredBy": p.AnsweredBy})
	c.Status(http.StatusOK)
}

var recordingStatusToModel = map[string]string{
	"completed": models.RecordingAvailable,
	"failed":    models.RecordingFailed,
	"absent":    models.RecordingFailed,
}

// RecordingStatus upserts the Recording row for a call (spec §4.4).
func (a *webhooksAPI) RecordingStatus(c *gin.Context) {
	var p telephony.RecordingStatusCallbackPayload
	if err := c.ShouldBind(&p); err != nil {
		a.Log.Warnw("webhook: malformed recording-status-callback", "error", err)
		c.Status(http.StatusOK)
		return
	}
	ctx := c.Request.Context()

	status, ok := recordingStatusToModel[p.RecordingStatus]
	if !ok {
		status = models.RecordingPending
	}
	duration, _ := strconv.Atoi(p.RecordingDuration)
	rec := &models.Recording{
		ID:          p.RecordingSid,
		CallID:      p.CallSid,
		Status:      status,
		URL:         p.RecordingUrl,
		DurationSec: duration,
	}
	if err := a.Store.UpsertRecording(ctx, rec); err != nil {
		a.Log.Warnw("webhook: failed to upsert recording", "callId", p.CallSid, "error", err)
	}
	a.Bus.Publish(eventbus.TopicCall(p.CallSid), eventbus.TypeCallUpdated, map[string]string{"callId": p.CallSid, "recordingStatus": p.RecordingStatus})
	c.Status(http.StatusOK)
}

// QualityInsights attaches a quality signal to the call's event log and
// notifies any subscriber of call.<id> (spec §4.4).
func (a *webhooksAPI) QualityInsights(c *gin.Context) {
	var p telephony.QualityInsightsCallbackPayload
	if err := c.ShouldBind(&p); err != nil {
		a.Log.Warnw("webhook: malformed quality-insights-callback", "error", err)
		c.Status(http.StatusOK)
		return
	}
	ctx := c.Request.Context()

	event := &models.CallEvent{
		CallID: p.CallSid,
		Type:   eventbus.TypeQualityUpdate,
		Source: "telephony_quality",
		Payload: models.JSON{
			"mos":            p.MOS,
			"packetsLostPct": p.PacketsLostPct,
			"jitterMs":       p.JitterMs,
		},
	}
	if err := a.Store.AppendCallEvent(ctx, event); err != nil {
		a.Log.Warnw("webhook: failed to append quality event", "callId", p.CallSid, "error", err)
	}
	a.Bus.Publish(eventbus.TopicCall(p.CallSid), eventbus.TypeQualityUpdate, map[string]any{"callId": p.CallSid, "mos": p.MOS})
	c.Status(http.StatusOK)
}

// FallbackTwiML returns an apology-and-hangup response when the provider
// falls back because the primary webhook handler was unreachable (spec §6.2).
func (a *webhooksAPI) FallbackTwiML(c *gin.Context) {
	c.Header("Content-Type", "text/xml")
	c.String(http.StatusOK, `<?xml version="1.0" encoding="UTF-8"?><Response><Say>We're sorry, an error occurred. Goodbye.</Say><Hangup/></Response>`)
}

type elevenLabsPayload struct {
	CallID         string      `json:"call_id"`
	ConversationID string      `json:"conversation_id"`
	Analysis       models.JSON `json:"analysis,omitempty"`
}

// ElevenLabs ingests the AI provider's post-call summary. The signature is
// verified when a secret is configured; the handler always responds 200
// (spec §6.2) regardless of verification outcome or downstream error.
func (a *webhooksAPI) ElevenLabs(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(http.StatusOK)
		return
	}

	if a.Config.AIWebhookSecret != "" {
		header := c.GetHeader("elevenlabs-signature")
		if _, verr := signature.Verify(header, a.Config.AIWebhookSecret, body); verr != nil {
			a.Log.Warnw("webhook: elevenlabs signature rejected", "error", verr)
			c.Status(http.StatusOK)
			return
		}
	}

	var p elevenLabsPayload
	if err := json.Unmarshal(body, &p); err != nil || p.CallID == "" {
		c.Status(http.StatusOK)
		return
	}

	event := &models.CallEvent{
		CallID:  p.CallID,
		Type:    models.EventCallCompleted,
		Source:  "ai_webhook",
		Payload: models.JSON{"conversationId": p.ConversationID, "analysis": p.Analysis},
	}
	if err := a.Store.AppendCallEvent(c.Request.Context(), event); err != nil {
		a.Log.Warnw("webhook: failed to append elevenlabs summary event", "callId", p.CallID, "error", err)
	}
	c.Status(http.StatusOK)
}
