package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxbridge/callengine/internal/apperrors"
	"github.com/voxbridge/callengine/internal/arbiter"
	"github.com/voxbridge/callengine/internal/eventbus"
	"github.com/voxbridge/callengine/internal/logging"
	"github.com/voxbridge/callengine/internal/metrics"
	"github.com/voxbridge/callengine/internal/models"
	"github.com/voxbridge/callengine/internal/store"
	"github.com/voxbridge/callengine/internal/telephony"
)

// Session state machine (spec §4.5).
const (
	StatePending       = "pending"
	StateAwaitingInit  = "awaiting_init"
	StateActive        = "active"
	StateTerminating   = "terminating"
	StateClosed        = "closed"
)

const (
	outboundQueueCap = 256 // ~5s of 20ms frames (spec §4.5 backpressure)
)

// session owns one call's dual-WebSocket proxy and authoritative runtime
// state. Every call is a separate task with two read loops and one
// activity timer, sharing nothing but the registry that indexes it
// (spec §5).
type session struct {
	callID     string
	campaignID string
	contactID  string

	telephonyConn *websocket.Conn
	aiConn        *websocket.Conn

	store   store.Store
	bus     *eventbus.Bus
	arb     *arbiter.Arbiter
	gateway telephony.Gateway
	log     logging.Logger

	inactivityTimeout time.Duration
	maxDuration       time.Duration

	mu         sync.Mutex
	state      string
	streamSid  string
	startedAt  time.Time
	lastActive time.Time

	outbound chan TelephonyMessage // frames queued for the telephony leg

	cancel context.CancelFunc
}

func newSession(callID, campaignID, contactID string, telephonyConn, aiConn *websocket.Conn, s store.Store, bus *eventbus.Bus, arb *arbiter.Arbiter, gw telephony.Gateway, log logging.Logger, inactivityTimeout, maxDuration time.Duration) *session {
	now := time.Now()
	return &session{
		callID:            callID,
		campaignID:        campaignID,
		contactID:         contactID,
		telephonyConn:     telephonyConn,
		aiConn:            aiConn,
		store:             s,
		bus:               bus,
		arb:               arb,
		gateway:           gw,
		log:               log,
		inactivityTimeout: inactivityTimeout,
		maxDuration:       maxDuration,
		state:             StatePending,
		startedAt:         now,
		lastActive:        now,
		outbound:          make(chan TelephonyMessage, outboundQueueCap),
	}
}

// run drives both read loops and the activity/duration timers until the
// session reaches Closed. It blocks the caller goroutine.
func (s *session) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); s.readTelephony(ctx) }()
	go func() { defer wg.Done(); s.readAI(ctx) }()
	go func() { defer wg.Done(); s.writeTelephony(ctx) }()

	s.watchTimers(ctx)
	wg.Wait()
}

func (s *session) watchTimers(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			idle := time.Since(s.lastActive)
			total := time.Since(s.startedAt)
			closed := s.state == StateClosed || s.state == StateTerminating
			s.mu.Unlock()
			if closed {
				continue
			}
			if idle >= s.inactivityTimeout {
				s.terminate(ctx, arbiter.SourceBridgeTimer, arbiter.TagSystemInactivity)
				return
			}
			if total >= s.maxDuration {
				s.terminate(ctx, arbiter.SourceBridgeTimer, arbiter.TagDurationLimit)
				return
			}
		}
	}
}

func (s *session) readTelephony(ctx context.Context) {
	for {
		_, raw, err := s.telephonyConn.ReadMessage()
		if err != nil {
			s.terminate(ctx, arbiter.SourceBridgeTimer, arbiter.TagSystem)
			return
		}
		var msg TelephonyMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		s.touch()

		switch msg.Event {
		case "start":
			s.handleTelephonyStart(msg)
		case "media":
			s.handleTelephonyMedia(msg)
		case "stop":
			s.terminate(ctx, arbiter.SourceBridgeTimer, arbiter.TagSystem)
			return
		}
	}
}

func (s *session) handleTelephonyStart(msg TelephonyMessage) {
	s.mu.Lock()
	s.streamSid = msg.StreamSid
	if s.state == StatePending {
		s.state = StateAwaitingInit
	}
	s.mu.Unlock()

	metrics.BridgeSessionsActive.Inc()
	s.publishCallUpdate()
}

func (s *session) handleTelephonyMedia(msg TelephonyMessage) {
	if msg.Media == nil || msg.Media.Payload == "" {
		return
	}
	if err := s.aiConn.WriteMessage(websocket.TextMessage, aiAudioIn(msg.Media.Payload)); err != nil {
		s.log.Warnw("bridge: failed forwarding telephony audio to ai", "callId", s.callID, "error", err)
	}
}

func (s *session) readAI(ctx context.Context) {
	for {
		_, raw, err := s.aiConn.ReadMessage()
		if err != nil {
			return
		}
		var msg aiMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		s.touch()

		switch msg.Type {
		case "conversation_initiation_metadata":
			s.handleConversationInitiated(ctx, msg)
		case "audio":
			s.handleAIAudio(msg)
		case "user_transcript":
			s.publishTranscript("user", msg.UserTranscriptionEvent)
		case "agent_response":
			s.publishTranscript("agent", msg.AgentResponseEvent)
		case "conversation_completed":
			s.handleConversationCompleted(ctx, msg)
			return
		}
	}
}

func (s *session) handleConversationInitiated(ctx context.Context, msg aiMessage) {
	if msg.ConversationInitiationMetadata == nil {
		return
	}
	conversationID := msg.ConversationInitiationMetadata.ConversationID

	s.mu.Lock()
	s.state = StateActive
	s.mu.Unlock()

	if err := s.store.SetConversationID(ctx, s.callID, conversationID); err != nil {
		s.log.Warnw("bridge: failed to persist conversation id", "callId", s.callID, "error", err)
	}
	s.appendEvent(ctx, models.EventMediaStart, "internal", models.JSON{"conversationId": conversationID})
	s.publishCallUpdate()
}

func (s *session) handleAIAudio(msg aiMessage) {
	if msg.AudioEvent == nil || msg.AudioEvent.AudioBase64 == "" {
		return
	}
	s.enqueueOutbound(telephonyMediaOut(s.streamSidSafe(), msg.AudioEvent.AudioBase64))
}

func (s *session) handleConversationCompleted(ctx context.Context, msg aiMessage) {
	tag := arbiter.TagUser
	if msg.ConversationCompletedEvent != nil && msg.ConversationCompletedEvent.InitiatedBy == "agent" {
		tag = arbiter.TagAgent
	}
	s.terminate(ctx, arbiter.SourceAIWebhook, tag)
}

// enqueueOutbound drops the oldest queued frame rather than block when the
// outbound socket can't keep up (spec §4.5 backpressure: 256 frames/~5s).
func (s *session) enqueueOutbound(msg TelephonyMessage) {
	select {
	case s.outbound <- msg:
		return
	default:
	}
	select {
	case <-s.outbound:
	default:
	}
	select {
	case s.outbound <- msg:
	default:
	}
	metrics.BridgeFramesDroppedTotal.WithLabelValues("telephony").Inc()
	s.bus.Publish(eventbus.TopicCall(s.callID), eventbus.TypeQualityUpdate, map[string]string{"callId": s.callID, "reason": "outbound_queue_overflow"})
}

func (s *session) writeTelephony(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.outbound:
			if !ok {
				return
			}
			if err := s.telephonyConn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

func (s *session) streamSidSafe() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamSid
}

func (s *session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// terminate runs the Terminating → Closed transition once: cancel both
// read loops, close both sockets, ask the Gateway to hang up, report the
// signal to the Arbiter, finalize the Call (spec §4.5 cancellation).
func (s *session) terminate(ctx context.Context, source arbiter.Source, tag arbiter.Tag) {
	s.mu.Lock()
	if s.state == StateTerminating || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateTerminating
	s.mu.Unlock()

	// ctx may be the session's own context, which is cancelled just below;
	// the arbiter/store/gateway calls run on a copy that outlives it.
	ctx = context.WithoutCancel(ctx)

	if s.cancel != nil {
		s.cancel()
	}
	s.telephonyConn.Close()
	s.aiConn.Close()
	metrics.BridgeSessionsActive.Dec()

	if err := s.arb.Report(ctx, s.callID, source, tag); err != nil {
		s.log.Warnw("bridge: arbiter report failed", "callId", s.callID, "error", err)
	}

	endedAt := time.Now()
	durationSec := int(endedAt.Sub(s.startedAt).Seconds())
	finalState := outcomeToCallState(tag)
	if err := s.store.FinalizeCall(ctx, s.callID, finalState, endedAt, durationSec); err != nil {
		s.log.Warnw("bridge: finalize call failed", "callId", s.callID, "error", err)
	}
	if err := s.store.FreezeTranscript(ctx, s.callID); err != nil && !apperrors.IsNotFound(err) {
		s.log.Warnw("bridge: freeze transcript failed", "callId", s.callID, "error", err)
	}

	if err := s.gateway.TerminateCall(ctx, s.callID, telephony.TerminateReason(tag)); err != nil {
		s.log.Warnw("bridge: gateway terminate failed", "callId", s.callID, "error", err)
	}

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	s.publishCallUpdate()
}

// outcomeToCallState maps a terminatedBy tag to the Call's final state
// when the Bridge — rather than a telephony status callback — is what
// observed the call ending (spec §7 outcome mapping).
func outcomeToCallState(tag arbiter.Tag) string {
	switch tag {
	case arbiter.TagUserBusy:
		return models.CallBusy
	case arbiter.TagUserNoAnswer:
		return models.CallNoAnswer
	case arbiter.TagSystem:
		return models.CallFailed
	default:
		return models.CallCompleted
	}
}

func (s *session) publishCallUpdate() {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	s.bus.Publish(eventbus.TopicCall(s.callID), eventbus.TypeCallUpdated, map[string]string{"callId": s.callID, "bridgeState": state})
	s.bus.Publish(eventbus.TopicCallUpdates, eventbus.TypeCallUpdated, map[string]string{"callId": s.callID, "bridgeState": state})
}

func (s *session) publishTranscript(role string, ev *aiTranscriptEvent) {
	if ev == nil {
		return
	}
	s.bus.Publish(eventbus.TopicTranscript(s.callID), eventbus.TypeTranscriptDelta, map[string]any{
		"role":      role,
		"text":      ev.Text,
		"isPartial": !ev.IsFinal,
	})
	if ev.IsFinal {
		_ = s.store.AppendUtterance(context.Background(), s.callID, models.Utterance{
			Speaker:   role,
			Text:      ev.Text,
			Timestamp: time.Now(),
			Final:     true,
		})
	}
}

func (s *session) appendEvent(ctx context.Context, eventType, source string, payload models.JSON) {
	_ = s.store.AppendCallEvent(ctx, &models.CallEvent{CallID: s.callID, Type: eventType, Source: source, Payload: payload})
}
