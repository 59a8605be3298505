// Package bridge implements the Media Bridge (spec §4.5): a dual-WebSocket
// proxy between the telephony provider's media stream and the AI
// provider's conversational stream, with one session state machine per
// call and the registry the API surface queries for active-call listings.
package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxbridge/callengine/internal/aiprovider"
	"github.com/voxbridge/callengine/internal/apperrors"
	"github.com/voxbridge/callengine/internal/arbiter"
	"github.com/voxbridge/callengine/internal/eventbus"
	"github.com/voxbridge/callengine/internal/logging"
	"github.com/voxbridge/callengine/internal/store"
	"github.com/voxbridge/callengine/internal/telephony"
)

const aiDialTimeout = 10 * time.Second // spec §5 "WebSocket open: 10 s"

// defaultInactivityTimeout and defaultMaxDuration are the spec §4.5/§6.5
// fallbacks (inactivityMs=60000, durationCapMs=600000) used when New is
// given a non-positive value.
const (
	defaultInactivityTimeout = 60 * time.Second
	defaultMaxDuration       = 10 * time.Minute
)

// Bridge owns the active-calls registry: a mutex-protected map used only
// for lookup, termination, and listings (spec §5), never held across
// network I/O.
type Bridge struct {
	store    store.Store
	bus      *eventbus.Bus
	arb      *arbiter.Arbiter
	gateway  telephony.Gateway
	ai       aiprovider.Client
	log      logging.Logger
	upgrader websocket.Upgrader

	inactivityTimeout time.Duration
	maxDuration       time.Duration

	mu       sync.Mutex
	sessions map[string]*session
}

// New builds a Bridge. inactivityMs/durationCapMs configure the per-session
// timers (spec §6.5 `INACTIVITY_MS`/`DURATION_CAP_MS`); pass 0 for either
// to use the spec's 60s/10min defaults.
func New(s store.Store, bus *eventbus.Bus, arb *arbiter.Arbiter, gw telephony.Gateway, ai aiprovider.Client, log logging.Logger, inactivityMs, durationCapMs int) *Bridge {
	inactivity := defaultInactivityTimeout
	if inactivityMs > 0 {
		inactivity = time.Duration(inactivityMs) * time.Millisecond
	}
	maxDur := defaultMaxDuration
	if durationCapMs > 0 {
		maxDur = time.Duration(durationCapMs) * time.Millisecond
	}
	return &Bridge{
		store:             s,
		bus:               bus,
		arb:               arb,
		gateway:           gw,
		ai:                ai,
		log:               log,
		sessions:          make(map[string]*session),
		inactivityTimeout: inactivity,
		maxDuration:       maxDur,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP is the /outbound-media-stream endpoint: it upgrades the
// inbound telephony connection, waits for the provider's "start" frame to
// learn the call id, dials the AI provider's stream, and runs the session
// until termination.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warnw("bridge: upgrade failed", "error", err)
		return
	}

	callID, campaignID, contactID, streamSid, ok := b.awaitStart(conn)
	if !ok {
		conn.Close()
		return
	}

	aiConn, err := b.dialAI(r.Context(), callID, campaignID, contactID)
	if err != nil {
		b.log.Warnw("bridge: failed dialing ai provider", "callId", callID, "error", err)
		conn.Close()
		return
	}

	sess := newSession(callID, campaignID, contactID, conn, aiConn, b.store, b.bus, b.arb, b.gateway, b.log, b.inactivityTimeout, b.maxDuration)
	sess.handleTelephonyStart(TelephonyMessage{Event: "start", StreamSid: streamSid})
	b.register(callID, sess)
	defer b.unregister(callID)

	sess.run(r.Context())
}

// awaitStart blocks for the provider's first "start" frame (it precedes
// any media), so the call id — which the Bridge needs before it can do
// anything else — is known before the session object is even created.
// The frame's streamSid is returned too, for the session's start handling.
func (b *Bridge) awaitStart(conn *websocket.Conn) (callID, campaignID, contactID, streamSid string, ok bool) {
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return "", "", "", "", false
	}
	var msg TelephonyMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Event != "start" || msg.Start == nil {
		return "", "", "", "", false
	}
	params := msg.Start.CustomParameters
	return msg.Start.CallSid, params["campaignId"], params["contactId"], msg.StreamSid, true
}

func (b *Bridge) dialAI(ctx context.Context, callID, campaignID, contactID string) (*websocket.Conn, error) {
	streamURL, err := b.ai.GetSignedStreamURL(ctx, aiprovider.SignedURLRequest{CampaignID: campaignID, ContactID: contactID})
	if err != nil {
		return nil, apperrors.New(apperrors.KindUpstream, "bridge.dialAI", err)
	}
	if _, err := url.Parse(streamURL); err != nil {
		return nil, apperrors.New(apperrors.KindUpstream, "bridge.dialAI", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: aiDialTimeout}
	conn, _, err := dialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		return nil, apperrors.New(apperrors.KindUpstream, "bridge.dialAI", err)
	}
	return conn, nil
}

func (b *Bridge) register(callID string, s *session) {
	b.mu.Lock()
	b.sessions[callID] = s
	b.mu.Unlock()
}

func (b *Bridge) unregister(callID string) {
	b.mu.Lock()
	delete(b.sessions, callID)
	b.mu.Unlock()
}

// ActiveCallIDs lists calls currently bridged, for the API surface and
// the Hub's call.updates snapshot.
func (b *Bridge) ActiveCallIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.sessions))
	for id := range b.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Terminate ends a bridged call on operator request (spec §4.6
// api_request signal). Returns false if the call isn't currently bridged
// here (it may already have ended, or never reached the stream phase).
func (b *Bridge) Terminate(ctx context.Context, callID string) bool {
	b.mu.Lock()
	s, ok := b.sessions[callID]
	b.mu.Unlock()
	if !ok {
		return false
	}
	s.terminate(ctx, arbiter.SourceAdminAPI, arbiter.TagAPIRequest)
	return true
}
