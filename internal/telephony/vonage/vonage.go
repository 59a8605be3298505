// Package vonage is the alternate Gateway implementation (spec §4.4), kept
// behind the same provider-agnostic interface as the primary Twilio
// gateway so the Campaign Engine never branches on provider.
package vonage

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	vng "github.com/vonage/vonage-go-sdk"

	"github.com/voxbridge/callengine/internal/apperrors"
	"github.com/voxbridge/callengine/internal/logging"
	"github.com/voxbridge/callengine/internal/retry"
	"github.com/voxbridge/callengine/internal/telephony"
)

// Credentials generalizes the teacher's vault-backed Auth extraction
// (internal_vonage_telephony.vg.Auth) to plain process config: an
// application id plus its private key, rather than a protobuf map lookup.
type Credentials struct {
	ApplicationID string
	PrivateKey    []byte
	FromNumber    string
}

type gateway struct {
	voice       *vng.VoiceClient
	creds       Credentials
	log         logging.Logger
	retryPolicy retry.Policy
}

// New builds a telephony.Gateway backed by the Vonage Voice API, deriving
// the SDK's auth context the same way the teacher's vg.Auth does — from an
// application id and a private key — just sourced from config instead of
// a vault credential.
func New(creds Credentials, log logging.Logger) (telephony.Gateway, error) {
	auth, err := vng.CreateAuthFromAppPrivateKey(creds.ApplicationID, creds.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("vonage: building app auth: %w", err)
	}
	voice, err := vng.NewVoiceClient(auth)
	if err != nil {
		return nil, fmt.Errorf("vonage: building voice client: %w", err)
	}
	return &gateway{voice: voice, creds: creds, log: log, retryPolicy: retry.DefaultPolicy()}, nil
}

func (g *gateway) CreateCall(ctx context.Context, req telephony.CreateCallRequest) (*telephony.CreateCallResult, error) {
	from := req.From
	if from == "" {
		from = g.creds.FromNumber
	}

	ncco := buildStreamNCCO(req)

	var callID string
	err := retry.Do(ctx, g.log, g.retryPolicy, isRetryableVonageErr, func() error {
		result, _, callErr := g.voice.CreateCall(vng.CreateCallReq{
			Ncco: ncco,
			To:   []vng.CallTo{{Type: "phone", Number: req.To}},
			From: vng.CallFrom{Type: "phone", Number: from},
		})
		if callErr != nil {
			return callErr
		}
		callID = result.Uuid
		return nil
	})
	if err != nil {
		return nil, apperrors.New(apperrors.KindUpstream, "vonage.CreateCall", err)
	}
	if callID == "" {
		return nil, apperrors.New(apperrors.KindUpstream, "vonage.CreateCall", errors.New("vonage: response missing call uuid"))
	}
	return &telephony.CreateCallResult{ProviderCallID: callID}, nil
}

func (g *gateway) TerminateCall(ctx context.Context, providerCallID string, reason telephony.TerminateReason) error {
	err := retry.Do(ctx, g.log, g.retryPolicy, isRetryableVonageErr, func() error {
		_, _, callErr := g.voice.HangupCall(providerCallID)
		return callErr
	})
	if err != nil {
		return apperrors.New(apperrors.KindUpstream, "vonage.TerminateCall", err)
	}
	g.log.Infow("terminated call", "providerCallId", providerCallID, "reason", string(reason))
	return nil
}

// buildStreamNCCO is the Vonage Call Control Object equivalent of the
// Twilio gateway's <Connect><Stream> TwiML: it opens the outbound
// WebSocket leg to this service's bridge with the same override fields
// threaded through as custom data.
func buildStreamNCCO(req telephony.CreateCallRequest) []vng.Ncco {
	action := vng.NccoAction(vng.ConnectAction{
		Endpoint: []vng.ConnectEndpoint{
			vng.WebsocketEndpoint{
				Type:  "websocket",
				Uri:   req.StreamURL,
				ContentType: "audio/l16;rate=16000",
				Headers: map[string]interface{}{
					"campaignId":   req.CampaignID,
					"contactId":    req.ContactID,
					"prompt":       req.PromptOverride,
					"firstMessage": req.FirstMessageOverride,
					"name":         req.Name,
				},
			},
		},
	})
	return []vng.Ncco{action}
}

// isRetryableVonageErr mirrors the Twilio gateway's status-based split (spec
// §7 Transient): retry 5xx/transport failures, fail fast on a permanent
// rejection like an invalid number. The SDK doesn't expose a typed REST
// error the way twilio-go does, so the status is parsed off the front of
// its "<code> <text>" error string instead.
func isRetryableVonageErr(err error) bool {
	if err == nil {
		return false
	}
	status := leadingStatusCode(err.Error())
	if status == 0 {
		return true
	}
	return status >= 500
}

// leadingStatusCode extracts a 3-digit HTTP status from the front of msg
// (e.g. "429 Too Many Requests" -> 429), returning 0 if msg doesn't start
// with one.
func leadingStatusCode(msg string) int {
	if len(msg) < 3 {
		return 0
	}
	for i := 0; i < 3; i++ {
		if msg[i] < '0' || msg[i] > '9' {
			return 0
		}
	}
	if len(msg) > 3 && msg[3] != ' ' {
		return 0
	}
	code, err := strconv.Atoi(msg[:3])
	if err != nil {
		return 0
	}
	return code
}
