package telephony

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/voxbridge/callengine/internal/apperrors"
	"github.com/voxbridge/callengine/internal/logging"
	"github.com/voxbridge/callengine/internal/retry"
)

// twilioGateway is the primary Gateway implementation, generalized from
// the teacher's credential-resolution shape (internal_twilio_telephony.twl)
// off a vault-backed protobuf credential onto plain process config.
type twilioGateway struct {
	client      *twilio.RestClient
	creds       Credentials
	log         logging.Logger
	retryPolicy retry.Policy
}

func NewTwilioGateway(creds Credentials, log logging.Logger) Gateway {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: creds.AccountSID,
		Password: creds.AuthToken,
	})
	return &twilioGateway{client: client, creds: creds, log: log, retryPolicy: retry.DefaultPolicy()}
}

func (g *twilioGateway) CreateCall(ctx context.Context, req CreateCallRequest) (*CreateCallResult, error) {
	from := req.From
	if from == "" {
		from = g.creds.FromNumber
	}

	params := &openapi.CreateCallParams{}
	params.SetTo(req.To)
	params.SetFrom(from)
	params.SetTwiml(buildStreamTwiML(req))
	if req.StatusCallbackURL != "" {
		params.SetStatusCallback(req.StatusCallbackURL)
		params.SetStatusCallbackEvent([]string{"initiated", "ringing", "answered", "completed"})
	}
	if req.AMDStatusCallbackURL != "" {
		params.SetMachineDetection("DetectMessageEnd")
		params.SetAsyncAmd("true")
		params.SetAsyncAmdStatusCallback(req.AMDStatusCallbackURL)
	}
	if req.RecordingCallbackURL != "" {
		params.SetRecordingStatusCallback(req.RecordingCallbackURL)
	}

	var result *openapi.ApiV2010Call
	err := retry.Do(ctx, g.log, g.retryPolicy, isRetryableTwilioErr, func() error {
		var callErr error
		result, callErr = g.client.Api.CreateCall(params)
		return callErr
	})
	if err != nil {
		return nil, apperrors.New(apperrors.KindUpstream, "telephony.CreateCall", err)
	}
	if result == nil || result.Sid == nil {
		return nil, apperrors.New(apperrors.KindUpstream, "telephony.CreateCall", errors.New("twilio: response missing call sid"))
	}
	return &CreateCallResult{ProviderCallID: *result.Sid}, nil
}

func (g *twilioGateway) TerminateCall(ctx context.Context, providerCallID string, reason TerminateReason) error {
	params := &openapi.UpdateCallParams{}
	params.SetStatus("completed")
	err := retry.Do(ctx, g.log, g.retryPolicy, isRetryableTwilioErr, func() error {
		_, callErr := g.client.Api.UpdateCall(providerCallID, params)
		return callErr
	})
	if err != nil {
		return apperrors.New(apperrors.KindUpstream, "telephony.TerminateCall", err)
	}
	g.log.Infow("terminated call", "providerCallId", providerCallID, "reason", string(reason))
	return nil
}

// buildStreamTwiML instructs Twilio to connect the call's media to this
// service's bridge endpoint, carrying the AI override fields as Stream
// custom parameters per spec §6.4.
func buildStreamTwiML(req CreateCallRequest) string {
	var params strings.Builder
	writeParam(&params, "campaignId", req.CampaignID)
	writeParam(&params, "contactId", req.ContactID)
	writeParam(&params, "prompt", req.PromptOverride)
	writeParam(&params, "first_message", req.FirstMessageOverride)
	writeParam(&params, "name", req.Name)

	return fmt.Sprintf(
		`<?xml version="1.0" encoding="UTF-8"?><Response><Connect><Stream url="%s">%s</Stream></Connect></Response>`,
		req.StreamURL, params.String(),
	)
}

func writeParam(b *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, `<Parameter name="%s" value="%s"/>`, name, xmlEscape(value))
}

func xmlEscape(s string) string {
	replacer := strings.NewReplacer(`&`, "&amp;", `"`, "&quot;", `<`, "&lt;", `>`, "&gt;")
	return replacer.Replace(s)
}

// isRetryableTwilioErr retries transport/5xx failures (spec §7 Transient)
// but not 4xx validation errors, which retrying would never fix.
func isRetryableTwilioErr(err error) bool {
	if err == nil {
		return false
	}
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) {
		return restErr.Status >= 500
	}
	return true
}
