// Package telephony wraps the outbound-calling REST surface of a telephony
// provider and defines the webhook DTOs that surface decodes (spec §4.4).
package telephony

import (
	"context"
	"time"
)

// CreateCallRequest is everything the Gateway needs to place one outbound
// call and wire it back to this service's webhooks (spec §6.1, §4.4).
type CreateCallRequest struct {
	To           string
	From         string
	CampaignID   string
	ContactID    string
	PromptOverride       string
	FirstMessageOverride string
	Name                 string

	StatusCallbackURL    string
	AMDStatusCallbackURL string
	RecordingCallbackURL string
	StreamURL            string // wss:// URL this service exposes for the media stream
}

// CreateCallResult carries the provider's call identifier back to the
// caller, which becomes the Call row's primary key (spec §3).
type CreateCallResult struct {
	ProviderCallID string
}

// TerminateReason is threaded through to the Arbiter as the `api_request`
// tag's justification when an operator explicitly ends a call.
type TerminateReason string

// Gateway is the provider-agnostic contract the Campaign Engine and API
// surface depend on; twilioGateway is the primary implementation,
// vonage.Gateway an alternate one behind the same interface.
type Gateway interface {
	CreateCall(ctx context.Context, req CreateCallRequest) (*CreateCallResult, error)
	TerminateCall(ctx context.Context, providerCallID string, reason TerminateReason) error
}

// Credentials generalizes the teacher's vault-credential lookup (a
// protobuf-backed map) to a plain struct, since this module has no vault
// service to resolve against — credentials come from process config.
type Credentials struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

const (
	defaultConnectTimeout = 10 * time.Second
	defaultOverallTimeout = 30 * time.Second
)
