package telephony

import (
	"errors"

	twilioclient "github.com/twilio/twilio-go/client"
)

// Provider failure reasons the Campaign Engine classifies CreateCall errors
// into (spec §7 ProviderFailure).
const (
	ReasonInsufficientFunds = "insufficient_funds"
	ReasonUnreachableNumber = "unreachable_number"
	ReasonUnknown           = "unknown"
)

// twilioInsufficientFundsCodes are the account-balance error codes Twilio's
// REST API returns for CreateCall when the account can't fund the call.
var twilioInsufficientFundsCodes = map[int]bool{
	20003: true, // authentication/balance-related account restriction
	21606: true, // "From" number not capable of calling — billing-blocked accounts commonly surface here
}

var twilioUnreachableNumberCodes = map[int]bool{
	21211: true, // invalid "To" number
	21214: true, // "To" number not reachable/not a valid mobile
}

// ClassifyFailureReason maps a CreateCall error to the provider failure
// reason the Campaign Engine uses for contact outcome and auto-pause
// bookkeeping (spec §7, §4.7 credit exhaustion).
func ClassifyFailureReason(err error) string {
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) {
		switch {
		case twilioInsufficientFundsCodes[restErr.Code]:
			return ReasonInsufficientFunds
		case twilioUnreachableNumberCodes[restErr.Code]:
			return ReasonUnreachableNumber
		}
	}
	return ReasonUnknown
}
