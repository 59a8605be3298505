package telephony

import (
	"errors"
	"testing"

	twilioclient "github.com/twilio/twilio-go/client"

	"github.com/stretchr/testify/assert"
)

func TestBuildStreamTwiML_IncludesOverrideParameters(t *testing.T) {
	req := CreateCallRequest{
		To:                   "+15551234567",
		StreamURL:            "wss://bridge.example.com/media",
		CampaignID:           "camp-1",
		ContactID:            "contact-2",
		PromptOverride:       "Say hello & goodbye",
		FirstMessageOverride: "Hi there",
		Name:                 "Jane",
	}

	twiml := buildStreamTwiML(req)

	assert.Contains(t, twiml, `<Stream url="wss://bridge.example.com/media">`)
	assert.Contains(t, twiml, `name="campaignId" value="camp-1"`)
	assert.Contains(t, twiml, `name="contactId" value="contact-2"`)
	assert.Contains(t, twiml, `name="prompt" value="Say hello &amp; goodbye"`)
	assert.Contains(t, twiml, `name="first_message" value="Hi there"`)
}

func TestBuildStreamTwiML_OmitsEmptyOverrides(t *testing.T) {
	req := CreateCallRequest{To: "+15551234567", StreamURL: "wss://bridge.example.com/media"}

	twiml := buildStreamTwiML(req)

	assert.NotContains(t, twiml, `name="prompt"`)
	assert.NotContains(t, twiml, `name="name"`)
}

func TestIsRetryableTwilioErr(t *testing.T) {
	assert.False(t, isRetryableTwilioErr(nil))
	assert.True(t, isRetryableTwilioErr(errors.New("dial tcp: timeout")))
	assert.True(t, isRetryableTwilioErr(&twilioclient.TwilioRestError{Status: 503}))
	assert.False(t, isRetryableTwilioErr(&twilioclient.TwilioRestError{Status: 400}))
}

func TestIsTerminalStatus(t *testing.T) {
	assert.True(t, IsTerminalStatus("completed"))
	assert.True(t, IsTerminalStatus("no-answer"))
	assert.False(t, IsTerminalStatus("ringing"))
	assert.False(t, IsTerminalStatus("in-progress"))
}
