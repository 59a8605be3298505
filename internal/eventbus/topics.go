package eventbus

import "fmt"

// Topic name helpers (spec §4.2). Callers should always go through these
// rather than formatting strings ad hoc, so subscribe/publish call sites
// can't drift apart.
const (
	TopicCallUpdates     = "call.updates"
	TopicCampaignUpdates = "campaign.updates"
)

func TopicCall(callID string) string           { return fmt.Sprintf("call.%s", callID) }
func TopicTranscript(callID string) string     { return fmt.Sprintf("transcript.%s", callID) }
func TopicCampaign(campaignID string) string   { return fmt.Sprintf("campaign.%s", campaignID) }
