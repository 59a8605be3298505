package bridge

import "encoding/json"

// TelephonyMessage is the wire shape for both directions of the telephony
// media WebSocket at /outbound-media-stream (spec §6.4).
type TelephonyMessage struct {
	Event     string          `json:"event"`
	StreamSid string          `json:"streamSid,omitempty"`
	Start     *TelephonyStart `json:"start,omitempty"`
	Media     *TelephonyMedia `json:"media,omitempty"`
}

// TelephonyStart carries the custom parameters threaded through from
// CreateCallRequest by the Gateway's TwiML/NCCO (spec §6.4).
type TelephonyStart struct {
	CallSid          string            `json:"callSid"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

// TelephonyMedia wraps one base64 µ-law audio payload.
type TelephonyMedia struct {
	Payload string `json:"payload"`
}

func telephonyMediaOut(streamSid, payloadB64 string) TelephonyMessage {
	return TelephonyMessage{Event: "media", StreamSid: streamSid, Media: &TelephonyMedia{Payload: payloadB64}}
}

func telephonyClear(streamSid string) TelephonyMessage {
	return TelephonyMessage{Event: "clear", StreamSid: streamSid}
}

// aiMessage is the AI provider's conversational-stream wire shape (spec
// §4.5): conversation_initiation_metadata marks Awaiting-Init → Active,
// audio/user_transcript/agent_response carry the two-way conversation, and
// conversation_completed marks the AI side ending the call, tagged with
// who ended it for the Arbiter (spec §4.6).
type aiMessage struct {
	Type                            string                           `json:"type"`
	ConversationInitiationMetadata  *aiConversationInitiationMetadata `json:"conversation_initiation_metadata_event,omitempty"`
	AudioEvent                      *aiAudioEvent                     `json:"audio_event,omitempty"`
	UserTranscriptionEvent          *aiTranscriptEvent                `json:"user_transcription_event,omitempty"`
	AgentResponseEvent              *aiTranscriptEvent                `json:"agent_response_event,omitempty"`
	ConversationCompletedEvent      *aiConversationCompletedEvent      `json:"conversation_completed_event,omitempty"`
}

type aiConversationInitiationMetadata struct {
	ConversationID string `json:"conversation_id"`
}

type aiAudioEvent struct {
	AudioBase64 string `json:"audio_base_64"`
}

type aiTranscriptEvent struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

type aiConversationCompletedEvent struct {
	InitiatedBy string `json:"initiated_by"` // "agent" | "caller"
}

func aiAudioIn(payloadB64 string) []byte {
	msg := map[string]any{"user_audio_chunk": payloadB64}
	b, _ := json.Marshal(msg)
	return b
}
