package models

import "time"

// Call lifecycle states (spec §3). Terminal states are sinks — no edge
// leaves them (§8 invariant 4).
const (
	CallInitiated  = "initiated"
	CallRinging    = "ringing"
	CallInProgress = "in-progress"
	CallCompleted  = "completed"
	CallBusy       = "busy"
	CallFailed     = "failed"
	CallNoAnswer   = "no-answer"
	CallCanceled   = "canceled"
)

// TerminalCallStates is the sink set used by invariant checks and by the
// Engine's outcome handler to decide when a call has left the in-flight set.
var TerminalCallStates = map[string]bool{
	CallCompleted: true,
	CallBusy:      true,
	CallFailed:    true,
	CallNoAnswer:  true,
	CallCanceled:  true,
}

func IsTerminalCallState(state string) bool { return TerminalCallStates[state] }

// AnsweredBy classification (spec §3).
const (
	AnsweredByHuman           = "human"
	AnsweredByMachineStart    = "machine_start"
	AnsweredByMachineEndBeep  = "machine_end_beep"
	AnsweredByMachineEndSilence = "machine_end_silence"
	AnsweredByFax             = "fax"
	AnsweredByUnknown         = "unknown"
)

// Call's identity is the provider call id (spec §3): Twilio CallSid, Vonage
// UUID, etc. — assigned by the Gateway at CreateCall time, never generated
// locally.
type Call struct {
	ID             string  `json:"id" gorm:"column:id;type:varchar(64);primaryKey"`
	CampaignID     *string `json:"campaignId,omitempty" gorm:"column:campaign_id;type:varchar(36);index"`
	ContactID      *string `json:"contactId,omitempty" gorm:"column:contact_id;type:varchar(36);index"`
	State          string  `json:"state" gorm:"column:state;type:varchar(20);not null;default:initiated;index"`
	Direction      string  `json:"direction" gorm:"column:direction;type:varchar(16);not null;default:outbound"`
	To             string  `json:"to" gorm:"column:to_number;type:varchar(32)"`
	From           string  `json:"from" gorm:"column:from_number;type:varchar(32)"`

	CreatedAt  time.Time  `json:"createdAt" gorm:"column:created_at;not null;<-:create"`
	AnsweredAt *time.Time `json:"answeredAt,omitempty" gorm:"column:answered_at"`
	EndedAt    *time.Time `json:"endedAt,omitempty" gorm:"column:ended_at"`
	DurationSec int       `json:"durationSec" gorm:"column:duration_sec;not null;default:0"`

	ConversationID string `json:"conversationId,omitempty" gorm:"column:conversation_id;type:varchar(64)"`
	AnsweredBy     string `json:"answeredBy,omitempty" gorm:"column:answered_by;type:varchar(24)"`
	TerminatedBy   string `json:"terminatedBy,omitempty" gorm:"column:terminated_by;type:varchar(32)"`
	TerminatedAt   *time.Time `json:"terminatedAt,omitempty" gorm:"column:terminated_at"`

	TranscriptRef string `json:"transcriptRef,omitempty" gorm:"column:transcript_ref;type:varchar(64)"`
}

func (Call) TableName() string { return "calls" }

// IsTerminal reports whether the call has reached a sink state.
func (c *Call) IsTerminal() bool { return IsTerminalCallState(c.State) }
