package models

import "time"

// CallEvent event-type taxonomy (spec §3/§4.6). Not exhaustive — the column
// is free-form to allow new signal sources without a migration.
const (
	EventCallInitiated   = "call.initiated"
	EventCallRinging     = "call.ringing"
	EventCallAnswered    = "call.answered"
	EventAMDResult       = "amd.result"
	EventMediaStart      = "media.start"
	EventMediaStop       = "media.stop"
	EventTranscriptDelta = "transcript.delta"
	EventCallCompleted   = "call.completed"
	EventTermination     = "call.terminated"
	EventTerminationSignal = "termination.signal"
)

// CallEvent is an append-only log row. Invariant: for a fixed CallID,
// SeqNo is strictly increasing and CreatedAt is non-decreasing — writers
// must never backdate or reorder (spec §8 invariant 5).
type CallEvent struct {
	ID        uint64 `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	CallID    string `json:"callId" gorm:"column:call_id;type:varchar(64);not null;index:idx_call_seq,priority:1"`
	SeqNo     int64  `json:"seqNo" gorm:"column:seq_no;not null;index:idx_call_seq,priority:2"`
	Type      string `json:"type" gorm:"column:type;type:varchar(40);not null"`
	Source    string `json:"source" gorm:"column:source;type:varchar(32);not null"`
	Payload   JSON   `json:"payload,omitempty" gorm:"column:payload;type:text"`
	CreatedAt time.Time `json:"createdAt" gorm:"column:created_at;not null;<-:create"`
}

func (CallEvent) TableName() string { return "call_events" }
