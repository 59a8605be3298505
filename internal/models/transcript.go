package models

import "time"

const (
	SpeakerAgent = "agent"
	SpeakerUser  = "user"
)

// Utterance is one turn within a Transcript. Stored as part of the
// Transcript's JSON body rather than a child table — transcripts are
// appended to at a high rate during an active call and are small enough
// per-call that a single-row read/replace is simpler than a child table
// with its own locking (mirrors the teacher's preference for embedding
// small, call-scoped structures directly on the owning row).
type Utterance struct {
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Final     bool      `json:"final"`
}

// Transcript is append-only while the owning Call is non-terminal, then
// frozen (spec §3/§8 invariant 6): once the Call reaches a terminal state,
// Store.AppendUtterance must reject further writes.
type Transcript struct {
	ID        string      `json:"id" gorm:"column:id;type:varchar(64);primaryKey"`
	CallID    string      `json:"callId" gorm:"column:call_id;type:varchar(64);not null;uniqueIndex"`
	Utterances []Utterance `json:"utterances" gorm:"column:utterances;serializer:json"`
	Analysis  JSON        `json:"analysis,omitempty" gorm:"column:analysis;type:text"`
	Frozen    bool        `json:"frozen" gorm:"column:frozen;not null;default:false"`
	CreatedAt time.Time   `json:"createdAt" gorm:"column:created_at;not null;<-:create"`
	UpdatedAt time.Time   `json:"updatedAt" gorm:"column:updated_at"`
}

func (Transcript) TableName() string { return "transcripts" }
