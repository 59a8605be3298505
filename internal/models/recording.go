package models

import "time"

const (
	RecordingPending   = "pending"
	RecordingAvailable = "available"
	RecordingFailed    = "failed"
)

// Recording is one provider recording artifact for a Call. A Call may have
// zero or more (e.g. one per leg, or a retried recording), hence a
// dedicated table rather than a single field on Call (spec §3).
type Recording struct {
	ID          string    `json:"id" gorm:"column:id;type:varchar(64);primaryKey"`
	CallID      string    `json:"callId" gorm:"column:call_id;type:varchar(64);not null;index"`
	Status      string    `json:"status" gorm:"column:status;type:varchar(16);not null;default:pending"`
	URL         string    `json:"url,omitempty" gorm:"column:url;type:text"`
	DurationSec int       `json:"durationSec" gorm:"column:duration_sec;not null;default:0"`
	CreatedAt   time.Time `json:"createdAt" gorm:"column:created_at;not null;<-:create"`
	UpdatedAt   time.Time `json:"updatedAt" gorm:"column:updated_at"`
}

func (Recording) TableName() string { return "recordings" }
