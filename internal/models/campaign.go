package models

import "time"

// Campaign lifecycle states (spec §3).
const (
	CampaignDraft     = "draft"
	CampaignActive    = "active"
	CampaignPaused    = "paused"
	CampaignCompleted = "completed"
	CampaignCancelled = "cancelled"
)

// CampaignSettings holds the per-campaign dialing parameters. Defaults come
// from config (spec §6.5): callDelayMs=5000, maxConcurrentCalls=5.
type CampaignSettings struct {
	CallDelayMs        int    `json:"callDelayMs"`
	MaxConcurrentCalls int    `json:"maxConcurrentCalls"`
	RetryCount         int    `json:"retryCount"`
	RetryDelayMs       int    `json:"retryDelayMs"`
	DialerPrompt       string `json:"dialerPrompt,omitempty"`
	FirstMessage       string `json:"firstMessage,omitempty"`
	CallerID           string `json:"callerId,omitempty"`
}

// CampaignStats is the rolling progress counters a Campaign carries.
// Invariant: CallsPlaced >= CallsCompleted + CallsFailed at all times.
type CampaignStats struct {
	TotalContacts  int     `json:"totalContacts"`
	CallsPlaced    int     `json:"callsPlaced"`
	CallsAnswered  int     `json:"callsAnswered"`
	CallsCompleted int     `json:"callsCompleted"`
	CallsFailed    int     `json:"callsFailed"`
	AvgDurationSec float64 `json:"avgDurationSec"`
}

// Campaign is the durable record the Store owns; the Engine keeps bounded,
// process-lifetime runtime handles derived from it (spec §3 Ownership).
type Campaign struct {
	ID        string `json:"id" gorm:"column:id;type:varchar(36);primaryKey"`
	Name      string `json:"name" gorm:"column:name;type:varchar(255);not null"`
	Status    string `json:"status" gorm:"column:status;type:varchar(20);not null;default:draft;index"`
	Settings  CampaignSettings `json:"settings" gorm:"embedded;embeddedPrefix:settings_"`
	Stats     CampaignStats    `json:"stats" gorm:"embedded;embeddedPrefix:stats_"`
	CreatedAt time.Time  `json:"createdAt" gorm:"column:created_at;not null;<-:create"`
	UpdatedAt time.Time  `json:"updatedAt" gorm:"column:updated_at"`
}

func (Campaign) TableName() string { return "campaigns" }

// RecordPlacedCall advances CallsPlaced by one; it does not check the §3
// stats invariant.
func (c *Campaign) RecordPlacedCall() {
	c.Stats.CallsPlaced++
}

// IsTerminal reports whether the campaign has left the schedulable set.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignCompleted || c.Status == CampaignCancelled
}
