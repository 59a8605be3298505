package models

import "time"

// Contact per-contact dialing status (spec §3).
const (
	ContactPending    = "pending"
	ContactProcessing = "processing"
	ContactCalled     = "called"
	ContactFailed     = "failed"
	ContactDoNotCall  = "do-not-call"
)

// Contact is a dialable party, possibly shared across multiple campaigns.
// Invariants: Phone is unique; CallCount is monotonically non-decreasing;
// a row with Status=processing must have LockedUntil in the future or be
// reconciled by the sweeper within the grace interval (spec §4.1).
type Contact struct {
	ID              string     `json:"id" gorm:"column:id;type:varchar(36);primaryKey"`
	Phone           string     `json:"phone" gorm:"column:phone;type:varchar(32);not null;uniqueIndex"`
	Name            string     `json:"name" gorm:"column:name;type:varchar(255)"`
	Email           string     `json:"email,omitempty" gorm:"column:email;type:varchar(255)"`
	Status          string     `json:"status" gorm:"column:status;type:varchar(20);not null;default:pending;index"`
	Priority        int        `json:"priority" gorm:"column:priority;not null;default:0"`
	CallCount       int        `json:"callCount" gorm:"column:call_count;not null;default:0"`
	LastContactedAt *time.Time `json:"lastContactedAt,omitempty" gorm:"column:last_contacted_at"`
	LockedUntil     *time.Time `json:"lockedUntil,omitempty" gorm:"column:locked_until"`
	CreatedAt       time.Time  `json:"createdAt" gorm:"column:created_at;not null;<-:create"`
	UpdatedAt       time.Time  `json:"updatedAt" gorm:"column:updated_at"`
}

func (Contact) TableName() string { return "contacts" }

// CampaignContact is the explicit join row for the Contact<->Campaign
// many2many, kept explicit (rather than gorm's implicit join table) so
// ClaimNextContacts can join against it directly with hand-written SQL.
type CampaignContact struct {
	CampaignID string `gorm:"column:campaign_id;primaryKey"`
	ContactID  string `gorm:"column:contact_id;primaryKey"`
}

func (CampaignContact) TableName() string { return "campaign_contacts" }

// IsLocked reports whether the contact is currently held by an in-flight claim.
func (c *Contact) IsLocked(now time.Time) bool {
	return c.Status == ContactProcessing && c.LockedUntil != nil && c.LockedUntil.After(now)
}
