// Package store provides durable persistence for campaigns, contacts,
// calls, call events, transcripts, and recordings, plus the atomic
// primitives the campaign engine needs for linearizable contact claiming.
//
// Call contexts in the teacher's sense — rows that async provider webhooks
// may reference well after a call's media stream has ended — are never
// deleted during the call lifecycle, only transitioned through statuses.
// The same discipline applies here to Call, CallEvent, and Transcript rows.
package store

import (
	"context"
	"time"

	"github.com/voxbridge/callengine/internal/models"
)

// ContactOutcome is the terminal classification FinalizeContact applies,
// derived by callers from the Call's final state and terminatedBy tag
// (spec §7 contact outcome mapping).
type ContactOutcome string

const (
	OutcomeCalled ContactOutcome = "called"
	OutcomeFailed ContactOutcome = "failed"
)

// CampaignStatsDelta accumulates counters to add atomically to a
// Campaign's rolling stats.
type CampaignStatsDelta struct {
	CallsPlaced    int
	CallsAnswered  int
	CallsCompleted int
	CallsFailed    int
	DurationSec    int
}

// CallFilter narrows ListCalls.
type CallFilter struct {
	CampaignID   string
	ContactID    string
	NonTerminal  bool
	Limit        int
	Offset       int
}

// Store is the full persistence contract (spec §3, §4.1).
type Store interface {
	// Campaigns
	CreateCampaign(ctx context.Context, c *models.Campaign) error
	GetCampaign(ctx context.Context, id string) (*models.Campaign, error)
	ListCampaigns(ctx context.Context) ([]models.Campaign, error)
	UpdateCampaign(ctx context.Context, c *models.Campaign) error
	DeleteCampaign(ctx context.Context, id string) error
	SetCampaignStatus(ctx context.Context, id, status string) error
	ApplyCampaignStats(ctx context.Context, id string, delta CampaignStatsDelta) error
	ListActiveCampaignIDs(ctx context.Context) ([]string, error)

	// Contacts
	AddContactsToCampaign(ctx context.Context, campaignID string, contacts []*models.Contact) error
	GetContact(ctx context.Context, id string) (*models.Contact, error)
	// ClaimNextContacts atomically reserves up to n pending, unlocked
	// contacts for campaignID, ordered by (priority desc, createdAt asc).
	// Linearizable against concurrent callers (spec §8 invariant 1).
	ClaimNextContacts(ctx context.Context, campaignID string, n int, lockTTL time.Duration) ([]models.Contact, error)
	// FinalizeContact transitions a claimed contact to its terminal
	// per-cycle status and clears the lock (spec §4.1).
	FinalizeContact(ctx context.Context, contactID string, outcome ContactOutcome) error
	// ReleaseExpiredLocks reverts contacts stuck in "processing" past
	// graceTTL back to "pending" and decrements callCount, unless an
	// open Call still references them (spec §4.1). Returns the count
	// released.
	ReleaseExpiredLocks(ctx context.Context, graceTTL time.Duration) (int, error)
	// HasPendingContacts reports whether campaignID still has any
	// pending, unlocked contact — used by the Engine to decide when a
	// campaign can transition to completed.
	HasPendingContacts(ctx context.Context, campaignID string) (bool, error)

	// Calls
	CreateCall(ctx context.Context, call *models.Call) error
	GetCall(ctx context.Context, id string) (*models.Call, error)
	ListCalls(ctx context.Context, filter CallFilter) ([]models.Call, error)
	// UpdateCallState transitions Call.State, refusing the update if the
	// current state is already terminal (spec §8 invariant 4).
	UpdateCallState(ctx context.Context, id, state string, at time.Time) error
	SetAnsweredBy(ctx context.Context, id, answeredBy string, answeredAt time.Time) error
	// SetTerminatedByOnce performs the write-once update described by
	// spec §4.6 rule 4: it only succeeds (rows affected = 1) if
	// terminated_by is currently empty.
	SetTerminatedByOnce(ctx context.Context, id, tag string, at time.Time) (bool, error)
	// ForceTerminatedBy unconditionally overwrites terminatedBy; reserved
	// for the Arbiter's amd_machine and api_request dominance overrides
	// (spec §4.6 rules 1-2).
	ForceTerminatedBy(ctx context.Context, id, tag string, at time.Time) error
	FinalizeCall(ctx context.Context, id, state string, endedAt time.Time, durationSec int) error
	SetConversationID(ctx context.Context, id, conversationID string) error

	// CallEvents
	AppendCallEvent(ctx context.Context, e *models.CallEvent) error
	ListCallEvents(ctx context.Context, callID string) ([]models.CallEvent, error)

	// Transcript
	AppendUtterance(ctx context.Context, callID string, u models.Utterance) error
	GetTranscript(ctx context.Context, callID string) (*models.Transcript, error)
	FreezeTranscript(ctx context.Context, callID string) error

	// Recordings
	UpsertRecording(ctx context.Context, r *models.Recording) error
	ListRecordings(ctx context.Context, callID string) ([]models.Recording, error)
	GetRecording(ctx context.Context, id string) (*models.Recording, error)
}
