package store

import (
	"context"
	"time"

	"github.com/voxbridge/callengine/internal/apperrors"
	"github.com/voxbridge/callengine/internal/models"
)

func (s *gormStore) CreateCall(ctx context.Context, call *models.Call) error {
	if call.State == "" {
		call.State = models.CallInitiated
	}
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now()
	}
	if err := s.db_(ctx).Create(call).Error; err != nil {
		return apperrors.New(apperrors.KindInternal, "store.CreateCall", err)
	}
	s.logger.Infow("created call", "callId", call.ID, "campaignId", strPtr(call.CampaignID))
	return nil
}

func (s *gormStore) GetCall(ctx context.Context, id string) (*models.Call, error) {
	var c models.Call
	if err := s.db_(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, wrapNotFound("store.GetCall", err)
	}
	return &c, nil
}

func (s *gormStore) ListCalls(ctx context.Context, filter CallFilter) ([]models.Call, error) {
	q := s.db_(ctx).Model(&models.Call{})
	if filter.CampaignID != "" {
		q = q.Where("campaign_id = ?", filter.CampaignID)
	}
	if filter.ContactID != "" {
		q = q.Where("contact_id = ?", filter.ContactID)
	}
	if filter.NonTerminal {
		q = q.Where("state NOT IN ?", terminalStateList())
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	var out []models.Call
	if err := q.Order("created_at desc").Find(&out).Error; err != nil {
		return nil, apperrors.New(apperrors.KindInternal, "store.ListCalls", err)
	}
	return out, nil
}

// UpdateCallState refuses to leave a terminal state (spec §8 invariant 4):
// the WHERE clause excludes rows already in a terminal state, so a stray
// late status callback can never resurrect a finished call.
func (s *gormStore) UpdateCallState(ctx context.Context, id, state string, at time.Time) error {
	result := s.db_(ctx).Model(&models.Call{}).
		Where("id = ? AND state NOT IN ?", id, terminalStateList()).
		Update("state", state)
	if result.Error != nil {
		return apperrors.New(apperrors.KindInternal, "store.UpdateCallState", result.Error)
	}
	// A RowsAffected of 0 means either the row wasn't found or it was
	// already terminal; both are safe to ignore at the call site (a late
	// status callback for a call that already finished).
	return nil
}

func (s *gormStore) SetAnsweredBy(ctx context.Context, id, answeredBy string, answeredAt time.Time) error {
	result := s.db_(ctx).Model(&models.Call{}).
		Where("id = ? AND answered_at IS NULL", id).
		Updates(map[string]any{"answered_by": answeredBy, "answered_at": answeredAt})
	if result.Error != nil {
		return apperrors.New(apperrors.KindInternal, "store.SetAnsweredBy", result.Error)
	}
	return nil
}

// SetTerminatedByOnce implements spec §4.6 rule 4: the Arbiter writes
// terminatedBy exactly once. The conditional WHERE makes this safe under
// concurrent signal arrival without an application-level lock.
func (s *gormStore) SetTerminatedByOnce(ctx context.Context, id, tag string, at time.Time) (bool, error) {
	result := s.db_(ctx).Model(&models.Call{}).
		Where("id = ? AND (terminated_by IS NULL OR terminated_by = '')", id).
		Updates(map[string]any{"terminated_by": tag, "terminated_at": at})
	if result.Error != nil {
		return false, apperrors.New(apperrors.KindInternal, "store.SetTerminatedByOnce", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// ForceTerminatedBy unconditionally overwrites terminatedBy, used only by
// the Arbiter for its two dominance overrides (spec §4.6 rules 1 and 2:
// amd_machine and a fresh api_request reasserting itself against a racing
// natural signal). Every other caller must use SetTerminatedByOnce.
func (s *gormStore) ForceTerminatedBy(ctx context.Context, id, tag string, at time.Time) error {
	result := s.db_(ctx).Model(&models.Call{}).
		Where("id = ?", id).
		Updates(map[string]any{"terminated_by": tag, "terminated_at": at})
	if result.Error != nil {
		return apperrors.New(apperrors.KindInternal, "store.ForceTerminatedBy", result.Error)
	}
	return nil
}

func (s *gormStore) FinalizeCall(ctx context.Context, id, state string, endedAt time.Time, durationSec int) error {
	result := s.db_(ctx).Model(&models.Call{}).
		Where("id = ? AND state NOT IN ?", id, terminalStateList()).
		Updates(map[string]any{"state": state, "ended_at": endedAt, "duration_sec": durationSec})
	if result.Error != nil {
		return apperrors.New(apperrors.KindInternal, "store.FinalizeCall", result.Error)
	}
	return nil
}

func (s *gormStore) SetConversationID(ctx context.Context, id, conversationID string) error {
	result := s.db_(ctx).Model(&models.Call{}).
		Where("id = ?", id).
		Update("conversation_id", conversationID)
	if result.Error != nil {
		return apperrors.New(apperrors.KindInternal, "store.SetConversationID", result.Error)
	}
	return nil
}

func terminalStateList() []string {
	return []string{models.CallCompleted, models.CallBusy, models.CallFailed, models.CallNoAnswer, models.CallCanceled}
}

func strPtr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
