package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/voxbridge/callengine/internal/apperrors"
	"github.com/voxbridge/callengine/internal/models"
)

func (s *gormStore) AddContactsToCampaign(ctx context.Context, campaignID string, contacts []*models.Contact) error {
	if len(contacts) == 0 {
		return nil
	}
	return s.db_(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range contacts {
			if c.ID == "" {
				c.ID = newID()
			}
			if c.Status == "" {
				c.Status = models.ContactPending
			}
			if err := tx.Clauses(clauseOnConflictPhone()).Create(c).Error; err != nil {
				return apperrors.New(apperrors.KindInternal, "store.AddContactsToCampaign", err)
			}
			// The phone conflict above may have left an existing row's id
			// in place instead of c.ID — re-resolve by phone so the join
			// row always points at the authoritative contact.
			var resolvedID string
			if err := tx.Model(&models.Contact{}).Where("phone = ?", c.Phone).Pluck("id", &resolvedID).Error; err != nil {
				return apperrors.New(apperrors.KindInternal, "store.AddContactsToCampaign", err)
			}
			link := &models.CampaignContact{CampaignID: campaignID, ContactID: resolvedID}
			if err := tx.Clauses(clauseOnConflictJoin()).Create(link).Error; err != nil {
				return apperrors.New(apperrors.KindInternal, "store.AddContactsToCampaign", err)
			}
		}
		return nil
	})
}

func (s *gormStore) GetContact(ctx context.Context, id string) (*models.Contact, error) {
	var c models.Contact
	if err := s.db_(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, wrapNotFound("store.GetContact", err)
	}
	return &c, nil
}

// ClaimNextContacts is the linearizable claim at the heart of spec §8
// invariant 1. It selects candidate ids first (read), then attempts an
// atomic conditional UPDATE per id; a row only counts as claimed if the
// UPDATE's RowsAffected is 1, which only happens if no concurrent caller
// claimed it first — the same "UPDATE ... WHERE status IN (...)" pattern
// the teacher's CallContext Store uses for Claim, generalized to a batch.
func (s *gormStore) ClaimNextContacts(ctx context.Context, campaignID string, n int, lockTTL time.Duration) ([]models.Contact, error) {
	if n <= 0 {
		return nil, nil
	}
	now := time.Now()

	var candidateIDs []string
	err := s.db_(ctx).
		Table("contacts").
		Joins("JOIN campaign_contacts ON campaign_contacts.contact_id = contacts.id").
		Where("campaign_contacts.campaign_id = ?", campaignID).
		Where("contacts.status = ?", models.ContactPending).
		Where("contacts.call_count = 0").
		Where("contacts.locked_until IS NULL OR contacts.locked_until < ?", now).
		Order("contacts.priority DESC, contacts.created_at ASC").
		Limit(n * 3). // over-fetch: some candidates may lose the race below
		Pluck("contacts.id", &candidateIDs).Error
	if err != nil {
		return nil, apperrors.New(apperrors.KindInternal, "store.ClaimNextContacts", err)
	}

	claimedUntil := now.Add(lockTTL)
	var claimed []models.Contact
	for _, id := range candidateIDs {
		if len(claimed) >= n {
			break
		}
		result := s.db_(ctx).Model(&models.Contact{}).
			Where("id = ? AND status = ? AND (locked_until IS NULL OR locked_until < ?)", id, models.ContactPending, now).
			Updates(map[string]any{
				"status":       models.ContactProcessing,
				"locked_until": claimedUntil,
				"call_count":   gormExpr("call_count + 1"),
				"updated_at":   now,
			})
		if result.Error != nil {
			return nil, apperrors.New(apperrors.KindInternal, "store.ClaimNextContacts", result.Error)
		}
		if result.RowsAffected == 0 {
			// Lost the race to another caller, or state changed underfoot; skip.
			continue
		}
		var c models.Contact
		if err := s.db_(ctx).Where("id = ?", id).First(&c).Error; err != nil {
			return nil, apperrors.New(apperrors.KindInternal, "store.ClaimNextContacts", err)
		}
		claimed = append(claimed, c)
	}
	return claimed, nil
}

func (s *gormStore) FinalizeContact(ctx context.Context, contactID string, outcome ContactOutcome) error {
	status := models.ContactFailed
	if outcome == OutcomeCalled {
		status = models.ContactCalled
	}
	result := s.db_(ctx).Model(&models.Contact{}).
		Where("id = ?", contactID).
		Updates(map[string]any{
			"status":            status,
			"locked_until":      nil,
			"last_contacted_at": time.Now(),
			"updated_at":        time.Now(),
		})
	if result.Error != nil {
		return apperrors.New(apperrors.KindInternal, "store.FinalizeContact", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.KindNotFound, "store.FinalizeContact", nil)
	}
	return nil
}

// ReleaseExpiredLocks reverts contacts whose lock has been expired for
// longer than graceTTL back to pending, decrementing callCount to undo the
// claim-time increment, unless a Call still exists in an active state for
// that contact (spec §4.1) — that case is left for the Call's own
// lifecycle to resolve, rather than double-counting a retry.
func (s *gormStore) ReleaseExpiredLocks(ctx context.Context, graceTTL time.Duration) (int, error) {
	cutoff := time.Now().Add(-graceTTL)
	result := s.db_(ctx).Exec(`
		UPDATE contacts SET status = ?, locked_until = NULL, call_count = call_count - 1, updated_at = ?
		WHERE status = ? AND locked_until < ?
		AND NOT EXISTS (
			SELECT 1 FROM calls WHERE calls.contact_id = contacts.id AND calls.state NOT IN (?,?,?,?,?)
		)`,
		models.ContactPending, time.Now(),
		models.ContactProcessing, cutoff,
		models.CallCompleted, models.CallBusy, models.CallFailed, models.CallNoAnswer, models.CallCanceled,
	)
	if result.Error != nil {
		return 0, apperrors.New(apperrors.KindInternal, "store.ReleaseExpiredLocks", result.Error)
	}
	if result.RowsAffected > 0 {
		s.logger.Infow("released expired contact locks", "count", result.RowsAffected)
	}
	return int(result.RowsAffected), nil
}

func (s *gormStore) HasPendingContacts(ctx context.Context, campaignID string) (bool, error) {
	var count int64
	err := s.db_(ctx).
		Table("contacts").
		Joins("JOIN campaign_contacts ON campaign_contacts.contact_id = contacts.id").
		Where("campaign_contacts.campaign_id = ?", campaignID).
		Where("contacts.status = ?", models.ContactPending).
		Count(&count).Error
	if err != nil {
		return false, apperrors.New(apperrors.KindInternal, "store.HasPendingContacts", err)
	}
	return count > 0, nil
}
