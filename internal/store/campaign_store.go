package store

import (
	"context"
	"time"

	"github.com/voxbridge/callengine/internal/apperrors"
	"github.com/voxbridge/callengine/internal/models"
)

func (s *gormStore) CreateCampaign(ctx context.Context, c *models.Campaign) error {
	if c.ID == "" {
		c.ID = newID()
	}
	if c.Status == "" {
		c.Status = models.CampaignDraft
	}
	if err := s.db_(ctx).Create(c).Error; err != nil {
		return apperrors.New(apperrors.KindInternal, "store.CreateCampaign", err)
	}
	s.logger.Infow("created campaign", "campaignId", c.ID, "name", c.Name)
	return nil
}

func (s *gormStore) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	var c models.Campaign
	if err := s.db_(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, wrapNotFound("store.GetCampaign", err)
	}
	return &c, nil
}

func (s *gormStore) ListCampaigns(ctx context.Context) ([]models.Campaign, error) {
	var out []models.Campaign
	if err := s.db_(ctx).Order("created_at desc").Find(&out).Error; err != nil {
		return nil, apperrors.New(apperrors.KindInternal, "store.ListCampaigns", err)
	}
	return out, nil
}

func (s *gormStore) UpdateCampaign(ctx context.Context, c *models.Campaign) error {
	result := s.db_(ctx).Model(&models.Campaign{}).Where("id = ?", c.ID).Updates(c)
	if result.Error != nil {
		return apperrors.New(apperrors.KindInternal, "store.UpdateCampaign", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.KindNotFound, "store.UpdateCampaign", nil)
	}
	return nil
}

func (s *gormStore) DeleteCampaign(ctx context.Context, id string) error {
	if err := s.db_(ctx).Where("id = ?", id).Delete(&models.Campaign{}).Error; err != nil {
		return apperrors.New(apperrors.KindInternal, "store.DeleteCampaign", err)
	}
	return nil
}

func (s *gormStore) SetCampaignStatus(ctx context.Context, id, status string) error {
	result := s.db_(ctx).Model(&models.Campaign{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now()})
	if result.Error != nil {
		return apperrors.New(apperrors.KindInternal, "store.SetCampaignStatus", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.KindNotFound, "store.SetCampaignStatus", nil)
	}
	s.logger.Infow("campaign status changed", "campaignId", id, "status", status)
	return nil
}

// ApplyCampaignStats adds delta to the campaign's rolling counters using a
// single UPDATE with column-relative expressions, avoiding a read-modify-
// write race on concurrent cycle completions.
func (s *gormStore) ApplyCampaignStats(ctx context.Context, id string, delta CampaignStatsDelta) error {
	result := s.db_(ctx).Model(&models.Campaign{}).Where("id = ?", id).Updates(map[string]any{
		"stats_calls_placed":    gormExpr("stats_calls_placed + ?", delta.CallsPlaced),
		"stats_calls_answered":  gormExpr("stats_calls_answered + ?", delta.CallsAnswered),
		"stats_calls_completed": gormExpr("stats_calls_completed + ?", delta.CallsCompleted),
		"stats_calls_failed":    gormExpr("stats_calls_failed + ?", delta.CallsFailed),
		"updated_at":            time.Now(),
	})
	if result.Error != nil {
		return apperrors.New(apperrors.KindInternal, "store.ApplyCampaignStats", result.Error)
	}
	return nil
}

func (s *gormStore) ListActiveCampaignIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db_(ctx).Model(&models.Campaign{}).
		Where("status = ?", models.CampaignActive).
		Pluck("id", &ids).Error; err != nil {
		return nil, apperrors.New(apperrors.KindInternal, "store.ListActiveCampaignIDs", err)
	}
	return ids, nil
}
