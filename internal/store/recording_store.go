package store

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/voxbridge/callengine/internal/apperrors"
	"github.com/voxbridge/callengine/internal/models"
)

// UpsertRecording creates or updates a Recording by its provider-assigned
// id, so repeated recording-status callbacks for the same artifact don't
// create duplicate rows.
func (s *gormStore) UpsertRecording(ctx context.Context, r *models.Recording) error {
	if r.ID == "" {
		return apperrors.New(apperrors.KindInvalidInput, "store.UpsertRecording", nil)
	}
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	err := s.db_(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "url", "duration_sec", "updated_at"}),
	}).Create(r).Error
	if err != nil {
		return apperrors.New(apperrors.KindInternal, "store.UpsertRecording", err)
	}
	return nil
}

func (s *gormStore) ListRecordings(ctx context.Context, callID string) ([]models.Recording, error) {
	var out []models.Recording
	if err := s.db_(ctx).Where("call_id = ?", callID).Order("created_at asc").Find(&out).Error; err != nil {
		return nil, apperrors.New(apperrors.KindInternal, "store.ListRecordings", err)
	}
	return out, nil
}

func (s *gormStore) GetRecording(ctx context.Context, id string) (*models.Recording, error) {
	var r models.Recording
	if err := s.db_(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, wrapNotFound("store.GetRecording", err)
	}
	return &r, nil
}
