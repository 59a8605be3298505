package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/voxbridge/callengine/internal/apperrors"
	"github.com/voxbridge/callengine/internal/models"
)

// AppendUtterance appends u to callID's transcript, creating the row on
// first use. Rejects the write once the transcript has been frozen (spec
// §3/§8 invariant 6) rather than silently reordering or discarding.
func (s *gormStore) AppendUtterance(ctx context.Context, callID string, u models.Utterance) error {
	return s.db_(ctx).Transaction(func(tx *gorm.DB) error {
		var t models.Transcript
		err := tx.Where("call_id = ?", callID).First(&t).Error
		switch {
		case err == gorm.ErrRecordNotFound:
			t = models.Transcript{ID: newID(), CallID: callID, CreatedAt: time.Now()}
		case err != nil:
			return apperrors.New(apperrors.KindInternal, "store.AppendUtterance", err)
		case t.Frozen:
			return apperrors.New(apperrors.KindConflict, "store.AppendUtterance", nil)
		}
		t.Utterances = append(t.Utterances, u)
		t.UpdatedAt = time.Now()
		if err := tx.Save(&t).Error; err != nil {
			return apperrors.New(apperrors.KindInternal, "store.AppendUtterance", err)
		}
		return nil
	})
}

func (s *gormStore) GetTranscript(ctx context.Context, callID string) (*models.Transcript, error) {
	var t models.Transcript
	if err := s.db_(ctx).Where("call_id = ?", callID).First(&t).Error; err != nil {
		return nil, wrapNotFound("store.GetTranscript", err)
	}
	return &t, nil
}

// FreezeTranscript marks callID's transcript immutable. Called by the
// Arbiter once the owning Call reaches a terminal state; late utterances
// after this point are dropped by the caller rather than appended.
func (s *gormStore) FreezeTranscript(ctx context.Context, callID string) error {
	result := s.db_(ctx).Model(&models.Transcript{}).
		Where("call_id = ?", callID).
		Update("frozen", true)
	if result.Error != nil {
		return apperrors.New(apperrors.KindInternal, "store.FreezeTranscript", result.Error)
	}
	return nil
}
