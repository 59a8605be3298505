package store

import (
	"context"
	"time"

	"github.com/voxbridge/callengine/internal/apperrors"
	"github.com/voxbridge/callengine/internal/models"
)

// AppendCallEvent assigns the next SeqNo for the call under the database's
// row lock (via a single INSERT ... SELECT), keeping the append-only log
// strictly ordered per callId (spec §3 invariant).
func (s *gormStore) AppendCallEvent(ctx context.Context, e *models.CallEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	err := s.db_(ctx).Exec(`
		INSERT INTO call_events (call_id, seq_no, type, source, payload, created_at)
		SELECT ?, COALESCE(MAX(seq_no), 0) + 1, ?, ?, ?, ?
		FROM call_events WHERE call_id = ?`,
		e.CallID, e.Type, e.Source, e.Payload, e.CreatedAt, e.CallID,
	).Error
	if err != nil {
		return apperrors.New(apperrors.KindInternal, "store.AppendCallEvent", err)
	}
	return nil
}

func (s *gormStore) ListCallEvents(ctx context.Context, callID string) ([]models.CallEvent, error) {
	var out []models.CallEvent
	if err := s.db_(ctx).Where("call_id = ?", callID).Order("seq_no asc").Find(&out).Error; err != nil {
		return nil, apperrors.New(apperrors.KindInternal, "store.ListCallEvents", err)
	}
	return out, nil
}
