package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/voxbridge/callengine/internal/apperrors"
	"github.com/voxbridge/callengine/internal/ids"
	"github.com/voxbridge/callengine/internal/logging"
	"github.com/voxbridge/callengine/internal/models"
)

// gormStore is the Postgres-backed (or sqlite, in tests) implementation of
// Store, following the teacher's connector-plus-logger shape.
type gormStore struct {
	db     *gorm.DB
	logger logging.Logger
}

// New wraps an already-opened gorm.DB. Callers are responsible for the
// dialector (postgres in production, sqlite in tests).
func New(db *gorm.DB, logger logging.Logger) Store {
	return &gormStore{db: db, logger: logger}
}

// AutoMigrate creates/updates the schema for every model this Store owns.
// Used in place of a separate migration tool (see DESIGN.md).
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Campaign{},
		&models.Contact{},
		&models.CampaignContact{},
		&models.Call{},
		&models.CallEvent{},
		&models.Transcript{},
		&models.Recording{},
	)
}

func (s *gormStore) db_(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func wrapNotFound(op string, err error) error {
	if err == gorm.ErrRecordNotFound {
		return apperrors.New(apperrors.KindNotFound, op, err)
	}
	return apperrors.New(apperrors.KindInternal, op, err)
}

func newID() string { return ids.New() }

func gormExpr(sql string, args ...any) clause.Expr {
	return gorm.Expr(sql, args...)
}
