package store_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/voxbridge/callengine/internal/logging"
	"github.com/voxbridge/callengine/internal/store"
)

func newMockStore(t *testing.T) (store.Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn: sqlDB,
	}), &gorm.Config{})
	require.NoError(t, err)
	return store.New(db, logging.NewNop()), mock
}

// TestSetTerminatedByOnce_SQL asserts the write-once UPDATE only touches
// rows with an unset terminated_by (spec §4.6 rule 4), at the exact-SQL
// level rather than through a live database.
func TestSetTerminatedByOnce_SQL(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "calls" SET`)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "call-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := s.SetTerminatedByOnce(context.Background(), "call-1", "amd_machine", time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestSetTerminatedByOnce_SQL_AlreadySet confirms a zero-rows-affected
// result (the row's terminated_by was already non-empty) is reported as
// ok=false without an error.
func TestSetTerminatedByOnce_SQL_AlreadySet(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "calls" SET`)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "call-2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ok, err := s.SetTerminatedByOnce(context.Background(), "call-2", "user", time.Now())
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}
