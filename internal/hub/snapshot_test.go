package hub_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/voxbridge/callengine/internal/eventbus"
	"github.com/voxbridge/callengine/internal/hub"
	"github.com/voxbridge/callengine/internal/logging"
	"github.com/voxbridge/callengine/internal/models"
	"github.com/voxbridge/callengine/internal/store"
)

func newSnapshotStore(t *testing.T) store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, store.AutoMigrate(db))
	return store.New(db, logging.NewNop())
}

func TestStoreSnapshotter_CallUpdatesReturnsOnlyNonTerminal(t *testing.T) {
	s := newSnapshotStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateCall(ctx, &models.Call{ID: "CA-live", State: models.CallInProgress}))
	require.NoError(t, s.CreateCall(ctx, &models.Call{ID: "CA-done", State: models.CallCompleted}))

	snap := hub.NewStoreSnapshotter(s)
	out, err := snap.Snapshot(ctx, eventbus.TopicCallUpdates)
	require.NoError(t, err)

	calls, ok := out.([]models.Call)
	require.True(t, ok)
	require.Len(t, calls, 1)
	require.Equal(t, "CA-live", calls[0].ID)
}

func TestStoreSnapshotter_PerCallTopicReturnsThatCall(t *testing.T) {
	s := newSnapshotStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateCall(ctx, &models.Call{ID: "CA1", State: models.CallRinging}))

	snap := hub.NewStoreSnapshotter(s)
	out, err := snap.Snapshot(ctx, "call.CA1")
	require.NoError(t, err)

	call, ok := out.(*models.Call)
	require.True(t, ok)
	require.Equal(t, "CA1", call.ID)
}

func TestStoreSnapshotter_UnknownTopicReturnsNil(t *testing.T) {
	s := newSnapshotStore(t)
	snap := hub.NewStoreSnapshotter(s)
	out, err := snap.Snapshot(context.Background(), "nonsense")
	require.NoError(t, err)
	require.Nil(t, out)
}
