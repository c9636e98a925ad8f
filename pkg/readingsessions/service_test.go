package readingsessions

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/shishobooks/shisho/pkg/config"
	"github.com/shishobooks/shisho/pkg/database"
	"github.com/shishobooks/shisho/pkg/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := config.NewForTest(t.TempDir())
	db, err := database.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = migrations.BringUpToDate(context.Background(), db, false)
	require.NoError(t, err)

	return NewService(db)
}

func newID(t *testing.T) string {
	t.Helper()
	id, err := uuid.NewRandom()
	require.NoError(t, err)
	return id.String()
}

func TestUpsertProgress_RequiresPageOrEpubcfi(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.UpsertProgress(context.Background(), newID(t), newID(t), UpsertProgressOptions{})
	assert.Error(t, err)
}

func TestUpsertProgress_CreatesThenUpdatesInPlace(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	userID, mediaID := newID(t), newID(t)

	first, err := svc.UpsertProgress(ctx, userID, mediaID, UpsertProgressOptions{Page: pointerutil.Int(1)})
	require.NoError(t, err)

	second, err := svc.UpsertProgress(ctx, userID, mediaID, UpsertProgressOptions{Page: pointerutil.Int(5)})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "second report must update the same active session, not create a new one")
	assert.Equal(t, 5, *second.Page)
}

func TestComplete_ReplacesActiveWithFinished(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	userID, mediaID := newID(t), newID(t)

	_, err := svc.UpsertProgress(ctx, userID, mediaID, UpsertProgressOptions{Page: pointerutil.Int(1)})
	require.NoError(t, err)

	finished, err := svc.Complete(ctx, userID, mediaID)
	require.NoError(t, err)
	assert.Equal(t, userID, finished.UserID)

	_, err = svc.GetActive(ctx, userID, mediaID)
	assert.Error(t, err, "the active session must be gone once finished")
}

func TestComplete_NoActiveSessionIsNotFound(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Complete(context.Background(), newID(t), newID(t))
	assert.Error(t, err)
}
