package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/robinjoseph08/golib/logger"
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

func TestCreateAndGet(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	session, err := svc.Create(ctx, "user-1", time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)

	got, err := svc.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
}

func TestGet_Expired(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	session, err := svc.Create(ctx, "user-1", -time.Hour)
	require.NoError(t, err)

	_, err = svc.Get(ctx, session.ID)
	assert.Error(t, err)
}

func TestDeleteExpired(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "user-1", -time.Hour)
	require.NoError(t, err)
	live, err := svc.Create(ctx, "user-2", time.Hour)
	require.NoError(t, err)

	n, err := svc.deleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = svc.Get(ctx, live.ID)
	assert.NoError(t, err)
}

func TestRunSweeper_StopsOnContextCancel(t *testing.T) {
	svc := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		svc.RunSweeper(ctx, 10*time.Millisecond, logger.NewWithLevel("error"))
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
}
