package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shisho/pkg/config"
	"github.com/shishobooks/shisho/pkg/database"
	"github.com/shishobooks/shisho/pkg/events"
	"github.com/shishobooks/shisho/pkg/joblogs"
	"github.com/shishobooks/shisho/pkg/jobengine"
	"github.com/shishobooks/shisho/pkg/jobs"
	"github.com/shishobooks/shisho/pkg/libraries"
	"github.com/shishobooks/shisho/pkg/migrations"
	"github.com/shishobooks/shisho/pkg/models"
	"github.com/shishobooks/shisho/pkg/scanner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type testContext struct {
	ctx            context.Context
	db             *bun.DB
	jobService     *jobs.Service
	libraryService *libraries.Service
	controller     *jobengine.Controller
}

func newTestContext(t *testing.T) *testContext {
	t.Helper()
	cfg := config.NewForTest(t.TempDir())
	db, err := database.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = migrations.BringUpToDate(context.Background(), db, false)
	require.NoError(t, err)

	jobService := jobs.NewService(db)
	jobLogService := joblogs.NewService(db)
	hub := events.NewHub()
	controller := jobengine.NewController(jobService, jobLogService, hub, logger.NewWithLevel("error"))

	// noopJob plans no tasks and completes as soon as it is dispatched;
	// registering it lets the Scheduler's Enqueue call succeed without
	// dispatch errors when a test exercises the full fire path.
	controller.Register(scanner.JobName, func(j *models.Job) jobengine.Job { return noopJob{} })

	return &testContext{
		ctx:            context.Background(),
		db:             db,
		jobService:     jobService,
		libraryService: libraries.NewService(db),
		controller:     controller,
	}
}

func (tc *testContext) createLibrary(t *testing.T, path string) *models.Library {
	t.Helper()
	cfg := models.DefaultLibraryConfig()
	lib := &models.Library{Name: "lib", Path: path, ConfigParsed: &cfg}
	require.NoError(t, tc.libraryService.Create(tc.ctx, lib))
	return lib
}

type noopJob struct{}

func (noopJob) Name() string { return scanner.JobName }
func (noopJob) Init(ctx context.Context, wctx *jobengine.WorkerCtx) (*jobengine.InitResult, error) {
	return &jobengine.InitResult{}, nil
}
func (noopJob) ExecuteTask(ctx context.Context, wctx *jobengine.WorkerCtx, task jobengine.Task) error {
	return nil
}
func (noopJob) Finalize(ctx context.Context, wctx *jobengine.WorkerCtx) ([]byte, error) {
	return nil, nil
}

func TestScheduler_SkipsWhenNoLibraries(t *testing.T) {
	tc := newTestContext(t)
	s := New(tc.controller, tc.jobService, tc.libraryService, logger.NewWithLevel("error"), nil)

	s.fire(Schedule{Interval: time.Hour})

	allJobs, err := tc.jobService.ListJobs(tc.ctx, jobs.ListJobsOptions{})
	require.NoError(t, err)
	assert.Empty(t, allJobs)
}

func TestScheduler_SkipsWhenScanJobAlreadyActive(t *testing.T) {
	tc := newTestContext(t)
	lib := tc.createLibrary(t, t.TempDir())

	existing := &models.Job{Name: scanner.JobName, Status: models.JobStatusQueued, LibraryID: &lib.ID}
	require.NoError(t, tc.jobService.CreatePending(tc.ctx, existing))

	s := New(tc.controller, tc.jobService, tc.libraryService, logger.NewWithLevel("error"), nil)
	s.fire(Schedule{Interval: time.Hour})

	allJobs, err := tc.jobService.ListJobs(tc.ctx, jobs.ListJobsOptions{})
	require.NoError(t, err)
	assert.Len(t, allJobs, 1, "no second job should be enqueued while one is active")
}

func TestScheduler_CreatesJobWhenNoneActive(t *testing.T) {
	tc := newTestContext(t)
	lib := tc.createLibrary(t, t.TempDir())

	s := New(tc.controller, tc.jobService, tc.libraryService, logger.NewWithLevel("error"), nil)
	s.fire(Schedule{Interval: time.Hour})

	allJobs, err := tc.jobService.ListJobs(tc.ctx, jobs.ListJobsOptions{})
	require.NoError(t, err)
	require.Len(t, allJobs, 1)
	assert.Equal(t, lib.ID, *allJobs[0].LibraryID)
	assert.Equal(t, scanner.JobName, allJobs[0].Name)
}

func TestScheduler_RespectsIncludedLibraryIDs(t *testing.T) {
	tc := newTestContext(t)
	tc.createLibrary(t, t.TempDir())
	included := tc.createLibrary(t, t.TempDir())

	s := New(tc.controller, tc.jobService, tc.libraryService, logger.NewWithLevel("error"), nil)
	s.fire(Schedule{Interval: time.Hour, IncludedLibraryIDs: []string{included.ID}})

	allJobs, err := tc.jobService.ListJobs(tc.ctx, jobs.ListJobsOptions{})
	require.NoError(t, err)
	require.Len(t, allJobs, 1)
	assert.Equal(t, included.ID, *allJobs[0].LibraryID)
}

func TestScheduler_StartAndStop(t *testing.T) {
	tc := newTestContext(t)
	tc.createLibrary(t, t.TempDir())

	s := New(tc.controller, tc.jobService, tc.libraryService, logger.NewWithLevel("error"), []Schedule{
		{Interval: 10 * time.Millisecond},
	})
	s.Start()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		allJobs, err := tc.jobService.ListJobs(tc.ctx, jobs.ListJobsOptions{})
		require.NoError(t, err)
		if len(allJobs) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()

	allJobs, err := tc.jobService.ListJobs(tc.ctx, jobs.ListJobsOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, allJobs, "scheduler should have enqueued at least one scan job before stopping")
}
