package jobengine

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shisho/pkg/errcodes"
	"github.com/shishobooks/shisho/pkg/events"
	"github.com/shishobooks/shisho/pkg/joblogs"
	"github.com/shishobooks/shisho/pkg/jobs"
	"github.com/shishobooks/shisho/pkg/models"
)

// Factory constructs a fresh Job instance for one run, given the Job
// Record the Controller already persisted (so a per-library job type like
// the scanner can read jobRecord.LibraryID and bind itself to that
// library). The Controller calls it once per Enqueue/resume rather than
// reusing instances, so job implementations can hold task-local state on
// themselves without leaking it across runs.
type Factory func(jobRecord *models.Job) Job

// Controller owns the set of in-flight Workers and the dispatch table of
// registered job types, generalizing a single hardcoded polling loop into
// a type-indexed dispatch table keyed by job name.
type Controller struct {
	jobService    *jobs.Service
	jobLogService *joblogs.Service
	hub           *events.Hub
	log           logger.Logger

	mu       sync.Mutex
	registry map[string]Factory
	workers  map[string]*Worker
}

func NewController(jobService *jobs.Service, jobLogService *joblogs.Service, hub *events.Hub, log logger.Logger) *Controller {
	return &Controller{
		jobService:    jobService,
		jobLogService: jobLogService,
		hub:           hub,
		log:           log,
		registry:      make(map[string]Factory),
		workers:       make(map[string]*Worker),
	}
}

// Register adds a job type to the dispatch table. Call once per job type
// at startup, before RecoverAfterRestart or any Enqueue.
func (c *Controller) Register(name string, factory Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registry[name] = factory
}

// Enqueue persists a pending Job Record, constructs a Worker via the
// registered factory for name, and starts it.
func (c *Controller) Enqueue(ctx context.Context, name string, libraryID *string) (*models.Job, error) {
	c.mu.Lock()
	factory, ok := c.registry[name]
	c.mu.Unlock()
	if !ok {
		return nil, errors.Errorf("unknown job type %q", name)
	}

	jobRecord := &models.Job{
		Name:      name,
		Status:    models.JobStatusQueued,
		LibraryID: libraryID,
	}
	if err := c.jobService.CreatePending(ctx, jobRecord); err != nil {
		return nil, errors.WithStack(err)
	}

	c.start(jobRecord, factory(jobRecord))

	return jobRecord, nil
}

func (c *Controller) start(jobRecord *models.Job, job Job) {
	worker := newWorker(jobRecord, job, c.jobService, c.jobLogService, c.hub, c.log.Data(logger.Data{"job_id": jobRecord.ID, "job_name": jobRecord.Name}))

	c.mu.Lock()
	c.workers[jobRecord.ID] = worker
	c.mu.Unlock()

	go func() {
		worker.run(context.Background())
		c.mu.Lock()
		delete(c.workers, jobRecord.ID)
		c.mu.Unlock()
	}()
}

// Cancel routes a cancel command to the job's Worker if it is still
// in-process. A job that finished (or
// was never in this process, e.g. after a restart before recovery ran) has
// nothing to cancel; the caller should check the persisted status instead.
func (c *Controller) Cancel(ctx context.Context, id string) error {
	c.mu.Lock()
	worker, ok := c.workers[id]
	c.mu.Unlock()
	if !ok {
		return errcodes.NotFound("Job")
	}
	return worker.Cancel(ctx)
}

// Report lists Job Records by delegating straight to the persisted store;
// the Controller holds no separate in-memory ledger of job state beyond
// the live Workers needed to route commands.
func (c *Controller) Report(ctx context.Context, opts jobs.ListJobsOptions) ([]*models.Job, error) {
	return c.jobService.ListJobs(ctx, opts)
}

// Subscribe exposes the shared Event Fabric for lifecycle/progress
// events across every job this Controller runs.
func (c *Controller) Subscribe() (<-chan events.CoreEvent, func()) {
	return c.hub.Subscribe()
}

// IsActive reports whether the given job id currently has a live Worker.
func (c *Controller) IsActive(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.workers[id]
	return ok
}

// RecoverAfterRestart applies the restart discipline: every Job Record
// left Running from a previous process is transitioned to Failed with
// reason "host restart", unless its job type is registered as Resumable
// and it carries a non-nil save_state, in which case it is restarted and
// its Init receives the saved bytes via Resumable.LoadState.
func (c *Controller) RecoverAfterRestart(ctx context.Context) error {
	running, err := c.jobService.ListRunning(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	for _, jobRecord := range running {
		c.mu.Lock()
		factory, ok := c.registry[jobRecord.Name]
		c.mu.Unlock()

		if ok && jobRecord.SaveState != nil {
			job := factory(jobRecord)
			if _, isResumable := job.(Resumable); isResumable {
				c.log.Info("resuming job after host restart", logger.Data{"job_id": jobRecord.ID, "job_name": jobRecord.Name})
				c.start(jobRecord, job)
				continue
			}
		}

		reason := "host restart"
		if err := c.jobService.Transition(ctx, jobRecord.ID, models.JobStatusFailed, jobs.TransitionOptions{
			OutputData: &reason,
			Completed:  true,
		}); err != nil {
			c.log.Err(err).Error("failed to fail orphaned running job", logger.Data{"job_id": jobRecord.ID})
		}
	}

	return nil
}
