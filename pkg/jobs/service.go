// Package jobs persists the Job Record: the lifecycle row a
// Controller creates on enqueue and transitions as a Worker runs, as a
// thin service type over bun.
package jobs

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/shishobooks/shisho/pkg/errcodes"
	"github.com/shishobooks/shisho/pkg/models"
	"github.com/uptrace/bun"
)

type RetrieveJobOptions struct {
	ID string
}

// ListJobsOptions filters the job list; Statuses with zero entries means
// "any status".
type ListJobsOptions struct {
	Limit     *int
	Offset    *int
	Statuses  []string
	LibraryID *string

	includeTotal bool
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

// CreatePending inserts a new Job Record in the Queued state, the first
// step of handling an enqueue request before any worker is started.
func (svc *Service) CreatePending(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		id, err := uuid.NewRandom()
		if err != nil {
			return errors.WithStack(err)
		}
		job.ID = id.String()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}

	_, err := svc.db.
		NewInsert().
		Model(job).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// TransitionOptions carries the fields a state transition may update
// beyond Status: save_state and output_data.
type TransitionOptions struct {
	SaveState  *string
	OutputData *string
	MsElapsed  *int64
	Completed  bool
}

// Transition persists a Job Record's new status (and, for resumable jobs,
// its opaque save_state) before any externally visible effect.
func (svc *Service) Transition(ctx context.Context, id string, status string, opts TransitionOptions) error {
	job := &models.Job{ID: id, Status: status}
	columns := []string{"status"}

	if opts.SaveState != nil {
		job.SaveState = opts.SaveState
		columns = append(columns, "save_state")
	}
	if opts.OutputData != nil {
		job.OutputData = opts.OutputData
		columns = append(columns, "output_data")
	}
	if opts.MsElapsed != nil {
		job.MsElapsed = *opts.MsElapsed
		columns = append(columns, "ms_elapsed")
	}
	if opts.Completed {
		now := time.Now()
		job.CompletedAt = &now
		columns = append(columns, "completed_at")
	}

	res, err := svc.db.
		NewUpdate().
		Model(job).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if n == 0 {
		return errcodes.NotFound("Job")
	}

	return nil
}

func (svc *Service) RetrieveJob(ctx context.Context, opts RetrieveJobOptions) (*models.Job, error) {
	job := &models.Job{}

	err := svc.db.
		NewSelect().
		Model(job).
		Where("j.id = ?", opts.ID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Job")
		}
		return nil, errors.WithStack(err)
	}

	return job, nil
}

func (svc *Service) ListJobs(ctx context.Context, opts ListJobsOptions) ([]*models.Job, error) {
	j, _, err := svc.listJobsWithTotal(ctx, opts)
	return j, errors.WithStack(err)
}

func (svc *Service) ListJobsWithTotal(ctx context.Context, opts ListJobsOptions) ([]*models.Job, int, error) {
	opts.includeTotal = true
	return svc.listJobsWithTotal(ctx, opts)
}

func (svc *Service) listJobsWithTotal(ctx context.Context, opts ListJobsOptions) ([]*models.Job, int, error) {
	jobList := []*models.Job{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&jobList).
		Order("j.created_at DESC")

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	} else {
		q = q.Limit(100)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}
	if len(opts.Statuses) > 0 {
		q = q.Where("j.status IN (?)", bun.In(opts.Statuses))
	}
	if opts.LibraryID != nil {
		q = q.Where("j.library_id = ?", *opts.LibraryID)
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return jobList, total, nil
}

// HasActiveJobByName reports whether a non-terminal (Queued/Running/Paused/
// Cancelling) job of the given type already exists, optionally scoped to a
// library, used by the Scheduler to skip a library that already
// has a scan in flight.
func (svc *Service) HasActiveJobByName(ctx context.Context, name string, libraryID *string) (bool, error) {
	q := svc.db.NewSelect().
		Model((*models.Job)(nil)).
		Where("name = ?", name).
		Where("status IN (?)", bun.In([]string{
			models.JobStatusQueued,
			models.JobStatusRunning,
			models.JobStatusPaused,
			models.JobStatusCancelling,
		}))
	if libraryID != nil {
		q = q.Where("library_id = ?", *libraryID)
	}

	count, err := q.Count(ctx)
	if err != nil {
		return false, errors.WithStack(err)
	}
	return count > 0, nil
}

// ListRunning returns every job currently persisted as Running, used at
// controller startup to apply the restart-recovery discipline.
func (svc *Service) ListRunning(ctx context.Context) ([]*models.Job, error) {
	return svc.ListJobs(ctx, ListJobsOptions{
		Statuses: []string{models.JobStatusRunning},
		Limit:    pointerutil.Int(10_000),
	})
}
