// Package jobengine generalizes a DB-backed job queue with a type-indexed
// dispatch table and per-job panic recovery into a full state machine: a
// Worker hosts exactly one job instance, a Controller owns the set of
// workers, and both persist transitions before broadcasting them.
//
// A Job never touches the database or the event fabric directly; it is
// handed a *WorkerCtx exposing only the capabilities it needs (logging,
// progress reporting, cancellation observation), owned per worker with no
// shared mutable state across the worker body.
package jobengine

import (
	"context"

	"github.com/shishobooks/shisho/pkg/joblogs"
)

// Task is a single unit of work a Job's Init step plans and ExecuteTask
// later carries out. Its shape is entirely job-specific; the engine only
// counts and sequences them.
type Task interface{}

// InitResult is what a Job's Init returns: the full task list (so the
// engine can report task_count from the first progress tick) plus an
// optional human-readable message for the job's first JobUpdate.
type InitResult struct {
	Tasks   []Task
	Message string
}

// Job is the interface every background-work implementation satisfies.
// Unreachable states are not modeled: anything a job cannot recover from
// is returned as an error and surfaced as an init failure.
type Job interface {
	// Name identifies the job type for persistence and dispatch, matching
	// models.JobTypeScan / models.JobTypeThumbnailGeneration.
	Name() string

	// Init plans the job's task list. A returned error transitions the
	// job directly Pending->Failed without ever reaching Running.
	Init(ctx context.Context, wctx *WorkerCtx) (*InitResult, error)

	// ExecuteTask carries out a single planned Task. A task-local error is
	// logged by the caller and does not fail the job unless the Job
	// chooses to return it from Finalize as a fatal precondition.
	ExecuteTask(ctx context.Context, wctx *WorkerCtx, task Task) error

	// Finalize runs once after every task has executed (or the job was
	// cancelled) and returns the opaque output_data persisted onto the Job
	// Record.
	Finalize(ctx context.Context, wctx *WorkerCtx) (outputData []byte, err error)
}

// Resumable is implemented by jobs that opt into resume semantics: a save
// and load of opaque state across a restart, specified as opt-in per job.
// A job that does not implement this interface is always restarted from
// scratch, and any instance found Running at controller startup is
// transitioned to Failed.
type Resumable interface {
	Job

	// LoadState restores a Job's internal planning state from the bytes
	// previously returned by SaveState. The Worker calls it just before
	// Init when the controller is resuming a job found Running at startup
	// with a non-nil save_state.
	LoadState(data []byte) error

	// SaveState captures enough state to resume Init after a host
	// restart. Called after every 50 completed tasks and when the job is
	// cancelled (not at Finalize), so a crash mid-job loses at most one
	// batch of progress.
	SaveState() ([]byte, error)
}

// WorkerCtx is the capability surface a Job runs against: a job logger
// (console + persisted Log rows), a progress reporter wired to the Event
// Fabric, and a way to observe cancellation at task boundaries. It carries
// no direct handle to the database or to bun.DB; a Job depends on
// whatever domain services it needs (scanner depends on libraries/series/
// media, thumbjob depends on thumbnails) via its own constructor, not
// through WorkerCtx, keeping this package free of domain knowledge.
type WorkerCtx struct {
	JobID     string
	LibraryID *string
	Log       *joblogs.JobLogger

	progress  func(currentTask *int, taskCount int, message *string)
	cancelled func() bool
}

// ReportProgress emits one progress tick (a JobUpdate event): one tick per
// task completed, or one tick per media processed for batch jobs that
// process several media per task.
func (w *WorkerCtx) ReportProgress(currentTask int, taskCount int, message string) {
	var msgPtr *string
	if message != "" {
		msgPtr = &message
	}
	ct := currentTask
	w.progress(&ct, taskCount, msgPtr)
}

// Cancelled reports whether a Cancel command has been accepted for this
// job. A Job's ExecuteTask loop (or a long single task, at minimum every
// 500ms) should check this at every suspension point and return promptly
// when true.
func (w *WorkerCtx) Cancelled() bool {
	return w.cancelled()
}
