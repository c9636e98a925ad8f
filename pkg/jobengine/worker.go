package jobengine

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shisho/pkg/errcodes"
	"github.com/shishobooks/shisho/pkg/events"
	"github.com/shishobooks/shisho/pkg/joblogs"
	"github.com/shishobooks/shisho/pkg/jobs"
	"github.com/shishobooks/shisho/pkg/models"
)

// command is sent on a Worker's inbound channel. Only Cancel is defined
// today; Pause is named in the Job Record status enum but no command
// constructs it yet, since no job currently transitions into it.
type command struct {
	cancel *cancelCommand
}

type cancelCommand struct {
	ack chan struct{}
}

// Worker hosts exactly one Job instance end to end: init -> execute_task*
// -> finalize. It owns the command channel (inbound) and drives the Job's
// progress ticks out through the shared *events.Hub rather than its own
// channel; the Event Fabric is a single broadcast for every worker.
type Worker struct {
	id        string
	job       Job
	jobRecord *models.Job

	jobService    *jobs.Service
	jobLogService *joblogs.Service
	hub           *events.Hub
	log           logger.Logger

	cmdCh chan command

	mu        sync.Mutex
	status    string
	cancelled bool
}

func newWorker(jobRecord *models.Job, job Job, jobService *jobs.Service, jobLogService *joblogs.Service, hub *events.Hub, log logger.Logger) *Worker {
	return &Worker{
		id:            jobRecord.ID,
		job:           job,
		jobRecord:     jobRecord,
		jobService:    jobService,
		jobLogService: jobLogService,
		hub:           hub,
		log:           log,
		cmdCh:         make(chan command, 1),
		status:        models.JobStatusQueued,
	}
}

// Cancel sends a cancel command and blocks until the worker has drained
// its current task and acknowledged. It is a no-op if the job never
// reached Running or has already left it.
func (w *Worker) Cancel(ctx context.Context) error {
	w.mu.Lock()
	status := w.status
	w.mu.Unlock()

	if status != models.JobStatusRunning {
		return nil
	}

	ack := make(chan struct{})
	select {
	case w.cmdCh <- command{cancel: &cancelCommand{ack: ack}}:
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
}

func (w *Worker) Status() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// run drives the full lifecycle and is invoked on its own goroutine by the
// Controller. ctx is a background context scoped to the controller's
// process lifetime, not the individual job's cancellation; job
// cancellation flows through the command channel's cooperative model
// instead.
func (w *Worker) run(ctx context.Context) {
	start := time.Now()
	jobLog := w.jobLogService.NewJobLogger(ctx, w.id, w.log)

	wctx := &WorkerCtx{
		JobID:     w.id,
		LibraryID: w.jobRecord.LibraryID,
		Log:       jobLog,
		progress:  w.emitProgress,
		cancelled: w.isCancelled,
	}

	var finalStatus string
	var outputData []byte
	var runErr error

	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = errors.Errorf("job panicked: %v", r)
				jobLog.Error("job panicked", runErr, logger.Data{"panic": r})
			}
		}()
		finalStatus, outputData, runErr = w.execute(ctx, wctx)
	}()

	if runErr != nil && finalStatus == "" {
		finalStatus = models.JobStatusFailed
	}

	elapsed := time.Since(start).Milliseconds()
	opts := jobs.TransitionOptions{MsElapsed: &elapsed, Completed: true}
	if outputData != nil {
		s := string(outputData)
		opts.OutputData = &s
	}

	if err := w.jobService.Transition(ctx, w.id, finalStatus, opts); err != nil {
		w.log.Err(err).Error("failed to persist terminal transition")
	}
	w.setStatus(finalStatus)
	w.hub.Publish(events.NewJobUpdate(w.id, nil, 0, nil, finalStatus))
	if outputData != nil {
		w.hub.Publish(events.NewJobOutput(w.id, outputData))
	}

	if runErr != nil && !errcodes.IsCode(runErr, errcodes.CodeCancelled) {
		jobLog.Error("job failed", runErr, nil)
	} else {
		jobLog.Info("job finished", logger.Data{"status": finalStatus})
	}

	w.drainCancelAcks()
}

// execute runs Init, the task loop, and Finalize, returning the status the
// job lands in and any error (Cancelled is returned as a non-nil error so
// the caller's logging branch can special-case it, but it is not logged as
// a failure).
func (w *Worker) execute(ctx context.Context, wctx *WorkerCtx) (string, []byte, error) {
	resumable, isResumable := w.job.(Resumable)
	if isResumable && w.jobRecord.SaveState != nil {
		if err := resumable.LoadState([]byte(*w.jobRecord.SaveState)); err != nil {
			return models.JobStatusFailed, nil, errcodes.StateLoadFailed(err)
		}
	}

	init, err := w.job.Init(ctx, wctx)
	if err != nil {
		return models.JobStatusFailed, nil, errcodes.InitFailed(err)
	}
	if init == nil {
		init = &InitResult{}
	}

	w.setStatus(models.JobStatusRunning)
	if err := w.jobService.Transition(ctx, w.id, models.JobStatusRunning, jobs.TransitionOptions{}); err != nil {
		w.log.Err(err).Error("failed to persist running transition")
	}
	w.hub.Publish(events.NewJobStarted(w.id))

	taskCount := len(init.Tasks)
	w.emitProgress(intPtr(0), taskCount, strPtr(init.Message))

	for i, task := range init.Tasks {
		if w.checkCancel() {
			return models.JobStatusCancelled, w.saveStateOrNil(), errcodes.Cancelled()
		}

		if err := w.job.ExecuteTask(ctx, wctx, task); err != nil {
			// Task-local failures are logged, not fatal. The Job itself
			// decides in Finalize whether accumulated errors should
			// surface as a job failure.
			wctx.Log.Error("task failed", err, logger.Data{"task_index": i})
		}

		w.emitProgress(intPtr(i+1), taskCount, nil)

		if isResumable && (i+1)%50 == 0 {
			if state, err := resumable.SaveState(); err == nil {
				s := string(state)
				_ = w.jobService.Transition(ctx, w.id, models.JobStatusRunning, jobs.TransitionOptions{SaveState: &s})
			}
		}
	}

	if w.checkCancel() {
		return models.JobStatusCancelled, w.saveStateOrNil(), errcodes.Cancelled()
	}

	output, err := w.job.Finalize(ctx, wctx)
	if err != nil {
		return models.JobStatusFailed, nil, err
	}

	return models.JobStatusCompleted, output, nil
}

func (w *Worker) saveStateOrNil() []byte {
	resumable, ok := w.job.(Resumable)
	if !ok {
		return nil
	}
	state, err := resumable.SaveState()
	if err != nil {
		return nil
	}
	return state
}

// checkCancel drains at most one pending cancel command, transitions the
// worker to Cancelling, and acknowledges it. The command's ack channel
// fires once this task boundary is reached, after the task finishes or is
// confirmed aborted.
func (w *Worker) checkCancel() bool {
	select {
	case cmd := <-w.cmdCh:
		if cmd.cancel != nil {
			w.setStatus(models.JobStatusCancelling)
			w.mu.Lock()
			w.cancelled = true
			w.mu.Unlock()
			close(cmd.cancel.ack)
			return true
		}
	default:
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancelled
}

func (w *Worker) isCancelled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancelled
}

// drainCancelAcks acknowledges any cancel command that arrived after the
// job had already reached a terminal state, so a racing Cancel call never
// blocks forever.
func (w *Worker) drainCancelAcks() {
	for {
		select {
		case cmd := <-w.cmdCh:
			if cmd.cancel != nil {
				close(cmd.cancel.ack)
			}
		default:
			return
		}
	}
}

func (w *Worker) setStatus(status string) {
	w.mu.Lock()
	w.status = status
	w.mu.Unlock()
}

func (w *Worker) emitProgress(currentTask *int, taskCount int, message *string) {
	w.hub.Publish(events.NewJobUpdate(w.id, currentTask, taskCount, message, w.Status()))
}

func intPtr(n int) *int { return &n }

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
