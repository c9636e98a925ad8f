// Package scheduler implements a periodic enqueue of configured jobs
// against the Job Controller, generalizing a single global timer firing a
// hardcoded scan enqueue into a set of independently-timed configs, each
// scoped to an explicit set of libraries.
package scheduler

import (
	"context"
	"time"

	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shisho/pkg/jobengine"
	"github.com/shishobooks/shisho/pkg/jobs"
	"github.com/shishobooks/shisho/pkg/libraries"
	"github.com/shishobooks/shisho/pkg/scanner"
)

// Schedule is one entry in the set of scheduled configs (interval plus an
// optional explicit library list). An empty IncludedLibraryIDs means
// every library the store currently knows about.
type Schedule struct {
	Interval           time.Duration
	IncludedLibraryIDs []string
}

// Scheduler owns a set of Schedules and, on each interval's expiry, asks the
// Controller to enqueue a LibraryScan job per included library, skipping
// any library that already has a non-terminal job of the same kind.
type Scheduler struct {
	controller *jobengine.Controller
	jobs       *jobs.Service
	libraries  *libraries.Service

	log       logger.Logger
	schedules []Schedule

	shutdown chan struct{}
	done     chan struct{}
}

// New constructs a Scheduler. Call Start once the Controller's job types are
// registered.
func New(controller *jobengine.Controller, jobsSvc *jobs.Service, librariesSvc *libraries.Service, log logger.Logger, schedules []Schedule) *Scheduler {
	return &Scheduler{
		controller: controller,
		jobs:       jobsSvc,
		libraries:  librariesSvc,
		log:        log.Root(logger.Data{"component": "scheduler"}),
		schedules:  schedules,
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}, len(schedules)),
	}
}

// Start launches one goroutine per configured Schedule. Stop blocks until
// every goroutine has exited.
func (s *Scheduler) Start() {
	for _, sched := range s.schedules {
		go s.run(sched)
	}
}

// Stop signals every running Schedule goroutine and waits for them to
// drain.
func (s *Scheduler) Stop() {
	close(s.shutdown)
	for range s.schedules {
		<-s.done
	}
}

func (s *Scheduler) run(sched Schedule) {
	defer func() { s.done <- struct{}{} }()

	timer := time.NewTimer(sched.Interval)
	defer timer.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-timer.C:
			s.fire(sched)
			timer.Reset(sched.Interval)
		}
	}
}

// fire enqueues a scan for every included library that does not already
// have a non-terminal scan job.
func (s *Scheduler) fire(sched Schedule) {
	ctx := context.Background()

	libraryIDs, err := s.resolveLibraryIDs(ctx, sched)
	if err != nil {
		s.log.Err(err).Error("failed to resolve libraries for scheduled scan")
		return
	}
	if len(libraryIDs) == 0 {
		s.log.Debug("no libraries configured, skipping scheduled scan")
		return
	}

	for _, libID := range libraryIDs {
		id := libID
		active, err := s.jobs.HasActiveJobByName(ctx, scanner.JobName, &id)
		if err != nil {
			s.log.Err(err).Error("failed to check for active scan job")
			continue
		}
		if active {
			s.log.Data(logger.Data{"library_id": id}).Debug("scan job already active for library, skipping")
			continue
		}

		if _, err := s.controller.Enqueue(ctx, scanner.JobName, &id); err != nil {
			s.log.Err(err).Error("failed to create scheduled scan job")
			continue
		}
		s.log.Data(logger.Data{"library_id": id}).Info("created scheduled scan job")
	}
}

func (s *Scheduler) resolveLibraryIDs(ctx context.Context, sched Schedule) ([]string, error) {
	if len(sched.IncludedLibraryIDs) > 0 {
		return sched.IncludedLibraryIDs, nil
	}

	libs, err := s.libraries.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(libs))
	for _, l := range libs {
		ids = append(ids, l.ID)
	}
	return ids, nil
}
