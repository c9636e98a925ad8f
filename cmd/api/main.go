// Command api runs the whole service: config, the database, the job
// engine, the scheduler, the session sweeper, and the HTTP server over the
// domain routes.
package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
	"github.com/urfave/cli/v2"

	"github.com/shishobooks/shisho/pkg/config"
	"github.com/shishobooks/shisho/pkg/database"
	"github.com/shishobooks/shisho/pkg/events"
	"github.com/shishobooks/shisho/pkg/jobengine"
	"github.com/shishobooks/shisho/pkg/joblogs"
	"github.com/shishobooks/shisho/pkg/jobs"
	"github.com/shishobooks/shisho/pkg/libraries"
	"github.com/shishobooks/shisho/pkg/media"
	_ "github.com/shishobooks/shisho/pkg/mediafile/cbr"
	_ "github.com/shishobooks/shisho/pkg/mediafile/cbz"
	_ "github.com/shishobooks/shisho/pkg/mediafile/epub"
	_ "github.com/shishobooks/shisho/pkg/mediafile/pdfdoc"
	"github.com/shishobooks/shisho/pkg/migrations"
	"github.com/shishobooks/shisho/pkg/models"
	"github.com/shishobooks/shisho/pkg/scanner"
	"github.com/shishobooks/shisho/pkg/scheduler"
	"github.com/shishobooks/shisho/pkg/series"
	"github.com/shishobooks/shisho/pkg/server"
	"github.com/shishobooks/shisho/pkg/sessions"
	"github.com/shishobooks/shisho/pkg/thumbjob"
	"github.com/shishobooks/shisho/pkg/thumbnails"
)

func main() {
	log := logger.New()

	app := &cli.App{
		Name:  "shisho-api",
		Usage: "run the library server: job engine, scanner, thumbnails, scheduler, and HTTP API",
		Action: func(c *cli.Context) error {
			return run()
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Err(err).Fatal("server error")
	}
}

func run() error {
	ctx := context.Background()
	log := logger.New()

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}
	defer db.Close()

	group, err := migrations.BringUpToDate(ctx, db, cfg.ForceResetDB)
	if err != nil {
		log.Err(err).Fatal("migrations error")
	}
	if group.ID != 0 {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID})
	}

	librariesSvc := libraries.NewService(db)
	seriesSvc := series.NewService(db)
	mediaSvc := media.NewService(db)
	jobsSvc := jobs.NewService(db)
	jobLogsSvc := joblogs.NewService(db)
	sessionsSvc := sessions.NewService(db)

	hub := events.NewHub()
	thumbStore := thumbnails.NewStore(cfg.ThumbnailsDir)

	controller := jobengine.NewController(jobsSvc, jobLogsSvc, hub, log)

	controller.Register(scanner.JobName, func(jobRecord *models.Job) jobengine.Job {
		return scanner.NewJob(libraryIDOf(jobRecord), librariesSvc, seriesSvc, mediaSvc, hub, cfg.ScanConcurrency, cfg.ScanBatchSize)
	})
	controller.Register(thumbjob.JobName, func(jobRecord *models.Job) jobengine.Job {
		return thumbjob.NewJob(libraryIDOf(jobRecord), librariesSvc, mediaSvc, thumbStore, cfg.ThumbnailConcurrency, cfg.ScanBatchSize)
	})

	if err := controller.RecoverAfterRestart(ctx); err != nil {
		log.Err(err).Error("failed to recover jobs after restart")
	}

	sched := scheduler.New(controller, jobsSvc, librariesSvc, log, []scheduler.Schedule{
		{Interval: time.Duration(cfg.ScanIntervalSeconds) * time.Second},
	})
	sched.Start()

	sweepCtx, cancelSweep := context.WithCancel(ctx)
	go sessionsSvc.RunSweeper(sweepCtx, cfg.SessionExpiryCleanupInterval, log)

	srv := server.New(cfg, db, controller)

	go func() {
		log.Info("server started", logger.Data{"addr": srv.Addr, "hostname": cfg.Hostname})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Fatal("server stopped")
		}
	}()

	graceful := signals.Setup()
	<-graceful

	log.Info("starting graceful shutdown")
	if err := srv.Shutdown(ctx); err != nil {
		log.Err(err).Error("server shutdown error")
	}
	sched.Stop()
	cancelSweep()

	return nil
}

// libraryIDOf reads a job record's LibraryID. A record without one yields
// an empty id, which the job's Init reports as a library lookup failure.
func libraryIDOf(jobRecord *models.Job) string {
	if jobRecord.LibraryID == nil {
		return ""
	}
	return *jobRecord.LibraryID
}
