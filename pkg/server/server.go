// Package server assembles the HTTP surface over the domain packages'
// route registrations. Routing itself is thin glue; everything it serves
// delegates straight to the per-domain services and the job engine's
// running Controller.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/uptrace/bun"

	"github.com/shishobooks/shisho/pkg/config"
	"github.com/shishobooks/shisho/pkg/errcodes"
	"github.com/shishobooks/shisho/pkg/jobengine"
	"github.com/shishobooks/shisho/pkg/joblogs"
	"github.com/shishobooks/shisho/pkg/jobs"
	"github.com/shishobooks/shisho/pkg/libraries"
	"github.com/shishobooks/shisho/pkg/media"
	"github.com/shishobooks/shisho/pkg/series"
)

func New(cfg *config.Config, db *bun.DB, controller *jobengine.Controller) *http.Server {
	e := echo.New()

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(middleware.CORS())

	health.RegisterRoutes(e)

	libraries.RegisterRoutesWithGroup(e.Group("/libraries"), db)
	series.RegisterRoutesWithGroup(e.Group("/series"), db)
	media.RegisterRoutesWithGroup(e.Group("/media"), db)

	jobsGroup := e.Group("/jobs")
	jobs.RegisterRoutesWithGroup(jobsGroup, db)
	joblogs.RegisterRoutesWithGroup(jobsGroup, db)
	jobengine.RegisterRoutesWithGroup(jobsGroup, controller)

	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
