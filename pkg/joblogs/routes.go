package joblogs

import (
	"github.com/labstack/echo/v4"
	"github.com/shishobooks/shisho/pkg/jobs"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup mounts GET /:id/logs on the jobs group.
func RegisterRoutesWithGroup(jobsGroup *echo.Group, db *bun.DB) {
	h := &handler{
		logService: NewService(db),
		jobService: jobs.NewService(db),
	}

	jobsGroup.GET("/:id/logs", h.list)
}
