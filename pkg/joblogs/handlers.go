package joblogs

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/shishobooks/shisho/pkg/jobs"
)

type handler struct {
	logService *Service
	jobService *jobs.Service
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()
	jobID := c.Param("id")

	// Verify the owning job exists before returning its logs (404 over an
	// empty list when the id is simply wrong).
	if _, err := h.jobService.RetrieveJob(ctx, jobs.RetrieveJobOptions{ID: jobID}); err != nil {
		return errors.WithStack(err)
	}

	q := ListLogsQuery{}
	if err := c.Bind(&q); err != nil {
		return errors.WithStack(err)
	}

	opts := ListLogsOptions{JobID: &jobID, Levels: q.Level}
	if q.AfterID != "" {
		opts.AfterID = &q.AfterID
	}
	if q.Limit > 0 {
		opts.Limit = pointerutil.Int(q.Limit)
	}

	logList, err := h.logService.ListLogs(ctx, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, echo.Map{"logs": logList}))
}
