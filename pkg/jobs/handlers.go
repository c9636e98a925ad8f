package jobs

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/pointerutil"
)

// handler is the thin, out-of-scope HTTP collaborator over Service.
// Enqueue/Cancel live on the jobengine Controller's own routes since they
// need the running Worker, not just the persisted record.
type handler struct {
	jobService *Service
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	q := ListJobsQuery{}
	if err := c.Bind(&q); err != nil {
		return errors.WithStack(err)
	}

	opts := ListJobsOptions{Statuses: q.Statuses}
	if q.Limit > 0 {
		opts.Limit = pointerutil.Int(q.Limit)
	}
	if q.Offset > 0 {
		opts.Offset = pointerutil.Int(q.Offset)
	}
	if q.LibraryID != "" {
		opts.LibraryID = &q.LibraryID
	}

	jobList, total, err := h.jobService.ListJobsWithTotal(ctx, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, echo.Map{
		"jobs":  jobList,
		"total": total,
	}))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()

	job, err := h.jobService.RetrieveJob(ctx, RetrieveJobOptions{ID: c.Param("id")})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, job))
}
