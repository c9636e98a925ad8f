package jobengine

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	controller *Controller
}

// EnqueueJobPayload binds POST /jobs. Name must match a registered job
// type; LibraryID scopes library-bound jobs like the scanner.
type EnqueueJobPayload struct {
	Name      string  `json:"name" validate:"required"`
	LibraryID *string `json:"library_id,omitempty"`
}

func (h *handler) enqueue(c echo.Context) error {
	ctx := c.Request().Context()

	params := EnqueueJobPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	jobRecord, err := h.controller.Enqueue(ctx, params.Name, params.LibraryID)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, jobRecord))
}

func (h *handler) cancel(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.controller.Cancel(ctx, c.Param("id")); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.NoContent(http.StatusNoContent))
}

// RegisterRoutesWithGroup mounts the mutating job operations on the jobs
// group. They live here rather than in pkg/jobs because they need the
// running Controller, not just the persisted records.
func RegisterRoutesWithGroup(g *echo.Group, controller *Controller) {
	h := &handler{controller: controller}

	g.POST("", h.enqueue)
	g.POST("/:id/cancel", h.cancel)
}
