package jobs

import (
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers the read-only job listing routes on a
// pre-configured group. Mutating job operations (enqueue/cancel) are
// registered by pkg/jobengine, which owns the running Controller.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB) {
	h := &handler{jobService: NewService(db)}

	g.GET("", h.list)
	g.GET("/:id", h.retrieve)
}
