package media

import (
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers media read and page-serving routes on a
// pre-configured group.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB) {
	h := &handler{mediaService: NewService(db)}

	g.GET("", h.list)
	g.GET("/:id", h.retrieve)
	g.GET("/:id/page/:n", h.page)
}
