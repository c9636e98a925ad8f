package series

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/pointerutil"
)

type handler struct {
	seriesService *Service
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()

	s, err := h.seriesService.Retrieve(ctx, RetrieveSeriesOptions{ID: c.Param("id")})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, s))
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := ListSeriesQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	opts := ListSeriesOptions{}
	if params.Limit > 0 {
		opts.Limit = pointerutil.Int(params.Limit)
	}
	if params.Offset > 0 {
		opts.Offset = pointerutil.Int(params.Offset)
	}
	if params.LibraryID != "" {
		opts.LibraryID = &params.LibraryID
	}

	seriesList, total, err := h.seriesService.ListWithTotal(ctx, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, echo.Map{
		"series": seriesList,
		"total":  total,
	}))
}

func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	params := UpdateSeriesPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	s, err := h.seriesService.Retrieve(ctx, RetrieveSeriesOptions{ID: id})
	if err != nil {
		return errors.WithStack(err)
	}

	opts := UpdateSeriesOptions{Columns: []string{}}
	if params.Name != nil && *params.Name != s.Name {
		s.Name = *params.Name
		opts.Columns = append(opts.Columns, "name")
	}

	if err := h.seriesService.Update(ctx, s, opts); err != nil {
		return errors.WithStack(err)
	}

	s, err = h.seriesService.Retrieve(ctx, RetrieveSeriesOptions{ID: id})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, s))
}

func (h *handler) delete(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.seriesService.Delete(ctx, c.Param("id")); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.NoContent(http.StatusNoContent))
}
