package media

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/shishobooks/shisho/pkg/errcodes"
	"github.com/shishobooks/shisho/pkg/mediafile"
)

type handler struct {
	mediaService *Service
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()

	m, err := h.mediaService.Retrieve(ctx, RetrieveMediaOptions{ID: c.Param("id")})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, m))
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := ListMediaQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	opts := ListMediaOptions{}
	if params.Limit > 0 {
		opts.Limit = pointerutil.Int(params.Limit)
	}
	if params.Offset > 0 {
		opts.Offset = pointerutil.Int(params.Offset)
	}
	if params.SeriesID != "" {
		opts.SeriesID = &params.SeriesID
	}

	mediaList, total, err := h.mediaService.ListWithTotal(ctx, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, echo.Map{
		"media": mediaList,
		"total": total,
	}))
}

// page serves a single page of a Media's content, delegating to
// the format Processor registered for the file's extension.
func (h *handler) page(c echo.Context) error {
	ctx := c.Request().Context()

	n, err := strconv.Atoi(c.Param("n"))
	if err != nil {
		return errcodes.PageOutOfBounds(0, 0)
	}

	m, err := h.mediaService.Retrieve(ctx, RetrieveMediaOptions{ID: c.Param("id")})
	if err != nil {
		return errors.WithStack(err)
	}

	proc, err := mediafile.ForPath(m.Path)
	if err != nil {
		return errors.WithStack(err)
	}

	contentType, data, err := proc.GetPage(m.Path, n)
	if err != nil {
		return errors.WithStack(err)
	}

	c.Response().Header().Set("Cache-Control", "public, max-age=86400")

	return errors.WithStack(c.Blob(http.StatusOK, contentType, data))
}
