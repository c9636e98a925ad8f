package libraries

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/shishobooks/shisho/pkg/models"
)

// handler is the thin, out-of-scope HTTP collaborator over Service.
// Scanning a library is triggered through the jobengine Controller's own
// routes, which own the running Worker this package does not.
type handler struct {
	libraryService *Service
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()

	params := CreateLibraryPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	library := &models.Library{
		Name: params.Name,
		Path: params.Path,
	}
	if params.Config != nil {
		library.ConfigParsed = params.Config
	}

	if err := h.libraryService.Create(ctx, library); err != nil {
		return errors.WithStack(err)
	}

	library, err := h.libraryService.Retrieve(ctx, RetrieveLibraryOptions{ID: library.ID})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, library))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()

	library, err := h.libraryService.Retrieve(ctx, RetrieveLibraryOptions{ID: c.Param("id")})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, library))
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := ListLibrariesQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	opts := ListLibrariesOptions{IncludeDeleted: params.Deleted}
	if params.Limit > 0 {
		opts.Limit = pointerutil.Int(params.Limit)
	}
	if params.Offset > 0 {
		opts.Offset = pointerutil.Int(params.Offset)
	}

	libraryList, total, err := h.libraryService.ListWithTotal(ctx, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, echo.Map{
		"libraries": libraryList,
		"total":     total,
	}))
}

func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	params := UpdateLibraryPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	library, err := h.libraryService.Retrieve(ctx, RetrieveLibraryOptions{ID: id})
	if err != nil {
		return errors.WithStack(err)
	}

	opts := UpdateLibraryOptions{Columns: []string{}}

	if params.Name != nil && *params.Name != library.Name {
		library.Name = *params.Name
		opts.Columns = append(opts.Columns, "name")
	}
	if params.Config != nil {
		library.ConfigParsed = params.Config
		opts.Columns = append(opts.Columns, "config")
	}

	if err := h.libraryService.Update(ctx, library, opts); err != nil {
		return errors.WithStack(err)
	}

	library, err = h.libraryService.Retrieve(ctx, RetrieveLibraryOptions{ID: id})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, library))
}

func (h *handler) delete(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.libraryService.Delete(ctx, c.Param("id")); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.NoContent(http.StatusNoContent))
}
