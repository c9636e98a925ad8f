package libraries

import "github.com/shishobooks/shisho/pkg/models"

// CreateLibraryPayload binds POST /libraries. Config is optional; an
// omitted field falls back to DefaultLibraryConfig.
type CreateLibraryPayload struct {
	Name   string                `json:"name" validate:"required,max=255"`
	Path   string                `json:"path" validate:"required"`
	Config *models.LibraryConfig `json:"config,omitempty"`
}

type ListLibrariesQuery struct {
	Limit   int  `query:"limit" json:"limit,omitempty" validate:"omitempty,min=1,max=200"`
	Offset  int  `query:"offset" json:"offset,omitempty" validate:"omitempty,min=0"`
	Deleted bool `query:"deleted" json:"deleted,omitempty"`
}

// UpdateLibraryPayload binds POST /libraries/:id.
type UpdateLibraryPayload struct {
	Name   *string               `json:"name,omitempty" validate:"omitempty,max=255"`
	Config *models.LibraryConfig `json:"config,omitempty"`
}
