package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Series is a directory of related Media under a Library. Invariant:
// (library_id, path) unique.
type Series struct {
	bun.BaseModel `bun:"table:series,alias:s" tstype:"-"`

	ID         string     `bun:",pk,nullzero" json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DeletedAt  *time.Time `bun:",soft_delete" json:"-"`
	LibraryID  string     `bun:",nullzero" json:"library_id"`
	Library    *Library   `bun:"rel:belongs-to,join:library_id=id" json:"library,omitempty" tstype:"Library"`
	Name       string     `bun:",nullzero" json:"name"`
	Path       string     `bun:",nullzero" json:"path"`
	Status     string     `bun:",nullzero,default:'ready'" json:"status" tstype:"FileStatus"`
	Metadata   *string    `json:"metadata,omitempty"`
	MediaCount int        `bun:",scanonly" json:"media_count"`
}
