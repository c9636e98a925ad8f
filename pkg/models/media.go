package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Media is a single book/issue file (CBZ, CBR, EPUB or PDF). Invariant:
// path unique across all media. A non-nil Hash colliding with another
// media's hash is a signal of intentional duplication, not an error
//.
type Media struct {
	bun.BaseModel `bun:"table:media,alias:m" tstype:"-"`

	ID         string         `bun:",pk,nullzero" json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Name       string         `bun:",nullzero" json:"name"`
	Path       string         `bun:",nullzero,unique" json:"path"`
	SizeBytes  int64          `bun:",nullzero" json:"size_bytes"`
	Extension  string         `bun:",nullzero" json:"extension"`
	Pages      int            `json:"pages"`
	Hash       *string        `json:"hash,omitempty"`
	Status     string         `bun:",nullzero,default:'ready'" json:"status" tstype:"FileStatus"`
	ModifiedAt time.Time      `json:"modified_at"`
	SeriesID   string         `bun:",nullzero" json:"series_id"`
	Series     *Series        `bun:"rel:belongs-to,join:series_id=id" json:"series,omitempty" tstype:"Series"`
	Metadata   *MediaMetadata `bun:"rel:has-one,join:id=media_id" json:"metadata,omitempty" tstype:"MediaMetadata"`
	DeletedAt  *time.Time     `bun:",soft_delete" json:"-"`
}

// MediaMetadata holds ComicInfo/OPF/PDF-derived descriptive fields for a
// Media row, parsed by the matching pkg/mediafile processor during a scan.
// Writers/Genres/Links are stored as JSON text (StringList) rather than
// bun's Postgres-only array column type, since the store is SQLite.
type MediaMetadata struct {
	bun.BaseModel `bun:"table:media_metadata,alias:mm" tstype:"-"`

	ID        string     `bun:",pk,nullzero" json:"id"`
	MediaID   string     `bun:",nullzero,unique" json:"media_id"`
	Title     string     `json:"title,omitempty"`
	Number    *float64   `json:"number,omitempty"`
	Summary   string     `json:"summary,omitempty"`
	Publisher string     `json:"publisher,omitempty"`
	Writers   StringList `bun:",type:text" json:"writers,omitempty" tstype:"string[]"`
	Genres    StringList `bun:",type:text" json:"genres,omitempty" tstype:"string[]"`
	PageCount int        `json:"page_count,omitempty"`
	AgeRating *int       `json:"age_rating,omitempty"`
	Links     StringList `bun:",type:text" json:"links,omitempty" tstype:"string[]"`
}
