package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ReadingSession tracks a user's current position in a Media. Invariant:
// exactly one active session per (user_id, media_id). On completion the
// active session is deleted and a FinishedReadingSession is created in the
// same transaction, so both rows never exist at once.
type ReadingSession struct {
	bun.BaseModel `bun:"table:reading_sessions,alias:rs" tstype:"-"`

	ID                  string    `bun:",pk,nullzero" json:"id"`
	UserID              string    `bun:",nullzero" json:"user_id"`
	MediaID             string    `bun:",nullzero" json:"media_id"`
	Page                *int      `json:"page,omitempty"`
	Epubcfi             *string   `json:"epubcfi,omitempty"`
	PercentageCompleted *float64  `json:"percentage_completed,omitempty"`
	StartedAt           time.Time `json:"started_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// FinishedReadingSession is the terminal record created once a
// ReadingSession completes; the active session is destroyed at the same
// time it is created.
type FinishedReadingSession struct {
	bun.BaseModel `bun:"table:finished_reading_sessions,alias:frs" tstype:"-"`

	ID         string    `bun:",pk,nullzero" json:"id"`
	UserID     string    `bun:",nullzero" json:"user_id"`
	MediaID    string    `bun:",nullzero" json:"media_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Bookmark marks a position within a Media for later recall. Invariant: at
// least one of Page/Epubcfi is non-nil.
type Bookmark struct {
	bun.BaseModel `bun:"table:bookmarks,alias:bm" tstype:"-"`

	ID             string  `bun:",pk,nullzero" json:"id"`
	UserID         string  `bun:",nullzero" json:"user_id"`
	MediaID        string  `bun:",nullzero" json:"media_id"`
	Page           *int    `json:"page,omitempty"`
	Epubcfi        *string `json:"epubcfi,omitempty"`
	PreviewContent *string `json:"preview_content,omitempty"`
}
