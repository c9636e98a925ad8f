package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Session is a persisted, expiring login session row. A background
// sweeper deletes rows whose Expiry has passed.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:sess" tstype:"-"`

	ID        string    `bun:",pk,nullzero" json:"id"`
	UserID    string    `bun:",nullzero" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	Expiry    time.Time `json:"expiry"`
}
