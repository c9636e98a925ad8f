// Package bookmarks owns the Bookmark record: a user-placed marker within
// a Media, with the invariant that at least one of Page/Epubcfi is set.
package bookmarks

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shishobooks/shisho/pkg/errcodes"
	"github.com/shishobooks/shisho/pkg/models"
	"github.com/uptrace/bun"
)

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

// Create inserts a Bookmark, enforcing the at-least-one-of-page/epubcfi
// invariant up front rather than relying on a nullable database constraint.
func (svc *Service) Create(ctx context.Context, bookmark *models.Bookmark) error {
	if bookmark.Page == nil && bookmark.Epubcfi == nil {
		return errcodes.Conflict("one of page or epubcfi is required")
	}

	if bookmark.ID == "" {
		id, err := uuid.NewRandom()
		if err != nil {
			return errors.WithStack(err)
		}
		bookmark.ID = id.String()
	}

	_, err := svc.db.
		NewInsert().
		Model(bookmark).
		Returning("*").
		Exec(ctx)
	return errors.WithStack(err)
}

// ListByMedia returns every bookmark a user has placed in a given Media.
func (svc *Service) ListByMedia(ctx context.Context, userID, mediaID string) ([]*models.Bookmark, error) {
	var bookmarks []*models.Bookmark
	err := svc.db.
		NewSelect().
		Model(&bookmarks).
		Where("bm.user_id = ? AND bm.media_id = ?", userID, mediaID).
		Scan(ctx)
	return bookmarks, errors.WithStack(err)
}

// Delete removes a Bookmark by id, scoped to the owning user so one user
// cannot delete another's bookmark by guessing an id.
func (svc *Service) Delete(ctx context.Context, userID, id string) error {
	res, err := svc.db.
		NewDelete().
		Model((*models.Bookmark)(nil)).
		Where("id = ? AND user_id = ?", id, userID).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if n == 0 {
		return errcodes.NotFound("Bookmark")
	}
	return nil
}
