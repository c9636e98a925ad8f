// Package readingsessions owns the ReadingSession/FinishedReadingSession
// records: a user's current position in a Media, with the invariant that
// at most one active session exists per (user_id, media_id) and that
// completing a session atomically replaces it with a finished record.
package readingsessions

import (
	"context"
	"database/sql"
	"time"

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

// UpsertProgressOptions carries the position fields a client reports; at
// least one of Page/Epubcfi must be set.
type UpsertProgressOptions struct {
	Page                *int
	Epubcfi             *string
	PercentageCompleted *float64
}

// UpsertProgress creates the active ReadingSession on first report and
// updates it in place on every subsequent call for the same (user_id,
// media_id), never inserting a second row.
func (svc *Service) UpsertProgress(ctx context.Context, userID, mediaID string, opts UpsertProgressOptions) (*models.ReadingSession, error) {
	if opts.Page == nil && opts.Epubcfi == nil {
		return nil, errcodes.Conflict("one of page or epubcfi is required")
	}

	now := time.Now()
	var result *models.ReadingSession

	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		existing := &models.ReadingSession{}
		err := tx.NewSelect().
			Model(existing).
			Where("rs.user_id = ? AND rs.media_id = ?", userID, mediaID).
			Scan(ctx)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			id, uerr := uuid.NewRandom()
			if uerr != nil {
				return errors.WithStack(uerr)
			}
			session := &models.ReadingSession{
				ID:                  id.String(),
				UserID:              userID,
				MediaID:             mediaID,
				Page:                opts.Page,
				Epubcfi:             opts.Epubcfi,
				PercentageCompleted: opts.PercentageCompleted,
				StartedAt:           now,
				UpdatedAt:           now,
			}
			if _, err := tx.NewInsert().Model(session).Returning("*").Exec(ctx); err != nil {
				return errors.WithStack(err)
			}
			result = session
			return nil
		case err != nil:
			return errors.WithStack(err)
		}

		existing.Page = opts.Page
		existing.Epubcfi = opts.Epubcfi
		existing.PercentageCompleted = opts.PercentageCompleted
		existing.UpdatedAt = now

		if _, err := tx.NewUpdate().
			Model(existing).
			Column("page", "epubcfi", "percentage_completed", "updated_at").
			Where("id = ?", existing.ID).
			Exec(ctx); err != nil {
			return errors.WithStack(err)
		}
		result = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Complete inserts a FinishedReadingSession and deletes the active session
// in one transaction, so a reader of either table never observes a (user,
// media) with both an active and a finished row, nor neither.
func (svc *Service) Complete(ctx context.Context, userID, mediaID string) (*models.FinishedReadingSession, error) {
	var result *models.FinishedReadingSession

	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		active := &models.ReadingSession{}
		err := tx.NewSelect().
			Model(active).
			Where("rs.user_id = ? AND rs.media_id = ?", userID, mediaID).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return errcodes.NotFound("ReadingSession")
		}
		if err != nil {
			return errors.WithStack(err)
		}

		id, uerr := uuid.NewRandom()
		if uerr != nil {
			return errors.WithStack(uerr)
		}
		finished := &models.FinishedReadingSession{
			ID:         id.String(),
			UserID:     userID,
			MediaID:    mediaID,
			StartedAt:  active.StartedAt,
			FinishedAt: time.Now(),
		}
		if _, err := tx.NewInsert().Model(finished).Returning("*").Exec(ctx); err != nil {
			return errors.WithStack(err)
		}

		if _, err := tx.NewDelete().
			Model((*models.ReadingSession)(nil)).
			Where("id = ?", active.ID).
			Exec(ctx); err != nil {
			return errors.WithStack(err)
		}

		result = finished
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetActive retrieves the active session for a (user, media) pair, if any.
func (svc *Service) GetActive(ctx context.Context, userID, mediaID string) (*models.ReadingSession, error) {
	session := &models.ReadingSession{}
	err := svc.db.NewSelect().
		Model(session).
		Where("rs.user_id = ? AND rs.media_id = ?", userID, mediaID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errcodes.NotFound("ReadingSession")
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return session, nil
}
