// Package sessions owns the Session Record: an expiring
// login session row, plus a background sweeper that deletes rows whose
// Expiry has passed, as a thin service type over bun.
package sessions

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
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

// Create answers sessions.create(user_id, ttl).
func (svc *Service) Create(ctx context.Context, userID string, ttl time.Duration) (*models.Session, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	now := time.Now()
	session := &models.Session{
		ID:        id.String(),
		UserID:    userID,
		CreatedAt: now,
		Expiry:    now.Add(ttl),
	}

	_, err = svc.db.
		NewInsert().
		Model(session).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return session, nil
}

// Get answers sessions.get(id), treating an expired-but-not-yet-swept
// session the same as a missing one.
func (svc *Service) Get(ctx context.Context, id string) (*models.Session, error) {
	session := &models.Session{}

	err := svc.db.
		NewSelect().
		Model(session).
		Where("sess.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Session")
		}
		return nil, errors.WithStack(err)
	}

	if session.Expiry.Before(time.Now()) {
		return nil, errcodes.NotFound("Session")
	}

	return session, nil
}

// Delete answers sessions.delete(id), used for logout.
func (svc *Service) Delete(ctx context.Context, id string) error {
	_, err := svc.db.
		NewDelete().
		Model((*models.Session)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return errors.WithStack(err)
}

// deleteExpired runs the single DELETE statement backing the sweeper.
func (svc *Service) deleteExpired(ctx context.Context) (int, error) {
	res, err := svc.db.
		NewDelete().
		Model((*models.Session)(nil)).
		Where("expiry < ?", time.Now()).
		Exec(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return int(n), nil
}

// RunSweeper deletes expired sessions on a fixed interval until ctx is
// canceled, driven by a time.Ticker. A zero/negative interval falls back
// to 60s.
func (svc *Service) RunSweeper(ctx context.Context, interval time.Duration, log logger.Logger) {
	if interval <= 0 {
		interval = 60 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.deleteExpired(ctx)
			if err != nil {
				log.Err(err).Error("failed to sweep expired sessions")
				continue
			}
			if n > 0 {
				log.Info("swept expired sessions", logger.Data{"count": n})
			}
		}
	}
}
