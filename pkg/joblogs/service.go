// Package joblogs persists the structured Logs: lines a Worker
// emits while executing a task, optionally scoped to a Job, as a thin
// service type over bun.
package joblogs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shishobooks/shisho/pkg/models"
	"github.com/uptrace/bun"
)

// ListLogsOptions filters logs.list(filter): by owning job, by a
// cursor id for incremental polling, and by level.
type ListLogsOptions struct {
	JobID   *string
	AfterID *string
	Levels  []string
	Limit   *int
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

// Append inserts a Log line (level, message, optional job_id and
// context).
func (svc *Service) Append(ctx context.Context, log *models.Log) error {
	if log.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return errors.WithStack(err)
		}
		log.ID = id.String()
	}
	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now()
	}

	_, err := svc.db.
		NewInsert().
		Model(log).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) ListLogs(ctx context.Context, opts ListLogsOptions) ([]*models.Log, error) {
	logList := []*models.Log{}

	q := svc.db.
		NewSelect().
		Model(&logList).
		Order("lg.timestamp ASC")

	if opts.JobID != nil {
		q = q.Where("lg.job_id = ?", *opts.JobID)
	}
	if opts.AfterID != nil {
		q = q.Where("lg.id > ?", *opts.AfterID)
	}
	if len(opts.Levels) > 0 {
		q = q.Where("lg.level IN (?)", bun.In(opts.Levels))
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	} else {
		q = q.Limit(500)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, errors.WithStack(err)
	}

	return logList, nil
}
