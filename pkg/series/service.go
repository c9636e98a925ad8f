// Package series owns the Series Record: a reconciled directory of
// Media under a Library, as a thin service type over bun.
package series

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

type RetrieveSeriesOptions struct {
	ID   string
	Path string
}

type ListSeriesOptions struct {
	Limit     *int
	Offset    *int
	LibraryID *string

	includeTotal bool
}

type UpdateSeriesOptions struct {
	Columns []string
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) Retrieve(ctx context.Context, opts RetrieveSeriesOptions) (*models.Series, error) {
	s := &models.Series{}

	q := svc.db.
		NewSelect().
		Model(s).
		Relation("Library")

	if opts.ID != "" {
		q = q.Where("s.id = ?", opts.ID)
	}
	if opts.Path != "" {
		q = q.Where("s.path = ?", opts.Path)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Series")
		}
		return nil, errors.WithStack(err)
	}

	return s, nil
}

func (svc *Service) List(ctx context.Context, opts ListSeriesOptions) ([]*models.Series, error) {
	s, _, err := svc.listWithTotal(ctx, opts)
	return s, errors.WithStack(err)
}

func (svc *Service) ListWithTotal(ctx context.Context, opts ListSeriesOptions) ([]*models.Series, int, error) {
	opts.includeTotal = true
	return svc.listWithTotal(ctx, opts)
}

func (svc *Service) listWithTotal(ctx context.Context, opts ListSeriesOptions) ([]*models.Series, int, error) {
	seriesList := []*models.Series{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&seriesList).
		ColumnExpr("s.*").
		ColumnExpr("(SELECT COUNT(*) FROM media m WHERE m.series_id = s.id AND m.deleted_at IS NULL) AS media_count").
		Order("s.name ASC")

	if opts.LibraryID != nil {
		q = q.Where("s.library_id = ?", *opts.LibraryID)
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return seriesList, total, nil
}

// BatchCreate inserts Series rows discovered during a scan's reconciliation
// phase. Series already present at the same (library_id, path) are left
// untouched by the caller's diffing logic before this is called.
func (svc *Service) BatchCreate(ctx context.Context, seriesList []*models.Series) error {
	if len(seriesList) == 0 {
		return nil
	}

	now := time.Now()
	for _, s := range seriesList {
		if s.ID == "" {
			id, err := uuid.NewRandom()
			if err != nil {
				return errors.WithStack(err)
			}
			s.ID = id.String()
		}
		if s.Status == "" {
			s.Status = models.FileStatusReady
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		s.UpdatedAt = s.CreatedAt
	}

	_, err := svc.db.
		NewInsert().
		Model(&seriesList).
		Returning("*").
		Exec(ctx)
	return errors.WithStack(err)
}

// ListByLibrary returns every non-deleted series in a library, used by the
// scanner to diff against what it found on disk.
func (svc *Service) ListByLibrary(ctx context.Context, libraryID string) ([]*models.Series, error) {
	return svc.List(ctx, ListSeriesOptions{LibraryID: &libraryID})
}

// MarkMissingByIDs flips every listed series to Missing (a series whose
// directory disappeared between scans is marked missing, not deleted)
// and clears any that had previously been marked missing but are present
// again.
func (svc *Service) MarkMissingByIDs(ctx context.Context, libraryID string, missingIDs, presentIDs []string) error {
	if len(missingIDs) > 0 {
		_, err := svc.db.NewUpdate().
			Model((*models.Series)(nil)).
			Set("status = ?", models.FileStatusMissing).
			Set("updated_at = ?", time.Now()).
			Where("library_id = ?", libraryID).
			Where("id IN (?)", bun.In(missingIDs)).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
	}

	if len(presentIDs) > 0 {
		_, err := svc.db.NewUpdate().
			Model((*models.Series)(nil)).
			Set("status = ?", models.FileStatusReady).
			Set("updated_at = ?", time.Now()).
			Where("library_id = ?", libraryID).
			Where("id IN (?)", bun.In(presentIDs)).
			Where("status = ?", models.FileStatusMissing).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
	}

	return nil
}

func (svc *Service) Update(ctx context.Context, s *models.Series, opts UpdateSeriesOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	s.UpdatedAt = time.Now()
	columns := append(append([]string{}, opts.Columns...), "updated_at")

	res, err := svc.db.
		NewUpdate().
		Model(s).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if n == 0 {
		return errcodes.NotFound("Series")
	}

	return nil
}

// Delete soft-deletes a Series together with its Media.
func (svc *Service) Delete(ctx context.Context, id string) error {
	res, err := svc.db.
		NewDelete().
		Model((*models.Series)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if n == 0 {
		return errcodes.NotFound("Series")
	}

	if _, err := svc.db.NewDelete().
		Model((*models.Media)(nil)).
		Where("series_id = ?", id).
		Exec(ctx); err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// DeleteOrphaned soft-deletes series whose directory is gone and that
// hold no remaining media, called after a scan's book tasks complete. A
// series whose directory still exists is kept even when empty, so a
// freshly-created empty series survives the scan that created it.
func (svc *Service) DeleteOrphaned(ctx context.Context, libraryID string) (int, error) {
	res, err := svc.db.NewDelete().
		Model((*models.Series)(nil)).
		Where("library_id = ?", libraryID).
		Where("status = ?", models.FileStatusMissing).
		Where("id NOT IN (SELECT DISTINCT series_id FROM media WHERE deleted_at IS NULL)").
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
