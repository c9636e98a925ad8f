// Package libraries owns the Library Record: the scan root a user
// registers, its resolved LibraryConfig, and its current status, as a thin
// service type over bun.
package libraries

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

type RetrieveLibraryOptions struct {
	ID   string
	Path string
}

type ListLibrariesOptions struct {
	Limit          *int
	Offset         *int
	IncludeDeleted bool

	includeTotal bool
}

type UpdateLibraryOptions struct {
	Columns []string
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

// Create inserts a new Library. A library without an explicit config gets
// the defaults.
func (svc *Service) Create(ctx context.Context, library *models.Library) error {
	if library.ID == "" {
		id, err := uuid.NewRandom()
		if err != nil {
			return errors.WithStack(err)
		}
		library.ID = id.String()
	}
	if library.Status == "" {
		library.Status = models.FileStatusReady
	}

	now := time.Now()
	if library.CreatedAt.IsZero() {
		library.CreatedAt = now
	}
	library.UpdatedAt = library.CreatedAt

	if err := library.MarshalConfig(); err != nil {
		return errors.WithStack(err)
	}

	_, err := svc.db.
		NewInsert().
		Model(library).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// Retrieve fetches a Library by id or path, relying on the uniqueness
// constraint on path.
func (svc *Service) Retrieve(ctx context.Context, opts RetrieveLibraryOptions) (*models.Library, error) {
	library := &models.Library{}

	q := svc.db.
		NewSelect().
		Model(library)

	if opts.ID != "" {
		q = q.Where("l.id = ?", opts.ID)
	}
	if opts.Path != "" {
		q = q.Where("l.path = ?", opts.Path)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Library")
		}
		return nil, errors.WithStack(err)
	}

	if err := library.UnmarshalConfig(); err != nil {
		return nil, errors.WithStack(err)
	}

	return library, nil
}

func (svc *Service) List(ctx context.Context, opts ListLibrariesOptions) ([]*models.Library, error) {
	l, _, err := svc.listWithTotal(ctx, opts)
	return l, errors.WithStack(err)
}

// ListWithTotal lists libraries matching opts, including the total count
// for pagination.
func (svc *Service) ListWithTotal(ctx context.Context, opts ListLibrariesOptions) ([]*models.Library, int, error) {
	opts.includeTotal = true
	return svc.listWithTotal(ctx, opts)
}

func (svc *Service) listWithTotal(ctx context.Context, opts ListLibrariesOptions) ([]*models.Library, int, error) {
	libraryList := []*models.Library{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&libraryList).
		Order("l.name ASC")

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}
	if opts.IncludeDeleted {
		q = q.WhereAllWithDeleted()
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	for _, library := range libraryList {
		if err := library.UnmarshalConfig(); err != nil {
			return nil, 0, errors.WithStack(err)
		}
	}

	return libraryList, total, nil
}

// ListAll returns every non-deleted library, used by the Scheduler
// to enumerate scan targets.
func (svc *Service) ListAll(ctx context.Context) ([]*models.Library, error) {
	return svc.List(ctx, ListLibrariesOptions{})
}

// Update persists an edited Library, covering both status transitions and
// general field edits (name, config).
func (svc *Service) Update(ctx context.Context, library *models.Library, opts UpdateLibraryOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	if containsColumn(opts.Columns, "config") {
		if err := library.MarshalConfig(); err != nil {
			return errors.WithStack(err)
		}
	}

	library.UpdatedAt = time.Now()
	columns := append(append([]string{}, opts.Columns...), "updated_at")

	res, err := svc.db.
		NewUpdate().
		Model(library).
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
		return errcodes.NotFound("Library")
	}

	return nil
}

// UpdateStatus is a narrow convenience over Update for the common case of
// flipping status (and optionally last_scanned_at) after a scan completes.
func (svc *Service) UpdateStatus(ctx context.Context, id string, status string, scannedAt *time.Time) error {
	library := &models.Library{ID: id, Status: status}
	columns := []string{"status"}
	if scannedAt != nil {
		library.LastScannedAt = scannedAt
		columns = append(columns, "last_scanned_at")
	}
	return svc.Update(ctx, library, UpdateLibraryOptions{Columns: columns})
}

// Delete soft-deletes a Library together with its Series and their Media;
// callers scrub the on-disk thumbnail cache separately.
func (svc *Service) Delete(ctx context.Context, id string) error {
	res, err := svc.db.
		NewDelete().
		Model((*models.Library)(nil)).
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
		return errcodes.NotFound("Library")
	}

	if _, err := svc.db.NewDelete().
		Model((*models.Media)(nil)).
		Where("series_id IN (SELECT id FROM series WHERE library_id = ?)", id).
		Exec(ctx); err != nil {
		return errors.WithStack(err)
	}
	if _, err := svc.db.NewDelete().
		Model((*models.Series)(nil)).
		Where("library_id = ?", id).
		Exec(ctx); err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func containsColumn(columns []string, name string) bool {
	for _, c := range columns {
		if c == name {
			return true
		}
	}
	return false
}
