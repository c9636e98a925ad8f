// Package media owns the Media Record: a single book/issue file
// under a Series, reconciled by the Library Scanner, as a thin service
// type over bun.
package media

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

type RetrieveMediaOptions struct {
	ID string
}

type ListMediaOptions struct {
	Limit    *int
	Offset   *int
	SeriesID *string

	includeTotal bool
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) Retrieve(ctx context.Context, opts RetrieveMediaOptions) (*models.Media, error) {
	m := &models.Media{}

	err := svc.db.
		NewSelect().
		Model(m).
		Relation("Metadata").
		Where("m.id = ?", opts.ID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Media")
		}
		return nil, errors.WithStack(err)
	}

	return m, nil
}

// FindByPath answers media.find_by_path, used by the scanner to check
// whether a file it walked already has a record.
func (svc *Service) FindByPath(ctx context.Context, path string) (*models.Media, error) {
	m := &models.Media{}

	err := svc.db.
		NewSelect().
		Model(m).
		Where("m.path = ?", path).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Media")
		}
		return nil, errors.WithStack(err)
	}

	return m, nil
}

// FindByHash answers media.find_by_hash, used by the scanner to detect
// a renamed/moved file: same content hash, new path.
func (svc *Service) FindByHash(ctx context.Context, libraryID, hash string) (*models.Media, error) {
	m := &models.Media{}

	err := svc.db.
		NewSelect().
		Model(m).
		Join("JOIN series s ON s.id = m.series_id").
		Where("s.library_id = ?", libraryID).
		Where("m.hash = ?", hash).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Media")
		}
		return nil, errors.WithStack(err)
	}

	return m, nil
}

func (svc *Service) List(ctx context.Context, opts ListMediaOptions) ([]*models.Media, error) {
	m, _, err := svc.listWithTotal(ctx, opts)
	return m, errors.WithStack(err)
}

func (svc *Service) ListWithTotal(ctx context.Context, opts ListMediaOptions) ([]*models.Media, int, error) {
	opts.includeTotal = true
	return svc.listWithTotal(ctx, opts)
}

func (svc *Service) listWithTotal(ctx context.Context, opts ListMediaOptions) ([]*models.Media, int, error) {
	mediaList := []*models.Media{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&mediaList).
		Relation("Metadata").
		Order("m.name ASC")

	if opts.SeriesID != nil {
		q = q.Where("m.series_id = ?", *opts.SeriesID)
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

	return mediaList, total, nil
}

// BatchUpsert answers media.batch_upsert: the scanner's book tasks
// insert newly discovered files and update already-known ones (path rename,
// re-hash, page count) in the same batch, keyed by path uniqueness.
func (svc *Service) BatchUpsert(ctx context.Context, mediaList []*models.Media) error {
	if len(mediaList) == 0 {
		return nil
	}

	now := time.Now()
	for _, m := range mediaList {
		if m.ID == "" {
			id, err := uuid.NewRandom()
			if err != nil {
				return errors.WithStack(err)
			}
			m.ID = id.String()
		}
		if m.Status == "" {
			m.Status = models.FileStatusReady
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		m.UpdatedAt = now
	}

	return svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.
			NewInsert().
			Model(&mediaList).
			On("CONFLICT (path) DO UPDATE").
			Set("name = EXCLUDED.name").
			Set("size_bytes = EXCLUDED.size_bytes").
			Set("extension = EXCLUDED.extension").
			Set("pages = EXCLUDED.pages").
			Set("hash = EXCLUDED.hash").
			Set("status = EXCLUDED.status").
			Set("modified_at = EXCLUDED.modified_at").
			Set("series_id = EXCLUDED.series_id").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		for _, m := range mediaList {
			if m.Metadata == nil {
				continue
			}
			m.Metadata.MediaID = m.ID
			if m.Metadata.ID == "" {
				id, err := uuid.NewRandom()
				if err != nil {
					return errors.WithStack(err)
				}
				m.Metadata.ID = id.String()
			}
		}

		metas := make([]*models.MediaMetadata, 0, len(mediaList))
		for _, m := range mediaList {
			if m.Metadata != nil {
				metas = append(metas, m.Metadata)
			}
		}
		if len(metas) == 0 {
			return nil
		}

		_, err = tx.
			NewInsert().
			Model(&metas).
			On("CONFLICT (media_id) DO UPDATE").
			Set("title = EXCLUDED.title").
			Set("number = EXCLUDED.number").
			Set("summary = EXCLUDED.summary").
			Set("publisher = EXCLUDED.publisher").
			Set("writers = EXCLUDED.writers").
			Set("genres = EXCLUDED.genres").
			Set("page_count = EXCLUDED.page_count").
			Set("age_rating = EXCLUDED.age_rating").
			Set("links = EXCLUDED.links").
			Exec(ctx)
		return errors.WithStack(err)
	})
}

// MarkMissingByPaths answers media.mark_missing_by_paths: every media
// row under a library whose on-disk file the walk phase no longer saw is
// flipped to Missing rather than deleted, and any row that had previously
// been Missing but reappeared at the same path is cleared back to Ready.
func (svc *Service) MarkMissingByPaths(ctx context.Context, libraryID string, missingPaths, presentPaths []string) error {
	if len(missingPaths) > 0 {
		_, err := svc.db.NewUpdate().
			Model((*models.Media)(nil)).
			Set("status = ?", models.FileStatusMissing).
			Set("updated_at = ?", time.Now()).
			Where("path IN (?)", bun.In(missingPaths)).
			Where("series_id IN (SELECT id FROM series WHERE library_id = ?)", libraryID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
	}

	if len(presentPaths) > 0 {
		_, err := svc.db.NewUpdate().
			Model((*models.Media)(nil)).
			Set("status = ?", models.FileStatusReady).
			Set("updated_at = ?", time.Now()).
			Where("path IN (?)", bun.In(presentPaths)).
			Where("status = ?", models.FileStatusMissing).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
	}

	return nil
}

// UpdateMediaOptions mirrors libraries.UpdateLibraryOptions/series.Update's
// column-list shape.
type UpdateMediaOptions struct {
	Columns []string
}

// Update persists an edited Media row in place, keyed by id. The scanner
// uses this for its rename-detection path: on a hash match at a different
// path, the row is treated as a rename (update path): it keeps its id,
// only Path/ModifiedAt/Status (and optionally Hash/Metadata) change, so no
// duplicate row is created the way a BatchUpsert keyed on the new path
// would.
func (svc *Service) Update(ctx context.Context, m *models.Media, opts UpdateMediaOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	m.UpdatedAt = time.Now()
	columns := append(append([]string{}, opts.Columns...), "updated_at")

	res, err := svc.db.
		NewUpdate().
		Model(m).
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
		return errcodes.NotFound("Media")
	}

	if m.Metadata != nil {
		m.Metadata.MediaID = m.ID
		if m.Metadata.ID == "" {
			id, err := uuid.NewRandom()
			if err != nil {
				return errors.WithStack(err)
			}
			m.Metadata.ID = id.String()
		}
		_, err := svc.db.
			NewInsert().
			Model(m.Metadata).
			On("CONFLICT (media_id) DO UPDATE").
			Set("title = EXCLUDED.title").
			Set("number = EXCLUDED.number").
			Set("summary = EXCLUDED.summary").
			Set("publisher = EXCLUDED.publisher").
			Set("writers = EXCLUDED.writers").
			Set("genres = EXCLUDED.genres").
			Set("page_count = EXCLUDED.page_count").
			Set("age_rating = EXCLUDED.age_rating").
			Set("links = EXCLUDED.links").
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
	}

	return nil
}

// ListByLibrary returns every non-deleted media row in a library, used by
// the scanner to build its existing-path/existing-hash index once per scan
// rather than issuing one query per candidate file.
func (svc *Service) ListByLibrary(ctx context.Context, libraryID string) ([]*models.Media, error) {
	mediaList := []*models.Media{}

	err := svc.db.
		NewSelect().
		Model(&mediaList).
		Join("JOIN series s ON s.id = m.series_id").
		Where("s.library_id = ?", libraryID).
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return mediaList, nil
}

// Delete soft-deletes a Media row (e.g. when a user removes a single file
// manually; scan-discovered absence goes through MarkMissingByPaths
// instead).
func (svc *Service) Delete(ctx context.Context, id string) error {
	res, err := svc.db.
		NewDelete().
		Model((*models.Media)(nil)).
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
		return errcodes.NotFound("Media")
	}

	return nil
}
