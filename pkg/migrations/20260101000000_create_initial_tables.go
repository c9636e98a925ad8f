package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE libraries (
				id TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				name TEXT NOT NULL,
				path TEXT NOT NULL UNIQUE,
				status TEXT NOT NULL DEFAULT 'ready',
				config TEXT NOT NULL DEFAULT '{}',
				last_scanned_at TIMESTAMPTZ,
				deleted_at TIMESTAMPTZ
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE series (
				id TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				library_id TEXT REFERENCES libraries (id) NOT NULL,
				name TEXT NOT NULL,
				path TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'ready',
				metadata TEXT,
				deleted_at TIMESTAMPTZ,
				UNIQUE (library_id, path)
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_series_library_id ON series (library_id)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE media (
				id TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				series_id TEXT REFERENCES series (id) NOT NULL,
				name TEXT NOT NULL,
				path TEXT NOT NULL UNIQUE,
				size_bytes INTEGER NOT NULL DEFAULT 0,
				extension TEXT NOT NULL,
				pages INTEGER NOT NULL DEFAULT 0,
				hash TEXT,
				status TEXT NOT NULL DEFAULT 'ready',
				modified_at TIMESTAMPTZ,
				deleted_at TIMESTAMPTZ
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_media_series_id ON media (series_id)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_media_hash ON media (hash)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE media_metadata (
				id TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				media_id TEXT REFERENCES media (id) NOT NULL UNIQUE,
				title TEXT,
				number REAL,
				summary TEXT,
				publisher TEXT,
				writers TEXT,
				genres TEXT,
				page_count INTEGER NOT NULL DEFAULT 0,
				age_rating INTEGER,
				links TEXT
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE jobs (
				id TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				name TEXT NOT NULL,
				description TEXT,
				status TEXT NOT NULL,
				library_id TEXT REFERENCES libraries (id),
				save_state TEXT,
				output_data TEXT,
				ms_elapsed INTEGER NOT NULL DEFAULT 0,
				completed_at TIMESTAMPTZ
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_jobs_status ON jobs (status)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE logs (
				id TEXT PRIMARY KEY,
				level TEXT NOT NULL,
				message TEXT NOT NULL,
				timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				job_id TEXT REFERENCES jobs (id) ON DELETE CASCADE,
				context TEXT
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_logs_job_id ON logs (job_id)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE sessions (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				expiry TIMESTAMPTZ NOT NULL
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_sessions_expiry ON sessions (expiry)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE reading_sessions (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				media_id TEXT REFERENCES media (id) NOT NULL,
				page INTEGER,
				epubcfi TEXT,
				percentage_completed REAL,
				started_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE (user_id, media_id)
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE finished_reading_sessions (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				media_id TEXT REFERENCES media (id) NOT NULL,
				started_at TIMESTAMPTZ NOT NULL,
				finished_at TIMESTAMPTZ NOT NULL
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_finished_reading_sessions_user_media ON finished_reading_sessions (user_id, media_id)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE bookmarks (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				media_id TEXT REFERENCES media (id) NOT NULL,
				page INTEGER,
				epubcfi TEXT,
				preview_content TEXT
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_bookmarks_user_media ON bookmarks (user_id, media_id)`)
		if err != nil {
			return errors.WithStack(err)
		}

		return nil
	}

	down := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			DROP TABLE IF EXISTS bookmarks;
			DROP TABLE IF EXISTS finished_reading_sessions;
			DROP TABLE IF EXISTS reading_sessions;
			DROP TABLE IF EXISTS sessions;
			DROP TABLE IF EXISTS logs;
			DROP TABLE IF EXISTS jobs;
			DROP TABLE IF EXISTS media_metadata;
			DROP TABLE IF EXISTS media;
			DROP TABLE IF EXISTS series;
			DROP TABLE IF EXISTS libraries;
`)
		return errors.WithStack(err)
	}

	Migrations.MustRegister(up, down)
}
