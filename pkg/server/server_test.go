package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shishobooks/shisho/pkg/config"
	"github.com/shishobooks/shisho/pkg/database"
	"github.com/shishobooks/shisho/pkg/events"
	"github.com/shishobooks/shisho/pkg/jobengine"
	"github.com/shishobooks/shisho/pkg/joblogs"
	"github.com/shishobooks/shisho/pkg/jobs"
	"github.com/shishobooks/shisho/pkg/libraries"
	"github.com/shishobooks/shisho/pkg/media"
	_ "github.com/shishobooks/shisho/pkg/mediafile/cbz"
	"github.com/shishobooks/shisho/pkg/migrations"
	"github.com/shishobooks/shisho/pkg/models"
	"github.com/shishobooks/shisho/pkg/scanner"
	"github.com/shishobooks/shisho/pkg/series"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	cfg := config.NewForTest(t.TempDir())
	db, err := database.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = migrations.BringUpToDate(context.Background(), db, false)
	require.NoError(t, err)

	hub := events.NewHub()
	controller := jobengine.NewController(jobs.NewService(db), joblogs.NewService(db), hub, logger.NewWithLevel("error"))

	librariesSvc := libraries.NewService(db)
	seriesSvc := series.NewService(db)
	mediaSvc := media.NewService(db)
	controller.Register(scanner.JobName, func(jobRecord *models.Job) jobengine.Job {
		return scanner.NewJob(*jobRecord.LibraryID, librariesSvc, seriesSvc, mediaSvc, hub, cfg.ScanConcurrency, cfg.ScanBatchSize)
	})

	return New(cfg, db, controller).Handler
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_LibraryCreateRetrieveList(t *testing.T) {
	h := newTestHandler(t)
	root := t.TempDir()

	rec := doJSON(t, h, http.MethodPost, "/libraries", map[string]interface{}{
		"name": "Comics",
		"path": root,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var created models.Library
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	rec = doJSON(t, h, http.MethodGet, "/libraries/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/libraries", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), created.ID)
}

func TestServer_UnknownLibraryIs404(t *testing.T) {
	h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/libraries/nonexistent", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "not_found")
}

func TestServer_EnqueueScanAndListJobs(t *testing.T) {
	h := newTestHandler(t)
	root := t.TempDir()

	rec := doJSON(t, h, http.MethodPost, "/libraries", map[string]interface{}{
		"name": "Comics",
		"path": root,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var library models.Library
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &library))

	rec = doJSON(t, h, http.MethodPost, "/jobs", map[string]interface{}{
		"name":       scanner.JobName,
		"library_id": library.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var jobRecord models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobRecord))
	require.NotEmpty(t, jobRecord.ID)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec = doJSON(t, h, http.MethodGet, "/jobs/"+jobRecord.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var got models.Job
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		if got.Status == models.JobStatusCompleted {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("scan enqueued over HTTP never completed")
}

func TestServer_JobLogsRouteRequiresExistingJob(t *testing.T) {
	h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/jobs/nonexistent/logs", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
