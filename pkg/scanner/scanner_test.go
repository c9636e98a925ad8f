package scanner

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/robinjoseph08/golib/logger"
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
	_ "github.com/shishobooks/shisho/pkg/mediafile/cbz" // registers the .cbz/.zip processor
	"github.com/shishobooks/shisho/pkg/migrations"
	"github.com/shishobooks/shisho/pkg/models"
	"github.com/shishobooks/shisho/pkg/series"
	"github.com/segmentio/encoding/json"
	"github.com/uptrace/bun"
)

type testHarness struct {
	db         *bun.DB
	libraries  *libraries.Service
	series     *series.Service
	media      *media.Service
	controller *jobengine.Controller
	cfg        *config.Config
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	cfg := config.NewForTest(t.TempDir())
	db, err := database.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = migrations.BringUpToDate(context.Background(), db, false)
	require.NoError(t, err)

	librariesSvc := libraries.NewService(db)
	seriesSvc := series.NewService(db)
	mediaSvc := media.NewService(db)
	jobSvc := jobs.NewService(db)
	jobLogSvc := joblogs.NewService(db)
	hub := events.NewHub()

	h := &testHarness{
		db:        db,
		libraries: librariesSvc,
		series:    seriesSvc,
		media:     mediaSvc,
		cfg:       cfg,
	}

	h.controller = jobengine.NewController(jobSvc, jobLogSvc, hub, logger.NewWithLevel("error"))
	h.controller.Register(JobName, func(jobRecord *models.Job) jobengine.Job {
		return NewJob(*jobRecord.LibraryID, librariesSvc, seriesSvc, mediaSvc, hub, cfg.ScanConcurrency, cfg.ScanBatchSize)
	})

	return h
}

func (h *testHarness) createLibrary(t *testing.T, path string) *models.Library {
	t.Helper()
	cfg := models.DefaultLibraryConfig()
	library := &models.Library{Name: "Test Library", Path: path, ConfigParsed: &cfg}
	require.NoError(t, h.libraries.Create(context.Background(), library))
	return library
}

func (h *testHarness) runScan(t *testing.T, libraryID string) *models.Job {
	t.Helper()
	jobRecord, err := h.controller.Enqueue(context.Background(), JobName, &libraryID)
	require.NoError(t, err)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := h.controller.Report(context.Background(), jobs.ListJobsOptions{})
		require.NoError(t, err)
		for _, j := range got {
			if j.ID != jobRecord.ID {
				continue
			}
			switch j.Status {
			case models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled:
				return j
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("scan never reached a terminal state")
	return nil
}

// writeCBZ builds a minimal but valid CBZ archive: one JPEG page and an
// optional ComicInfo.xml sidecar, so mediafile.ForPath's MIME sniff and the
// cbz Processor's metadata extraction both have something real to chew on.
func writeCBZ(t *testing.T, path string, comicInfo *cbzComicInfo) {
	t.Helper()

	var imgBuf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.RGBA{R: 200, G: 50, B: 50, A: 255})
	require.NoError(t, jpeg.Encode(&imgBuf, img, nil))

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	page, err := zw.Create("001.jpg")
	require.NoError(t, err)
	_, err = page.Write(imgBuf.Bytes())
	require.NoError(t, err)

	if comicInfo != nil {
		w, err := zw.Create("ComicInfo.xml")
		require.NoError(t, err)
		data, err := xml.Marshal(comicInfo)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}

	require.NoError(t, zw.Close())
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

// cbzComicInfo is a minimal stand-in for cbz.ComicInfo (unexported in its
// own package) with the same XML root, enough to exercise title parsing.
type cbzComicInfo struct {
	XMLName xml.Name `xml:"ComicInfo"`
	Title   string   `xml:"Title"`
	Writer  string   `xml:"Writer"`
}

func TestJob_FreshSeriesBasedScan(t *testing.T) {
	h := newHarness(t)
	root := t.TempDir()
	writeCBZ(t, filepath.Join(root, "Alpha Series", "Alpha 001.cbz"), &cbzComicInfo{Title: "Issue One", Writer: "Jane Doe"})
	writeCBZ(t, filepath.Join(root, "Alpha Series", "Alpha 002.cbz"), nil)

	library := h.createLibrary(t, root)
	final := h.runScan(t, library.ID)

	assert.Equal(t, models.JobStatusCompleted, final.Status)
	require.NotNil(t, final.OutputData)

	seriesList, err := h.series.ListByLibrary(context.Background(), library.ID)
	require.NoError(t, err)
	require.Len(t, seriesList, 1)
	assert.Equal(t, "Alpha Series", seriesList[0].Name)

	mediaList, err := h.media.ListByLibrary(context.Background(), library.ID)
	require.NoError(t, err)
	assert.Len(t, mediaList, 2)
	for _, m := range mediaList {
		assert.Equal(t, models.FileStatusReady, m.Status)
		assert.NotNil(t, m.Hash)
		assert.Equal(t, 1, m.Pages)
	}
}

func TestJob_IdempotentRescan(t *testing.T) {
	h := newHarness(t)
	root := t.TempDir()
	writeCBZ(t, filepath.Join(root, "Alpha Series", "Alpha 001.cbz"), nil)

	library := h.createLibrary(t, root)
	h.runScan(t, library.ID)

	second := h.runScan(t, library.ID)
	var summary Summary
	unmarshalOutput(t, second, &summary)
	assert.Equal(t, 0, summary.CreatedMedia)
	assert.Equal(t, 0, summary.UpdatedMedia)
	assert.Empty(t, summary.Errors)
}

func TestJob_RenameDetectedAsUpdateNotDuplicate(t *testing.T) {
	h := newHarness(t)
	root := t.TempDir()
	oldPath := filepath.Join(root, "Alpha Series", "Alpha 001.cbz")
	writeCBZ(t, oldPath, nil)

	library := h.createLibrary(t, root)
	h.runScan(t, library.ID)

	before, err := h.media.ListByLibrary(context.Background(), library.ID)
	require.NoError(t, err)
	require.Len(t, before, 1)
	originalID := before[0].ID

	newPath := filepath.Join(root, "Alpha Series", "Alpha 001 (renamed).cbz")
	require.NoError(t, os.Rename(oldPath, newPath))

	h.runScan(t, library.ID)

	after, err := h.media.ListByLibrary(context.Background(), library.ID)
	require.NoError(t, err)
	require.Len(t, after, 1, "a rename must not create a second media row")
	assert.Equal(t, originalID, after[0].ID)
	assert.Equal(t, newPath, after[0].Path)
}

func TestJob_MissingFileMarkedMissingNotDeleted(t *testing.T) {
	h := newHarness(t)
	root := t.TempDir()
	path := filepath.Join(root, "Alpha Series", "Alpha 001.cbz")
	writeCBZ(t, path, nil)

	library := h.createLibrary(t, root)
	h.runScan(t, library.ID)

	require.NoError(t, os.Remove(path))

	final := h.runScan(t, library.ID)
	var summary Summary
	unmarshalOutput(t, final, &summary)
	assert.Equal(t, 1, summary.MissingMedia)

	after, err := h.media.ListByLibrary(context.Background(), library.ID)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, models.FileStatusMissing, after[0].Status)
}

func TestJob_ZeroPageArchiveFlaggedAsError(t *testing.T) {
	h := newHarness(t)
	root := t.TempDir()

	// A valid zip with no image entries at all.
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("notes.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("not an image"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	path := filepath.Join(root, "Alpha Series", "empty.cbz")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	library := h.createLibrary(t, root)
	final := h.runScan(t, library.ID)
	assert.Equal(t, models.JobStatusCompleted, final.Status)

	mediaList, err := h.media.ListByLibrary(context.Background(), library.ID)
	require.NoError(t, err)
	require.Len(t, mediaList, 1)
	assert.Equal(t, 0, mediaList[0].Pages)
	assert.Equal(t, models.FileStatusError, mediaList[0].Status)
}

func unmarshalOutput(t *testing.T, j *models.Job, v *Summary) {
	t.Helper()
	require.NotNil(t, j.OutputData)
	require.NoError(t, json.Unmarshal([]byte(*j.OutputData), v))
}
