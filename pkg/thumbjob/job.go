// Package thumbjob implements the Thumbnail Generation Job: for every
// Ready media row in a library, ensure a cached thumbnail exists,
// bounding concurrent generation with a semaphore the way the scanner
// bounds concurrent file processing.
package thumbjob

import (
	"context"
	"sync"

	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"golang.org/x/sync/semaphore"

	"github.com/shishobooks/shisho/pkg/errcodes"
	"github.com/shishobooks/shisho/pkg/jobengine"
	"github.com/shishobooks/shisho/pkg/libraries"
	"github.com/shishobooks/shisho/pkg/media"
	"github.com/shishobooks/shisho/pkg/models"
	"github.com/shishobooks/shisho/pkg/thumbnails"
)

const JobName = models.JobTypeThumbnailGeneration

type batchTask struct {
	media []*models.Media
}

type Summary struct {
	Generated int      `json:"generated"`
	Errors    []string `json:"errors,omitempty"`
}

// Job enumerates a library's media and delegates each to
// thumbnails.Store.Ensure.
type Job struct {
	libraryID   string
	libraries   *libraries.Service
	media       *media.Service
	store       *thumbnails.Store
	concurrency int
	batchSize   int

	opts thumbnails.Options

	mu         sync.Mutex
	processed  int
	totalMedia int
	summary    Summary
}

func NewJob(libraryID string, librariesSvc *libraries.Service, mediaSvc *media.Service, store *thumbnails.Store, concurrency, batchSize int) *Job {
	return &Job{
		libraryID:   libraryID,
		libraries:   librariesSvc,
		media:       mediaSvc,
		store:       store,
		concurrency: concurrency,
		batchSize:   batchSize,
	}
}

func (j *Job) Name() string { return JobName }

// Init loads the library's thumbnail configuration (failing the job if the
// quality/format combination is invalid) and plans one batch task per
// batchSize Ready media rows.
func (j *Job) Init(ctx context.Context, wctx *jobengine.WorkerCtx) (*jobengine.InitResult, error) {
	library, err := j.libraries.Retrieve(ctx, libraries.RetrieveLibraryOptions{ID: j.libraryID})
	if err != nil {
		return nil, err
	}

	cfg := library.ConfigParsed
	j.opts = thumbnails.Options{
		Width:   cfg.ThumbnailWidth,
		Height:  cfg.ThumbnailHeight,
		Format:  cfg.ThumbnailFormat,
		Quality: cfg.ThumbnailQuality,
	}
	if err := j.opts.Validate(); err != nil {
		return nil, err
	}

	mediaList, err := j.media.ListByLibrary(ctx, j.libraryID)
	if err != nil {
		return nil, err
	}

	ready := make([]*models.Media, 0, len(mediaList))
	for _, m := range mediaList {
		if m.Status == models.FileStatusReady {
			ready = append(ready, m)
		}
	}
	j.totalMedia = len(ready)

	var tasks []jobengine.Task
	for i := 0; i < len(ready); i += j.batchSize {
		end := i + j.batchSize
		if end > len(ready) {
			end = len(ready)
		}
		tasks = append(tasks, batchTask{media: ready[i:end]})
	}

	return &jobengine.InitResult{Tasks: tasks}, nil
}

// ExecuteTask fans a batch out across a semaphore-bounded worker pool,
// mirroring the scanner's per-batch concurrency, and reports one
// progress tick per media as each Ensure call finishes rather than one tick
// per batch.
func (j *Job) ExecuteTask(ctx context.Context, wctx *jobengine.WorkerCtx, task jobengine.Task) error {
	batch := task.(batchTask)

	sem := semaphore.NewWeighted(int64(j.concurrency))
	var wg sync.WaitGroup

	for _, m := range batch.media {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(m *models.Media) {
			defer wg.Done()
			defer sem.Release(1)

			_, err := j.store.Ensure(ctx, thumbnails.Source{
				MediaID: m.ID,
				Path:    m.Path,
				Ext:     m.Extension,
			}, j.opts)
			j.tick(wctx, m, err)
		}(m)
	}

	wg.Wait()
	return nil
}

// tick records one media's outcome and reports progress against the job's
// real media count, independent of how many media a single batch task
// covers.
func (j *Job) tick(wctx *jobengine.WorkerCtx, m *models.Media, err error) {
	j.mu.Lock()
	if err != nil {
		if !errcodes.IsCode(err, errcodes.CodeUnsupportedFileType) {
			j.summary.Errors = append(j.summary.Errors, m.Path+": "+err.Error())
		}
	} else {
		j.summary.Generated++
	}
	j.processed++
	n := j.processed
	j.mu.Unlock()

	wctx.ReportProgress(n, j.totalMedia, "")
	if n%500 == 0 {
		wctx.Log.Info("thumbnail generation progress", logger.Data{"processed": n, "total": j.totalMedia})
	}
}

func (j *Job) Finalize(ctx context.Context, wctx *jobengine.WorkerCtx) ([]byte, error) {
	return json.Marshal(j.summary)
}
