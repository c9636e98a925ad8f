package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"golang.org/x/sync/semaphore"

	"github.com/shishobooks/shisho/pkg/events"
	"github.com/shishobooks/shisho/pkg/jobengine"
	"github.com/shishobooks/shisho/pkg/libraries"
	"github.com/shishobooks/shisho/pkg/media"
	"github.com/shishobooks/shisho/pkg/mediafile"
	"github.com/shishobooks/shisho/pkg/models"
	"github.com/shishobooks/shisho/pkg/series"
)

// JobName is the jobs.Name value persisted for every scan, matching
// models.JobTypeScan.
const JobName = models.JobTypeScan

// bookCandidate is a walked file paired with the series it was resolved
// to belong to, once Phase B has assigned every series a durable id.
type bookCandidate struct {
	Path     string
	SeriesID string
}

// batchTask is one jobengine.Task: a slice of candidates no larger than
// the job's configured batch size, processed concurrently and persisted
// in a single write: writes flush every N completions (default 50) or on
// phase boundaries.
type batchTask struct {
	candidates []bookCandidate
}

// Summary is the JSON-encoded job output_data recorded on completion.
type Summary struct {
	CreatedMedia  int      `json:"created_media"`
	UpdatedMedia  int      `json:"updated_media"`
	IgnoredFiles  int      `json:"ignored_files"`
	MissingMedia  int      `json:"missing_media"`
	MissingSeries int      `json:"missing_series"`
	Errors        []string `json:"errors,omitempty"`
}

// Job implements jobengine.Job for the Library Scan: Walk & Plan,
// series reconciliation, then concurrent batched book processing.
type Job struct {
	libraryID   string
	libraries   *libraries.Service
	series      *series.Service
	media       *media.Service
	hub         *events.Hub
	concurrency int
	batchSize   int

	mu           sync.Mutex
	libCfg       *models.LibraryConfig
	existingPath map[string]*models.Media
	existingHash map[string]*models.Media
	seenPaths    map[string]bool
	summary      Summary
}

// NewJob constructs a scan Job for a single library. concurrency and
// batchSize come straight from config.Config's ScanConcurrency/
// ScanBatchSize, with the library's own config overrides applied by the caller before construction.
func NewJob(libraryID string, librariesSvc *libraries.Service, seriesSvc *series.Service, mediaSvc *media.Service, hub *events.Hub, concurrency, batchSize int) *Job {
	if concurrency < 1 {
		concurrency = 1
	}
	if batchSize < 1 {
		batchSize = 50
	}
	return &Job{
		libraryID:   libraryID,
		libraries:   librariesSvc,
		series:      seriesSvc,
		media:       mediaSvc,
		hub:         hub,
		concurrency: concurrency,
		batchSize:   batchSize,
	}
}

func (j *Job) Name() string { return JobName }

// Init runs Phase A (walk the tree) and Phase B (series reconciliation),
// planning Phase C's book tasks as batches of candidate paths.
func (j *Job) Init(ctx context.Context, wctx *jobengine.WorkerCtx) (*jobengine.InitResult, error) {
	library, err := j.libraries.Retrieve(ctx, libraries.RetrieveLibraryOptions{ID: j.libraryID})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if _, err := os.Stat(library.Path); err != nil {
		// An inaccessible library root is a fatal precondition: the
		// scan never reaches Running-with-tasks, it fails in Init.
		_ = j.libraries.UpdateStatus(ctx, j.libraryID, models.FileStatusMissing, nil)
		j.hub.Publish(events.NewDiscoveredMissingLibrary(library.Path))
		return nil, errors.Wrapf(err, "library path %s is not accessible", library.Path)
	}

	j.libCfg = library.ConfigParsed

	walked, err := Walk(library.Path, library.ConfigParsed)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	seriesIDs, createdCount, missingSeries, err := j.reconcileSeries(ctx, walked.SeriesDirs)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if createdCount > 0 {
		j.hub.Publish(events.NewCreatedManySeries(createdCount, j.libraryID))
	}

	existingMedia, err := j.media.ListByLibrary(ctx, j.libraryID)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	j.existingPath = make(map[string]*models.Media, len(existingMedia))
	j.existingHash = make(map[string]*models.Media, len(existingMedia))
	for _, m := range existingMedia {
		j.existingPath[m.Path] = m
		if m.Hash != nil {
			j.existingHash[*m.Hash] = m
		}
	}
	j.seenPaths = make(map[string]bool, len(walked.Candidates))
	j.summary = Summary{IgnoredFiles: walked.Ignored, MissingSeries: missingSeries}

	candidates := make([]bookCandidate, 0, len(walked.Candidates))
	for _, c := range walked.Candidates {
		seriesID, ok := seriesIDs[c.SeriesPath]
		if !ok {
			// A candidate under a directory that failed reconciliation
			// (shouldn't happen, but guards against a Walk/reconcile
			// mismatch) is skipped rather than crashing the scan.
			continue
		}
		candidates = append(candidates, bookCandidate{Path: c.Path, SeriesID: seriesID})
	}
	sort.Slice(candidates, func(i, k int) bool { return candidates[i].Path < candidates[k].Path })

	tasks := make([]jobengine.Task, 0, (len(candidates)/j.batchSize)+1)
	for start := 0; start < len(candidates); start += j.batchSize {
		end := start + j.batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		tasks = append(tasks, &batchTask{candidates: candidates[start:end]})
	}

	return &jobengine.InitResult{Tasks: tasks}, nil
}

// reconcileSeries is Phase B: every series directory the walk saw
// gets a Series row (creating any that are new), and any previously known
// series whose directory disappeared is marked Missing.
func (j *Job) reconcileSeries(ctx context.Context, seriesDirs map[string]string) (map[string]string, int, int, error) {
	existing, err := j.series.ListByLibrary(ctx, j.libraryID)
	if err != nil {
		return nil, 0, 0, errors.WithStack(err)
	}

	byPath := make(map[string]*models.Series, len(existing))
	for _, s := range existing {
		byPath[s.Path] = s
	}

	ids := make(map[string]string, len(seriesDirs))
	var toCreate []*models.Series
	var presentIDs []string

	for path, name := range seriesDirs {
		if s, ok := byPath[path]; ok {
			ids[path] = s.ID
			presentIDs = append(presentIDs, s.ID)
			continue
		}
		s := &models.Series{LibraryID: j.libraryID, Name: name, Path: path}
		toCreate = append(toCreate, s)
	}

	if err := j.series.BatchCreate(ctx, toCreate); err != nil {
		return nil, 0, 0, errors.WithStack(err)
	}
	for _, s := range toCreate {
		ids[s.Path] = s.ID
	}

	var missingIDs []string
	for path, s := range byPath {
		if _, ok := seriesDirs[path]; !ok {
			missingIDs = append(missingIDs, s.ID)
		}
	}

	if err := j.series.MarkMissingByIDs(ctx, j.libraryID, missingIDs, presentIDs); err != nil {
		return nil, 0, 0, errors.WithStack(err)
	}

	return ids, len(toCreate), len(missingIDs), nil
}

// ExecuteTask processes one batch of candidates concurrently (bounded by
// ScanConcurrency) and flushes the whole batch in a single persistence
// call.
func (j *Job) ExecuteTask(ctx context.Context, wctx *jobengine.WorkerCtx, task jobengine.Task) error {
	batch, ok := task.(*batchTask)
	if !ok {
		return errors.Errorf("scanner: unexpected task type %T", task)
	}

	sem := semaphore.NewWeighted(int64(j.concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var toUpsert []*models.Media
	var taskErrs []string

	for _, cand := range batch.candidates {
		if wctx.Cancelled() {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func(cand bookCandidate) {
			defer wg.Done()
			defer sem.Release(1)

			m, skip, err := j.processOne(ctx, wctx, cand)
			mu.Lock()
			defer mu.Unlock()
			j.seenPaths[cand.Path] = true
			if err != nil {
				taskErrs = append(taskErrs, errors.Wrap(err, cand.Path).Error())
				return
			}
			if !skip && m != nil {
				toUpsert = append(toUpsert, m)
			}
		}(cand)
	}
	wg.Wait()

	// Conversion can make two candidates resolve to the same on-disk file
	// (a .cbr and its converted .cbz); collapse them so the batch upsert
	// never carries two rows with the same path.
	byPath := make(map[string]int, len(toUpsert))
	deduped := toUpsert[:0]
	for _, m := range toUpsert {
		if i, ok := byPath[m.Path]; ok {
			deduped[i] = m
			continue
		}
		byPath[m.Path] = len(deduped)
		deduped = append(deduped, m)
	}
	toUpsert = deduped

	if len(toUpsert) > 0 {
		if err := j.media.BatchUpsert(ctx, toUpsert); err != nil {
			return errors.WithStack(err)
		}
		for _, m := range toUpsert {
			j.existingPath[m.Path] = m
			if m.Hash != nil {
				j.existingHash[*m.Hash] = m
			}
		}
		j.hub.Publish(events.NewCreatedOrUpdatedManyMedia(len(toUpsert), toUpsert[0].SeriesID))
	}

	j.mu.Lock()
	for _, e := range taskErrs {
		j.summary.Errors = append(j.summary.Errors, e)
	}
	j.mu.Unlock()

	if len(taskErrs) > 0 {
		// Returned so the engine logs it against this task; a batch's
		// partial failure never fails the whole job.
		return errors.Errorf("%d file(s) in batch failed", len(taskErrs))
	}

	return nil
}

// processOne runs the hash + metadata extraction for a single candidate
// against the pre-loaded existing-media index, classifying it into one of
// four outcomes (unchanged, rename, new, updated). skip=true means the
// file was unchanged and needs no write.
func (j *Job) processOne(ctx context.Context, wctx *jobengine.WorkerCtx, cand bookCandidate) (m *models.Media, skip bool, err error) {
	ext := strings.ToLower(filepath.Ext(cand.Path))
	if j.libCfg != nil && j.libCfg.ConvertRarToZip && (ext == ".cbr" || ext == ".rar") {
		converted, convErr := convertRarToZip(cand.Path, j.libCfg.HardDeleteConversions)
		if convErr != nil {
			wctx.Log.Warn("failed to convert rar archive", logger.Data{"path": cand.Path, "error": convErr.Error()})
		} else {
			j.mu.Lock()
			j.seenPaths[converted] = true
			j.mu.Unlock()
			cand.Path = converted
		}
	}

	info, err := os.Stat(cand.Path)
	if err != nil {
		return nil, false, errors.WithStack(err)
	}

	existing := j.existingPath[cand.Path]
	if existing != nil && existing.ModifiedAt.Equal(info.ModTime()) && existing.SizeBytes == info.Size() &&
		(existing.Status == models.FileStatusReady || existing.Status == models.FileStatusError) {
		// Unchanged: neither mtime nor size moved since the last scan. An
		// Error row stays flagged until the file itself changes; a Missing
		// row that reappeared falls through so it is re-processed.
		return nil, true, nil
	}

	proc, err := mediafile.ForPath(cand.Path)
	if err != nil {
		return nil, false, errors.WithStack(err)
	}

	hash, err := mediafile.HashFile(proc, cand.Path, info.Size())
	if err != nil {
		return nil, false, errors.WithStack(err)
	}

	j.mu.Lock()
	byHash := j.existingHash[hash]
	j.mu.Unlock()

	if existing == nil && byHash != nil {
		// Same content hash at a different path: treat as a rename
		// if the old path no longer exists on disk; otherwise it is an
		// intentional duplicate and both rows are kept.
		if _, statErr := os.Stat(byHash.Path); os.IsNotExist(statErr) {
			byHash.Path = cand.Path
			byHash.SeriesID = cand.SeriesID
			byHash.ModifiedAt = info.ModTime()
			byHash.Status = models.FileStatusReady
			if err := j.media.Update(ctx, byHash, media.UpdateMediaOptions{
				Columns: []string{"path", "series_id", "modified_at", "status"},
			}); err != nil {
				return nil, false, errors.WithStack(err)
			}
			j.markUpdated(true)
			return nil, true, nil
		}
	}

	processed, err := proc.Process(cand.Path)
	if err != nil {
		wctx.Log.Warn("failed to extract metadata", logger.Data{"path": cand.Path, "error": err.Error()})
	}

	mediaRow := &models.Media{
		Path:       cand.Path,
		Name:       filepath.Base(cand.Path),
		SizeBytes:  info.Size(),
		Extension:  filepath.Ext(cand.Path),
		Hash:       &hash,
		Status:     models.FileStatusReady,
		ModifiedAt: info.ModTime(),
		SeriesID:   cand.SeriesID,
	}
	if existing != nil {
		mediaRow.ID = existing.ID
	}
	if processed != nil {
		mediaRow.Pages = processed.Pages
		if processed.Metadata != nil {
			mediaRow.Metadata = metadataToModel(processed.Metadata)
		}
	}
	if processed == nil || processed.Pages == 0 {
		// A file that failed metadata extraction, or an archive with
		// zero readable pages, is kept but flagged.
		mediaRow.Status = models.FileStatusError
	}

	j.markUpdated(existing != nil)
	return mediaRow, false, nil
}

func (j *Job) markUpdated(wasExisting bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if wasExisting {
		j.summary.UpdatedMedia++
	} else {
		j.summary.CreatedMedia++
	}
}

func metadataToModel(p *mediafile.ParsedMetadata) *models.MediaMetadata {
	return &models.MediaMetadata{
		Title:     p.Title,
		Number:    p.Number,
		Summary:   p.Summary,
		Publisher: p.Publisher,
		Writers:   models.StringList(p.Writers),
		Genres:    models.StringList(p.Genres),
		PageCount: p.PageCount,
		AgeRating: p.AgeRating,
		Links:     models.StringList(p.Links),
	}
}

// Finalize runs the final mark-missing sweep and orphaned-series cleanup,
// and returns the scan's JSON summary as the job's output_data.
func (j *Job) Finalize(ctx context.Context, wctx *jobengine.WorkerCtx) ([]byte, error) {
	// Walk by the media's current path, not the map key it was indexed
	// under at Init: a rename mutates existing.Path in place without
	// re-keying existingPath, so the key can be stale by the time Finalize
	// runs.
	var missingPaths, presentPaths []string
	seen := make(map[string]bool, len(j.existingPath))
	for _, m := range j.existingPath {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true

		if j.seenPaths[m.Path] {
			if m.Status == models.FileStatusMissing {
				presentPaths = append(presentPaths, m.Path)
			}
			continue
		}
		if m.Status != models.FileStatusMissing {
			missingPaths = append(missingPaths, m.Path)
		}
	}

	if err := j.media.MarkMissingByPaths(ctx, j.libraryID, missingPaths, presentPaths); err != nil {
		return nil, errors.WithStack(err)
	}
	j.summary.MissingMedia = len(missingPaths)

	if _, err := j.series.DeleteOrphaned(ctx, j.libraryID); err != nil {
		return nil, errors.WithStack(err)
	}

	now := time.Now()
	if err := j.libraries.UpdateStatus(ctx, j.libraryID, models.FileStatusReady, &now); err != nil {
		return nil, errors.WithStack(err)
	}

	data, err := json.Marshal(j.summary)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return data, nil
}
