// Package thumbnails implements the content-addressed thumbnail cache:
// one file per media id under a configured directory, generated
// on-demand from a media's cover page and never regenerated concurrently
// for the same id.
package thumbnails

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"

	"github.com/shishobooks/shisho/pkg/errcodes"
	"github.com/shishobooks/shisho/pkg/mediafile"
)

// thumbnailExtensions enumerates the possible on-disk extensions, consulted whenever a lookup doesn't already
// know which one a given media id was generated with.
var thumbnailExtensions = []string{"webp", "jpg", "png"}

// Source is the subset of a Media row Ensure needs to locate and decode a
// cover image, kept narrow so this package stays free of the media
// package's own domain knowledge (mirrors jobengine.WorkerCtx's
// capability-surface style).
type Source struct {
	MediaID string
	Path    string
	Ext     string
}

// Options configures image generation, mapping 1:1 onto
// models.LibraryConfig's Thumbnail* fields.
type Options struct {
	Width   int
	Height  int
	Format  string // "webp", "jpg", or "png"
	Quality int    // [0, 100]
}

// Validate enforces that Quality is in [0, 100]; an invalid config fails
// job init.
func (o Options) Validate() error {
	if o.Quality < 0 || o.Quality > 100 {
		return errors.Errorf("thumbnail quality %d out of range [0, 100]", o.Quality)
	}
	switch o.Format {
	case "webp", "jpg", "png":
	default:
		return errors.Errorf("unsupported thumbnail format %q", o.Format)
	}
	return nil
}

func (o Options) extension() string {
	return o.Format
}

// Store is the thumbnail cache, rooted at a single directory
// (config.Config.ThumbnailsDir) with one file per media id, named
// "<media_id>.<ext>" (no subdirectories).
type Store struct {
	dir string

	mu       sync.Mutex
	inflight map[string]*sync.Mutex
}

func NewStore(dir string) *Store {
	return &Store{
		dir:      dir,
		inflight: make(map[string]*sync.Mutex),
	}
}

// Get answers store.get(media_id): returns the cached bytes and their
// content type, or errcodes.NotFound if nothing has been generated yet.
func (s *Store) Get(mediaID string) (contentType string, data []byte, err error) {
	for _, ext := range thumbnailExtensions {
		path := filepath.Join(s.dir, mediaID+"."+ext)
		data, err := os.ReadFile(path)
		if err == nil {
			return contentTypeForExt(ext), data, nil
		}
		if !os.IsNotExist(err) {
			return "", nil, errcodes.Io(err)
		}
	}
	return "", nil, errcodes.NotFound("Thumbnail")
}

func contentTypeForExt(ext string) string {
	switch ext {
	case "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	default:
		return "image/webp"
	}
}

// Put writes a thumbnail for a media id: atomic write via
// temp-file-then-rename, since a page-serving collaborator (out of scope
// here) must never observe a partially-written thumbnail.
func (s *Store) Put(mediaID, ext string, data []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", errcodes.Io(err)
	}

	final := filepath.Join(s.dir, mediaID+"."+ext)
	tmp, err := os.CreateTemp(s.dir, mediaID+".*.tmp")
	if err != nil {
		return "", errcodes.Io(err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", errcodes.Io(err)
	}
	if err := tmp.Close(); err != nil {
		return "", errcodes.Io(err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		return "", errcodes.Io(err)
	}

	return final, nil
}

// Remove answers store.remove(media_ids[]) -> count, deleting
// whichever of the possible extensions exists for each id.
func (s *Store) Remove(mediaIDs []string) (int, error) {
	count := 0
	for _, id := range mediaIDs {
		for _, ext := range thumbnailExtensions {
			path := filepath.Join(s.dir, id+"."+ext)
			if err := os.Remove(path); err != nil {
				if !os.IsNotExist(err) {
					return count, errcodes.Io(err)
				}
				continue
			}
			count++
		}
	}
	return count, nil
}

// Ensure answers store.ensure(media_id, source) -> path: generates a
// thumbnail if none exists yet, coalescing concurrent calls for the same
// media id into a single generation via a keyed mutex map whose entry is
// removed after completion. The keyed lock guards only this id's
// generation work, not the whole store, so unrelated ids proceed in
// parallel.
func (s *Store) Ensure(ctx context.Context, src Source, opts Options) (string, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}

	lock := s.acquire(src.MediaID)
	defer s.release(src.MediaID, lock)

	if existing, ok := s.existingPath(src.MediaID); ok {
		return existing, nil
	}

	data, err := s.generate(src, opts)
	if err != nil {
		return "", err
	}

	return s.Put(src.MediaID, opts.extension(), data)
}

func (s *Store) existingPath(mediaID string) (string, bool) {
	for _, ext := range thumbnailExtensions {
		path := filepath.Join(s.dir, mediaID+"."+ext)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

func (s *Store) acquire(key string) *sync.Mutex {
	s.mu.Lock()
	lock, ok := s.inflight[key]
	if !ok {
		lock = &sync.Mutex{}
		s.inflight[key] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock
}

// release unlocks the per-id mutex and drops its entry from the map after
// completion, so the map never grows unbounded across a long-running
// process's lifetime.
func (s *Store) release(key string, lock *sync.Mutex) {
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
	lock.Unlock()
}

// generate decodes the source file's cover page (per format, via
// mediafile.CoverPageIndex), resizes it preserving aspect ratio to the
// configured dimensions, and re-encodes it at the configured
// format+quality: decode with format autodetect, resize preserving aspect
// to the configured dimensions, re-encode to the configured format and
// quality.
func (s *Store) generate(src Source, opts Options) ([]byte, error) {
	proc, err := mediafile.ForPath(src.Path)
	if err != nil {
		return nil, err
	}

	_, pageData, err := proc.GetPage(src.Path, mediafile.CoverPageIndex(src.Ext))
	if err != nil {
		return nil, err
	}

	img, err := decodeImage(pageData)
	if err != nil {
		return nil, errcodes.MetadataParse(src.Path, err)
	}

	resized := resize(img, opts.Width, opts.Height)

	return encode(resized, opts)
}

// decodeImage autodetects among the formats cover pages are realistically
// shipped as. image/jpeg and image/png self-register with image.Decode via
// their package init()s (imported below for their Encode side); WebP has
// no such registration hook in chai2010/webp, so it is tried explicitly
// first.
func decodeImage(data []byte) (image.Image, error) {
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

// resize scales img to fit within width x height, preserving aspect
// ratio, using golang.org/x/image/draw's bilinear interpolation rather
// than a hand-rolled nearest-neighbor loop.
func resize(img image.Image, width, height int) image.Image {
	srcBounds := img.Bounds()
	srcW, srcH := srcBounds.Dx(), srcBounds.Dy()
	if srcW == 0 || srcH == 0 {
		return img
	}

	scale := float64(width) / float64(srcW)
	if hScale := float64(height) / float64(srcH); hScale < scale {
		scale = hScale
	}
	dstW := int(float64(srcW) * scale)
	dstH := int(float64(srcH) * scale)
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, srcBounds, draw.Over, nil)
	return dst
}

func encode(img image.Image, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	switch opts.Format {
	case "jpg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: opts.Quality}); err != nil {
			return nil, errors.WithStack(err)
		}
	case "png":
		if err := png.Encode(&buf, img); err != nil {
			return nil, errors.WithStack(err)
		}
	case "webp":
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(opts.Quality)}); err != nil {
			return nil, errors.WithStack(err)
		}
	default:
		return nil, errors.Errorf("unsupported thumbnail format %q", opts.Format)
	}
	return buf.Bytes(), nil
}
