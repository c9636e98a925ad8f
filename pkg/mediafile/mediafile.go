// Package mediafile defines the polymorphic file-processor surface
// that the scanner and reader dispatch through, keyed by file extension and
// validated against sniffed magic bytes.
package mediafile

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/shishobooks/shisho/pkg/contenthash"
	"github.com/shishobooks/shisho/pkg/errcodes"
)

// ParsedMetadata is the metadata a format processor extracts from embedded
// data (ComicInfo.xml, OPF package document, PDF info dictionary). It maps
// onto models.MediaMetadata once a scanner task persists it.
type ParsedMetadata struct {
	Title     string
	Number    *float64
	Summary   string
	Publisher string
	Writers   []string
	Genres    []string
	PageCount int
	AgeRating *int
	Links     []string
}

// ProcessedFile is the result of running a Processor's Process step over a
// single media file.
type ProcessedFile struct {
	Path     string
	Hash     *string
	Metadata *ParsedMetadata
	Pages    int
}

// Processor is the polymorphic surface every supported format implements.
// Page indices are 1-based for image-based formats (Zip/Rar) and 0-based
// for EPUB, where page 0 is the cover.
type Processor interface {
	// SampleSize returns the content-hash sample size contenthash.Hash
	// should use for a file of the given size, overriding the default
	// Sample*N windowing where the format calls for it (PDF: size/10).
	SampleSize(size int64) int64

	// Hash computes the file's content hash.
	Hash(path string) (string, error)

	// Process extracts metadata and page count from the file at path.
	Process(path string) (*ProcessedFile, error)

	// GetPage returns the content type and bytes of page n.
	GetPage(path string, n int) (contentType string, data []byte, err error)

	// GetPageContentTypes returns the content type of every page, in order.
	// The Zip, EPUB and PDF processors answer without reading page bodies;
	// the Rar processor decodes every image entry to answer.
	GetPageContentTypes(path string) ([]string, error)
}

// allowedMIMETypes is the ingest allowlist.
var allowedMIMETypes = map[string]bool{
	"application/zip":      true,
	"application/vnd.rar":  true,
	"application/epub+zip": true,
	"application/pdf":      true,
	"application/x-cbz":    true,
	"application/x-cbr":    true,
}

// extensionProcessors is the dispatch table keyed by lowercased extension
// (including the dot).
var extensionProcessors = map[string]Processor{}

// Register adds a Processor for the given file extensions (e.g. ".cbz",
// ".zip"). Called from each format package's init().
func Register(proc Processor, extensions ...string) {
	for _, ext := range extensions {
		extensionProcessors[strings.ToLower(ext)] = proc
	}
}

// ForPath resolves the Processor registered for path's extension, then
// sniffs the file's magic bytes and rejects a mismatch against the
// allowlisted MIME types.
func ForPath(path string) (Processor, error) {
	ext := strings.ToLower(filepath.Ext(path))
	proc, ok := extensionProcessors[ext]
	if !ok {
		return nil, errcodes.UnsupportedFileType(ext)
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, errcodes.FileNotFound(path)
	}
	if !matchesAllowlist(mtype) {
		return nil, errcodes.UnsupportedFileType(mtype.String())
	}

	return proc, nil
}

func matchesAllowlist(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if allowedMIMETypes[m.String()] {
			return true
		}
	}
	return false
}

// HashFile is a convenience wrapper combining contenthash.Hash with a
// processor's SampleSize override.
func HashFile(proc Processor, path string, size int64) (string, error) {
	return contenthash.HashWithSampleSize(path, size, proc.SampleSize)
}

// CoverPageIndex returns the page index a Processor.GetPage call should
// request to get a file's cover image, keyed by lowercased extension: 1 for
// the image-archive formats (Zip/Rar, whose GetPage treats page 1 as the
// designated cover per their own coverIndex logic), 0 for EPUB (page 0 is
// always the cover).
func CoverPageIndex(ext string) int {
	if strings.ToLower(ext) == ".epub" {
		return 0
	}
	return 1
}
