// Package pdfdoc implements the mediafile.Processor for PDF files.
// Page count comes from the document catalog via pdfcpu; per-page raster
// extraction is not required in this revision (an open question)
// and GetPage returns UnsupportedFileType rather than guess at a render.
package pdfdoc

import (
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/shishobooks/shisho/pkg/errcodes"
	"github.com/shishobooks/shisho/pkg/mediafile"
)

func init() {
	mediafile.Register(Processor{}, ".pdf")
}

// Processor implements mediafile.Processor for PDF files.
type Processor struct{}

// SampleSize overrides the default Sample*N windowing: PDFs sample a
// fraction of the file rather than fixed Sample-byte windows.
func (Processor) SampleSize(size int64) int64 {
	return size / 10
}

// Process returns the page count from the PDF catalog. Metadata is left
// empty; PDF info-dictionary mapping onto MediaMetadata is not specified.
func (p Processor) Process(path string) (*mediafile.ProcessedFile, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errcodes.FileNotFound(path)
		}
		return nil, errcodes.Io(err)
	}

	pageCount, err := api.PageCountFile(path)
	if err != nil {
		return nil, errcodes.MetadataParse(path, err)
	}

	return &mediafile.ProcessedFile{
		Path:     path,
		Metadata: &mediafile.ParsedMetadata{PageCount: pageCount},
		Pages:    pageCount,
	}, nil
}

// Hash delegates to mediafile.HashFile using this processor's sample size.
func (p Processor) Hash(path string) (string, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return "", errcodes.FileNotFound(path)
	}
	return mediafile.HashFile(p, path, stat.Size())
}

// GetPage is unsupported in this revision: per-page rendering of a PDF
// page to an image is left as a later enhancement; callers should fall back to a generic document icon.
func (p Processor) GetPage(path string, n int) (string, []byte, error) {
	return "", nil, errcodes.UnsupportedFileType(".pdf page render")
}

// GetPageContentTypes reports "application/pdf" for each page since no
// per-page rendering is performed.
func (p Processor) GetPageContentTypes(path string) ([]string, error) {
	pageCount, err := api.PageCountFile(path)
	if err != nil {
		return nil, errcodes.MetadataParse(path, err)
	}

	types := make([]string, pageCount)
	for i := range types {
		types[i] = "application/pdf"
	}
	return types, nil
}
