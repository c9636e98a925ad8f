// Package cbr implements the mediafile.Processor for Rar/CBR archives,
// with the same page-ordering and cover-preference semantics as cbz. RAR's format requires sequential decoding (no central directory to
// seek through like Zip), so a full pass buffers every image entry in
// memory; callers needing repeated page access on very large archives
// should prefer converting to CBZ via the library's convert_rar_to_zip
// setting.
package cbr

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/nwaples/rardecode/v2"
	"github.com/shishobooks/shisho/pkg/contenthash"
	"github.com/shishobooks/shisho/pkg/errcodes"
	"github.com/shishobooks/shisho/pkg/mediafile"
	"github.com/shishobooks/shisho/pkg/mediafile/cbz"
)

func init() {
	mediafile.Register(Processor{}, ".cbr", ".rar")
}

// Processor implements mediafile.Processor for Rar/CBR archives.
type Processor struct{}

// SampleSize uses the default Sample*N windowing; Rar archives have no
// format-specific override.
func (Processor) SampleSize(int64) int64 {
	return contenthash.Sample
}

type entry struct {
	name string
	data []byte
}

func readImageEntries(path string) ([]entry, []byte, error) {
	rc, err := rardecode.OpenReader(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errcodes.FileNotFound(path)
		}
		return nil, nil, errcodes.ArchiveRead(path, err)
	}
	defer rc.Close()

	var entries []entry
	var comicInfo []byte
	for {
		hdr, err := rc.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errcodes.ArchiveRead(path, err)
		}
		if hdr.IsDir {
			continue
		}
		base := filepath.Base(hdr.Name)
		if strings.HasPrefix(hdr.Name, "__MACOSX/") || strings.HasPrefix(base, ".") {
			continue
		}
		if strings.EqualFold(hdr.Name, "comicinfo.xml") {
			comicInfo, err = io.ReadAll(rc)
			if err != nil {
				return nil, nil, errcodes.ArchiveRead(path, err)
			}
			continue
		}
		ext := strings.ToLower(filepath.Ext(hdr.Name))
		if ext != ".jpg" && ext != ".jpeg" && ext != ".png" && ext != ".gif" && ext != ".webp" {
			continue
		}
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, nil, errcodes.ArchiveRead(path, err)
		}
		entries = append(entries, entry{name: hdr.Name, data: data})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	return entries, comicInfo, nil
}

func coverIndex(entries []entry) int {
	for i, e := range entries {
		name := strings.ToLower(strings.TrimSuffix(filepath.Base(e.name), filepath.Ext(e.name)))
		if name == "cover" || name == "thumbnail" || name == "folder" {
			return i
		}
	}
	return 0
}

// pageOrder returns the archive's display order: the designated cover in
// slot 0 with everything else shifted down, so page numbers stay a
// bijection over the image entries. Both GetPage and GetPageContentTypes
// index into this same permutation.
func pageOrder(entries []entry) []entry {
	coverIdx := coverIndex(entries)
	if coverIdx == 0 {
		return entries
	}

	pages := make([]entry, 0, len(entries))
	pages = append(pages, entries[coverIdx])
	pages = append(pages, entries[:coverIdx]...)
	pages = append(pages, entries[coverIdx+1:]...)
	return pages
}

// Process returns the page count and ComicInfo.xml-derived metadata,
// the same sidecar convention the Zip processor follows.
func (p Processor) Process(path string) (*mediafile.ProcessedFile, error) {
	entries, comicInfoData, err := readImageEntries(path)
	if err != nil {
		return nil, err
	}

	metadata := &mediafile.ParsedMetadata{}
	if len(comicInfoData) > 0 {
		ci, err := cbz.ParseComicInfo(comicInfoData)
		if err != nil {
			return nil, errcodes.MetadataParse(path, err)
		}
		metadata = cbz.MetadataFrom(ci)
	}

	return &mediafile.ProcessedFile{
		Path:     path,
		Metadata: metadata,
		Pages:    len(entries),
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

// GetPage returns page n (1-based) in display order: the designated cover
// first, then every other image entry lexicographically.
func (p Processor) GetPage(path string, n int) (string, []byte, error) {
	entries, _, err := readImageEntries(path)
	if err != nil {
		return "", nil, err
	}

	pages := pageOrder(entries)
	idx := n - 1
	if idx < 0 || idx >= len(pages) {
		return "", nil, errcodes.PageOutOfBounds(n, len(pages))
	}

	data := pages[idx].data
	contentType := mimetype.Detect(data).String()
	if !strings.HasPrefix(contentType, "image/") {
		contentType = "image/png"
	}
	return contentType, data, nil
}

// GetPageContentTypes returns the content type of every page in the same
// display order GetPage serves.
func (p Processor) GetPageContentTypes(path string) ([]string, error) {
	entries, _, err := readImageEntries(path)
	if err != nil {
		return nil, err
	}
	pages := pageOrder(entries)
	types := make([]string, len(pages))
	for i, e := range pages {
		types[i] = mimetype.Detect(e.data).String()
	}
	return types, nil
}
