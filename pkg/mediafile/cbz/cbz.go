// Package cbz implements the mediafile.Processor for Zip/CBZ archives
//. Pages are image entries sorted lexicographically, OS metadata
// (__MACOSX/, dotfiles) is skipped, and a file named cover/thumbnail/folder
// (case-insensitive) is preferred as the cover regardless of sort order.
package cbz

import (
	"archive/zip"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/shishobooks/shisho/pkg/contenthash"
	"github.com/shishobooks/shisho/pkg/errcodes"
	"github.com/shishobooks/shisho/pkg/fileutils"
	"github.com/shishobooks/shisho/pkg/htmlutil"
	"github.com/shishobooks/shisho/pkg/mediafile"
)

func init() {
	mediafile.Register(Processor{}, ".cbz", ".zip")
}

// Processor implements mediafile.Processor for Zip/CBZ archives.
type Processor struct{}

// SampleSize uses the default Sample*N windowing; Zip archives have no
// format-specific override.
func (Processor) SampleSize(int64) int64 {
	return contenthash.Sample
}

// ComicInfo is the ComicRack-derived metadata sidecar optionally present at
// the archive root as ComicInfo.xml.
type ComicInfo struct {
	XMLName   xml.Name `xml:"ComicInfo"`
	Title     string   `xml:"Title"`
	Series    string   `xml:"Series"`
	Number    string   `xml:"Number"`
	Year      string   `xml:"Year"`
	Month     string   `xml:"Month"`
	Day       string   `xml:"Day"`
	Writer    string   `xml:"Writer"`
	Publisher string   `xml:"Publisher"`
	Summary   string   `xml:"Summary"`
	Web       string   `xml:"Web"`
	Genre     string   `xml:"Genre"`
	AgeRating string   `xml:"AgeRating"`
	PageCount string   `xml:"PageCount"`
	Pages     struct {
		Page []ComicPageInfo `xml:"Page"`
	} `xml:"Pages"`
}

// ComicPageInfo is one <Page> entry of a ComicInfo.xml's <Pages> block.
type ComicPageInfo struct {
	Image string `xml:"Image,attr"`
	Type  string `xml:"Type,attr"`
}

// Process opens the archive, parses ComicInfo.xml if present, and returns
// the page count plus extracted metadata.
func (p Processor) Process(path string) (*mediafile.ProcessedFile, error) {
	_, imageFiles, comicInfo, err := openArchive(path)
	if err != nil {
		return nil, err
	}

	metadata := MetadataFrom(comicInfo)

	return &mediafile.ProcessedFile{
		Path:     path,
		Metadata: metadata,
		Pages:    len(imageFiles),
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

// GetPage returns page n (1-based) of the archive in display order: the
// designated cover first, then every other image entry lexicographically.
func (p Processor) GetPage(path string, n int) (string, []byte, error) {
	_, _, comicInfo, err := openArchive(path)
	if err != nil {
		return "", nil, err
	}

	archive, err := zip.OpenReader(path)
	if err != nil {
		return "", nil, errcodes.ArchiveRead(path, err)
	}
	defer archive.Close()

	pages := pageOrder(sortedImageFiles(&archive.Reader), comicInfo)
	idx := n - 1
	if idx < 0 || idx >= len(pages) {
		return "", nil, errcodes.PageOutOfBounds(n, len(pages))
	}

	f := pages[idx]
	r, err := f.Open()
	if err != nil {
		return "", nil, errcodes.ArchiveRead(path, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return "", nil, errcodes.ArchiveRead(path, err)
	}

	contentType := mimetype.Detect(data).String()
	if !strings.HasPrefix(contentType, "image/") {
		contentType = "image/png"
	}
	return contentType, data, nil
}

// GetPageContentTypes returns the content type of every page without
// reading bodies, inferring from file extension, in the same display order
// GetPage serves.
func (p Processor) GetPageContentTypes(path string) ([]string, error) {
	_, imageFiles, comicInfo, err := openArchive(path)
	if err != nil {
		return nil, err
	}

	pages := pageOrder(imageFiles, comicInfo)
	types := make([]string, len(pages))
	for i, f := range pages {
		types[i] = contentTypeForExtension(f.Name)
	}
	return types, nil
}

func openArchive(path string) (*zip.Reader, []*zip.File, *ComicInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil, errcodes.FileNotFound(path)
		}
		return nil, nil, nil, errcodes.Io(err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, nil, nil, errcodes.Io(err)
	}

	zipReader, err := zip.NewReader(f, stat.Size())
	if err != nil {
		return nil, nil, nil, errcodes.ArchiveRead(path, err)
	}

	var comicInfo *ComicInfo
	for _, file := range zipReader.File {
		if strings.EqualFold(file.Name, "comicinfo.xml") {
			r, err := file.Open()
			if err != nil {
				return nil, nil, nil, errcodes.ArchiveRead(path, err)
			}
			b, err := io.ReadAll(r)
			r.Close()
			if err != nil {
				return nil, nil, nil, errcodes.ArchiveRead(path, err)
			}
			comicInfo, err = ParseComicInfo(b)
			if err != nil {
				return nil, nil, nil, errcodes.MetadataParse(path, err)
			}
			break
		}
	}

	return zipReader, sortedImageFiles(zipReader), comicInfo, nil
}

// ParseComicInfo unmarshals a ComicInfo.xml payload. Exported for the Rar
// processor, which reads the same sidecar out of its own archive format.
func ParseComicInfo(b []byte) (*ComicInfo, error) {
	ci := &ComicInfo{}
	if err := xml.Unmarshal(b, ci); err != nil {
		return nil, errors.WithStack(err)
	}
	return ci, nil
}

// sortedImageFiles returns image entries, skipping OS metadata
// (__MACOSX/, dotfiles), sorted lexicographically by name.
func sortedImageFiles(zipReader *zip.Reader) []*zip.File {
	var files []*zip.File
	for _, file := range zipReader.File {
		base := filepath.Base(file.Name)
		if strings.HasPrefix(file.Name, "__MACOSX/") || strings.HasPrefix(base, ".") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(file.Name))
		if ext == ".jpg" || ext == ".jpeg" || ext == ".png" || ext == ".gif" || ext == ".webp" {
			files = append(files, file)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files
}

// pageOrder returns the archive's display order: the designated cover in
// slot 0 with everything else shifted down, so page numbers stay a
// bijection over the image entries. Both GetPage and GetPageContentTypes
// index into this same permutation.
func pageOrder(imageFiles []*zip.File, comicInfo *ComicInfo) []*zip.File {
	coverIdx := coverIndex(imageFiles, comicInfo)
	if coverIdx == nil || *coverIdx == 0 {
		return imageFiles
	}

	pages := make([]*zip.File, 0, len(imageFiles))
	pages = append(pages, imageFiles[*coverIdx])
	pages = append(pages, imageFiles[:*coverIdx]...)
	pages = append(pages, imageFiles[*coverIdx+1:]...)
	return pages
}

// coverIndex locates the preferred cover among imageFiles: a file literally
// named cover/thumbnail/folder wins regardless of order; otherwise
// ComicInfo's FrontCover designation; otherwise nil (caller falls back to
// the first image).
func coverIndex(imageFiles []*zip.File, comicInfo *ComicInfo) *int {
	for i, f := range imageFiles {
		name := strings.ToLower(strings.TrimSuffix(filepath.Base(f.Name), filepath.Ext(f.Name)))
		if name == "cover" || name == "thumbnail" || name == "folder" {
			idx := i
			return &idx
		}
	}
	if comicInfo != nil {
		for _, page := range comicInfo.Pages.Page {
			if strings.EqualFold(page.Type, "frontcover") {
				if idx, err := strconv.Atoi(page.Image); err == nil && idx >= 0 && idx < len(imageFiles) {
					return &idx
				}
			}
		}
	}
	return nil
}

func contentTypeForExtension(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

// MetadataFrom maps a parsed ComicInfo onto the processor-neutral
// ParsedMetadata shape.
func MetadataFrom(comicInfo *ComicInfo) *mediafile.ParsedMetadata {
	if comicInfo == nil {
		return &mediafile.ParsedMetadata{}
	}

	m := &mediafile.ParsedMetadata{
		Title:     comicInfo.Title,
		Summary:   htmlutil.StripTags(comicInfo.Summary),
		Publisher: comicInfo.Publisher,
	}

	if comicInfo.Number != "" {
		if num, err := strconv.ParseFloat(comicInfo.Number, 64); err == nil {
			m.Number = &num
		}
	}
	if comicInfo.Writer != "" {
		m.Writers = fileutils.SplitNames(comicInfo.Writer)
	}
	if comicInfo.Genre != "" {
		m.Genres = fileutils.SplitNames(comicInfo.Genre)
	}
	if comicInfo.AgeRating != "" {
		if rating, err := parseAgeRating(comicInfo.AgeRating); err == nil {
			m.AgeRating = &rating
		}
	}
	if comicInfo.PageCount != "" {
		if count, err := strconv.Atoi(comicInfo.PageCount); err == nil {
			m.PageCount = count
		}
	}
	if comicInfo.Web != "" {
		m.Links = []string{comicInfo.Web}
	}

	return m
}

// ageRatingRE extracts a leading integer from ratings like "16+" or "Teen 13".
var ageRatingRE = regexp.MustCompile(`^\d+`)

func parseAgeRating(s string) (int, error) {
	match := ageRatingRE.FindString(s)
	if match == "" {
		return 0, errors.New("no numeric age rating")
	}
	return strconv.Atoi(match)
}

// ExtractSeriesNumberFromFilename recovers a volume/chapter number from a
// filename when ComicInfo.xml doesn't supply one, matching patterns like
// "#7", "v7" or a trailing " 7" after stripping parenthesized metadata
// such as "(2020)" or "(Digital)".
func ExtractSeriesNumberFromFilename(filename string) *float64 {
	nameWithoutExt := strings.TrimSuffix(filename, filepath.Ext(filename))
	nameWithoutExt = parensRE.ReplaceAllString(nameWithoutExt, "")
	nameWithoutExt = strings.TrimSpace(nameWithoutExt)

	patterns := []string{
		`(?i)#(\d+(?:\.\d+)?)$`,
		`(?i)v(\d+(?:\.\d+)?)$`,
		`(?i)\s+(\d+(?:\.\d+)?)$`,
	}
	for _, pattern := range patterns {
		re := regexp.MustCompile(pattern)
		if matches := re.FindStringSubmatch(nameWithoutExt); len(matches) >= 2 {
			if num, err := strconv.ParseFloat(matches[1], 64); err == nil {
				return &num
			}
		}
	}
	return nil
}

var parensRE = regexp.MustCompile(`\([^)]*\)`)
