// Package epub implements the mediafile.Processor for EPUB files.
// The OPF package document is the authority for metadata, the manifest,
// and reading order; resources are addressed by manifest id and every
// relative path is canonicalized against the OPF's own directory before
// it is looked up in the archive, so a manifest href like
// "OEBPS/../Styles/x.css" resolves to "Styles/x.css" rather than escaping
// the archive root.
package epub

import (
	"archive/zip"
	"encoding/xml"
	"io"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/shishobooks/shisho/pkg/contenthash"
	"github.com/shishobooks/shisho/pkg/errcodes"
	"github.com/shishobooks/shisho/pkg/htmlutil"
	"github.com/shishobooks/shisho/pkg/identifiers"
	"github.com/shishobooks/shisho/pkg/mediafile"
)

func init() {
	mediafile.Register(Processor{}, ".epub")
}

// Processor implements mediafile.Processor for EPUB files.
type Processor struct{}

// SampleSize uses the default Sample*N windowing; EPUB has no
// format-specific override.
func (Processor) SampleSize(int64) int64 {
	return contenthash.Sample
}

// Package is the raw XML shape of an OPF package document.
type Package struct {
	XMLName  xml.Name `xml:"package"`
	Metadata struct {
		Title []struct {
			Text string `xml:",chardata"`
			ID   string `xml:"id,attr"`
		} `xml:"title"`
		Creator []struct {
			Text string `xml:",chardata"`
			ID   string `xml:"id,attr"`
			Role string `xml:"role,attr"`
		} `xml:"creator"`
		Description string   `xml:"description"`
		Subject     []string `xml:"subject"`
		Publisher   string   `xml:"publisher"`
		Identifier  []struct {
			Text   string `xml:",chardata"`
			Scheme string `xml:"scheme,attr"`
		} `xml:"identifier"`
		Relation []string `xml:"relation"`
		Source   []string `xml:"source"`
		Meta     []struct {
			Text     string `xml:",chardata"`
			Name     string `xml:"name,attr"`
			Content  string `xml:"content,attr"`
			Refines  string `xml:"refines,attr"`
			Property string `xml:"property,attr"`
		} `xml:"meta"`
	} `xml:"metadata"`
	Manifest struct {
		Item []struct {
			ID        string `xml:"id,attr"`
			Href      string `xml:"href,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Itemref []struct {
			Idref string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

// parsed holds everything extracted from an EPUB's OPF plus enough
// bookkeeping to resolve page requests against archive entries.
type parsed struct {
	pkg        *Package
	basePath   string
	coverPath  string
	spineHrefs []string
	metadata   *mediafile.ParsedMetadata
}

func parseArchive(path string) (*zip.Reader, *parsed, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errcodes.FileNotFound(path)
		}
		return nil, nil, errcodes.Io(err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, nil, errcodes.Io(err)
	}

	zipReader, err := zip.NewReader(f, stat.Size())
	if err != nil {
		return nil, nil, errcodes.ArchiveRead(path, err)
	}

	var opfName string
	for _, file := range zipReader.File {
		if strings.EqualFold(zipext(file.Name), ".opf") {
			opfName = file.Name
			break
		}
	}
	if opfName == "" {
		return nil, nil, errcodes.MetadataParse(path, errors.New("no opf file found"))
	}

	opfFile, err := findFile(zipReader, opfName)
	if err != nil {
		return nil, nil, err
	}
	r, err := opfFile.Open()
	if err != nil {
		return nil, nil, errcodes.ArchiveRead(path, err)
	}
	b, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		return nil, nil, errcodes.ArchiveRead(path, err)
	}

	pkg := &Package{}
	if err := xml.Unmarshal(b, pkg); err != nil {
		return nil, nil, errcodes.MetadataParse(path, err)
	}

	p := buildParsed(pkg, opfName)
	return zipReader, p, nil
}

func zipext(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return name[i:]
}

// canonicalize joins an OPF-relative href onto the OPF's own directory and
// cleans "." / ".." segments, guaranteeing the result never escapes the
// archive root.
func canonicalize(basePath, href string) string {
	joined := path.Join("/", basePath, href)
	return strings.TrimPrefix(joined, "/")
}

func buildParsed(pkg *Package, opfName string) *parsed {
	basePath := path.Dir(opfName)
	if basePath == "." {
		basePath = ""
	}

	metaContent := map[string]string{}
	for _, m := range pkg.Metadata.Meta {
		if m.Content != "" {
			metaContent[m.Name] = m.Content
		}
	}

	hrefByID := map[string]string{}
	for _, item := range pkg.Manifest.Item {
		hrefByID[item.ID] = canonicalize(basePath, item.Href)
	}

	title := ""
	if len(pkg.Metadata.Title) > 0 {
		title = pkg.Metadata.Title[0].Text
	}

	var writers []string
	for _, creator := range pkg.Metadata.Creator {
		if creator.Text != "" {
			writers = append(writers, creator.Text)
		}
	}

	var genres []string
	for _, subject := range pkg.Metadata.Subject {
		subject = strings.TrimSpace(subject)
		if subject != "" {
			genres = append(genres, subject)
		}
	}

	var links []string
	for _, rel := range pkg.Metadata.Relation {
		if strings.HasPrefix(rel, "http://") || strings.HasPrefix(rel, "https://") {
			links = append(links, rel)
		}
	}
	for _, src := range pkg.Metadata.Source {
		if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
			links = append(links, src)
		}
	}

	var number *float64
	if idx := metaContent["calibre:series_index"]; idx != "" {
		if n, err := strconv.ParseFloat(idx, 64); err == nil {
			number = &n
		}
	}

	coverPath := ""
	if coverID := metaContent["cover"]; coverID != "" {
		coverPath = hrefByID[coverID]
	}

	var spineHrefs []string
	for _, itemref := range pkg.Spine.Itemref {
		if href, ok := hrefByID[itemref.Idref]; ok {
			spineHrefs = append(spineHrefs, href)
		}
	}

	metadata := &mediafile.ParsedMetadata{
		Title:     title,
		Number:    number,
		Summary:   htmlutil.StripTags(pkg.Metadata.Description),
		Publisher: pkg.Metadata.Publisher,
		Writers:   writers,
		Genres:    genres,
		PageCount: len(spineHrefs),
		Links:     links,
	}
	if links := parseIdentifierLinks(pkg); len(links) > 0 {
		metadata.Links = append(metadata.Links, links...)
	}

	return &parsed{
		pkg:        pkg,
		basePath:   basePath,
		coverPath:  coverPath,
		spineHrefs: spineHrefs,
		metadata:   metadata,
	}
}

// parseIdentifierLinks surfaces recognized dc:identifier values (ISBN,
// ASIN) as links, since MediaMetadata has no dedicated identifiers field.
func parseIdentifierLinks(pkg *Package) []string {
	var out []string
	for _, id := range pkg.Metadata.Identifier {
		value := strings.TrimSpace(id.Text)
		if value == "" {
			continue
		}
		idType := identifiers.DetectType(value, id.Scheme)
		if idType == identifiers.TypeUnknown {
			continue
		}
		out = append(out, string(idType)+":"+value)
	}
	return out
}

func findFile(zipReader *zip.Reader, name string) (*zip.File, error) {
	for _, file := range zipReader.File {
		if file.Name == name {
			return file, nil
		}
	}
	return nil, errcodes.ArchiveRead(name, errors.New("entry not found"))
}

// Process extracts metadata and the spine-derived page count.
func (p Processor) Process(filePath string) (*mediafile.ProcessedFile, error) {
	_, parsedEPUB, err := parseArchive(filePath)
	if err != nil {
		return nil, err
	}
	return &mediafile.ProcessedFile{
		Path:     filePath,
		Metadata: parsedEPUB.metadata,
		Pages:    len(parsedEPUB.spineHrefs),
	}, nil
}

// Hash delegates to mediafile.HashFile using this processor's sample size.
func (p Processor) Hash(filePath string) (string, error) {
	stat, err := os.Stat(filePath)
	if err != nil {
		return "", errcodes.FileNotFound(filePath)
	}
	return mediafile.HashFile(p, filePath, stat.Size())
}

// GetPage returns page n: 0 is the cover image, n>0 is the rendered payload
// of the nth spine item (1-indexed into the reading order).
func (p Processor) GetPage(filePath string, n int) (string, []byte, error) {
	_, parsedEPUB, err := parseArchive(filePath)
	if err != nil {
		return "", nil, err
	}

	archive, err := zip.OpenReader(filePath)
	if err != nil {
		return "", nil, errcodes.ArchiveRead(filePath, err)
	}
	defer archive.Close()

	var entryPath string
	if n == 0 {
		if parsedEPUB.coverPath == "" {
			return "", nil, errcodes.PageOutOfBounds(n, len(parsedEPUB.spineHrefs))
		}
		entryPath = parsedEPUB.coverPath
	} else {
		idx := n - 1
		if idx < 0 || idx >= len(parsedEPUB.spineHrefs) {
			return "", nil, errcodes.PageOutOfBounds(n, len(parsedEPUB.spineHrefs))
		}
		entryPath = parsedEPUB.spineHrefs[idx]
	}

	file, err := findFile(&archive.Reader, entryPath)
	if err != nil {
		return "", nil, err
	}
	r, err := file.Open()
	if err != nil {
		return "", nil, errcodes.ArchiveRead(filePath, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return "", nil, errcodes.ArchiveRead(filePath, err)
	}

	contentType := mimetype.Detect(data).String()
	if n == 0 && !strings.HasPrefix(contentType, "image/") {
		contentType = "image/png"
	}
	return contentType, data, nil
}

// GetPageContentTypes returns one entry per spine item, each reported as
// "application/xhtml+xml" without reading bodies. The cover (page 0) is not
// included, and the manifest's media-type attributes are not consulted.
func (p Processor) GetPageContentTypes(filePath string) ([]string, error) {
	_, parsedEPUB, err := parseArchive(filePath)
	if err != nil {
		return nil, err
	}
	types := make([]string, len(parsedEPUB.spineHrefs))
	for i := range parsedEPUB.spineHrefs {
		types[i] = "application/xhtml+xml"
	}
	return types, nil
}
