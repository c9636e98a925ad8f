// Package scanner implements the Library Scan Job: walking a library's
// directory tree, reconciling it against the database, and dispatching
// each book through the matching pkg/mediafile processor.
package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"
	"github.com/shishobooks/shisho/pkg/mediafile"
	"github.com/shishobooks/shisho/pkg/models"
)

// Candidate is a single on-disk file the walk accepted as a book, together
// with the series directory the walk phase resolved it under.
type Candidate struct {
	Path       string
	SeriesPath string
	SeriesName string
}

// WalkResult is Phase A's plan: every accepted book candidate plus the
// full set of series directories the walk observed (including ones with
// zero accepted books, so Phase B can still mark a now-empty series
// present rather than missing).
type WalkResult struct {
	Candidates []Candidate
	SeriesDirs map[string]string // path -> name
	Ignored    int
}

// Walk enumerates candidate files under libraryPath honoring cfg's ignore
// rules and the library's scan shape.
func Walk(libraryPath string, cfg *models.LibraryConfig) (*WalkResult, error) {
	ignores, err := compileIgnoreGlobs(cfg.IgnoreRules)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	result := &WalkResult{SeriesDirs: map[string]string{}}

	if cfg.Pattern == models.LibraryPatternSeriesBased {
		entries, err := os.ReadDir(libraryPath)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		for _, entry := range entries {
			if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			seriesPath := filepath.Join(libraryPath, entry.Name())
			result.SeriesDirs[seriesPath] = entry.Name()

			err := filepath.WalkDir(seriesPath, func(path string, d fs.DirEntry, err error) error {
				return visit(path, d, err, libraryPath, seriesPath, entry.Name(), ignores, result)
			})
			if err != nil {
				return nil, errors.WithStack(err)
			}
		}
		return result, nil
	}

	// Collection-based: the deepest directory holding a book is the
	// series; intermediate directories are structural only.
	err = filepath.WalkDir(libraryPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.WithStack(err)
		}
		if d.IsDir() {
			if path != libraryPath && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		seriesPath := filepath.Dir(path)
		seriesName := filepath.Base(seriesPath)
		if _, ok := result.SeriesDirs[seriesPath]; !ok {
			result.SeriesDirs[seriesPath] = seriesName
		}

		return visit(path, d, nil, libraryPath, seriesPath, seriesName, ignores, result)
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return result, nil
}

// visit applies ignore rules and the File Processor's extension/MIME
// allowlist to a single walked file.
func visit(path string, d fs.DirEntry, walkErr error, libraryPath, seriesPath, seriesName string, ignores []glob.Glob, result *WalkResult) error {
	if walkErr != nil {
		return errors.WithStack(walkErr)
	}
	if d.IsDir() {
		return nil
	}

	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		result.Ignored++
		return nil
	}

	rel, err := filepath.Rel(libraryPath, path)
	if err != nil {
		rel = path
	}
	for _, g := range ignores {
		if g.Match(rel) || g.Match(base) {
			result.Ignored++
			return nil
		}
	}

	if _, err := mediafile.ForPath(path); err != nil {
		// Not a recognized book format (or extension/MIME mismatch): this
		// is ignore-by-allowlist, not a scan error.
		result.Ignored++
		return nil
	}

	result.Candidates = append(result.Candidates, Candidate{
		Path:       path,
		SeriesPath: seriesPath,
		SeriesName: seriesName,
	})
	return nil
}

func compileIgnoreGlobs(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, errors.Wrapf(err, "invalid ignore pattern %q", p)
		}
		globs = append(globs, g)
	}
	return globs, nil
}
