package scanner

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nwaples/rardecode/v2"
	"github.com/shishobooks/shisho/pkg/errcodes"
)

// convertRarToZip rewrites a .cbr/.rar archive as a sibling .cbz, copying
// every non-directory entry across. The zip is written to a temp file in
// the same directory and renamed into place, and when hardDelete is set
// the original archive is removed after a successful rename. Returns the
// converted file's path; if a converted sibling already exists it is
// reused rather than rebuilt.
func convertRarToZip(path string, hardDelete bool) (string, error) {
	target := strings.TrimSuffix(path, filepath.Ext(path)) + ".cbz"
	if _, err := os.Stat(target); err == nil {
		if hardDelete {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return "", errcodes.Io(err)
			}
		}
		return target, nil
	}

	rc, err := rardecode.OpenReader(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errcodes.FileNotFound(path)
		}
		return "", errcodes.ArchiveRead(path, err)
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(target)+".*.tmp")
	if err != nil {
		return "", errcodes.Io(err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	zw := zip.NewWriter(tmp)
	for {
		hdr, err := rc.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			tmp.Close()
			return "", errcodes.ArchiveRead(path, err)
		}
		if hdr.IsDir {
			continue
		}

		w, err := zw.Create(hdr.Name)
		if err != nil {
			tmp.Close()
			return "", errcodes.Io(err)
		}
		if _, err := io.Copy(w, rc); err != nil {
			tmp.Close()
			return "", errcodes.ArchiveRead(path, err)
		}
	}

	if err := zw.Close(); err != nil {
		tmp.Close()
		return "", errcodes.Io(err)
	}
	if err := tmp.Close(); err != nil {
		return "", errcodes.Io(err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return "", errcodes.Io(err)
	}

	if hardDelete {
		if err := os.Remove(path); err != nil {
			return "", errcodes.Io(err)
		}
	}

	return target, nil
}
