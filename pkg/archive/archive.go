// Package archive converts multi-file tool projects to and from the single
// artifact that's stored on the server.
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/revsync/pkg/errors"
)

// Pack writes every regular file under `sources` into a zip archive at
// `dest`. Sources may be files or directories, and directories are walked
// recursively. Entry names are relative to `stripPrefix`.
// Symlinks and other special files are skipped.
//
// The archive is built next to `dest` and renamed into place once it's
// complete, so `dest` is left untouched if packing fails.
func Pack(fs afero.Fs, dest, stripPrefix string, sources ...string) error {
	f, err := afero.TempFile(fs, filepath.Dir(dest), "."+filepath.Base(dest))
	if err != nil {
		return errors.WithContext(err, "create archive")
	}

	tmpPath := f.Name()
	if err := writeArchive(fs, f, stripPrefix, sources); err != nil {
		f.Close()
		if removeErr := fs.Remove(tmpPath); removeErr != nil {
			log.WithError(removeErr).WithField("path", tmpPath).
				Warn("Failed to remove partial archive")
		}
		return err
	}

	if err := f.Close(); err != nil {
		fs.Remove(tmpPath)
		return errors.WithContext(err, "close archive")
	}

	if err := fs.Rename(tmpPath, dest); err != nil {
		fs.Remove(tmpPath)
		return errors.WithContext(err, "move archive into place")
	}
	return nil
}

func writeArchive(fs afero.Fs, f io.Writer, stripPrefix string, sources []string) error {
	w := zip.NewWriter(f)
	for _, src := range sources {
		err := afero.Walk(fs, src, func(path string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}

			if !fi.Mode().IsRegular() {
				return nil
			}

			name, err := entryName(stripPrefix, path)
			if err != nil {
				return err
			}
			return addFile(fs, w, path, name, fi)
		})
		if err != nil {
			w.Close()
			return errors.WithContext(err, fmt.Sprintf("pack %q", src))
		}
	}

	if err := w.Close(); err != nil {
		return errors.WithContext(err, "finalize archive")
	}
	return nil
}

func addFile(fs afero.Fs, w *zip.Writer, path, name string, fi os.FileInfo) error {
	header, err := zip.FileInfoHeader(fi)
	if err != nil {
		return errors.WithContext(err, "create header")
	}
	header.Name = name
	header.Method = zip.Deflate

	entry, err := w.CreateHeader(header)
	if err != nil {
		return errors.WithContext(err, "create entry")
	}

	src, err := fs.Open(path)
	if err != nil {
		return errors.WithContext(err, "open")
	}
	defer src.Close()

	if _, err := io.Copy(entry, src); err != nil {
		return errors.WithContext(err, fmt.Sprintf("copy %q", path))
	}

	log.WithField("entry", name).Debug("Packed file")
	return nil
}

func entryName(stripPrefix, path string) (string, error) {
	rel, err := filepath.Rel(stripPrefix, path)
	if err != nil {
		return "", errors.WithContext(err, "relative path")
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.New("%q is outside of %q", path, stripPrefix)
	}
	return filepath.ToSlash(rel), nil
}

// Unpack extracts the archive at `artifact` into `destDir`. Each of the
// `stale` paths is removed first so that files deleted from the project since
// the archive was made don't linger. Entries that would be written outside of
// `destDir` are rejected.
func Unpack(fs afero.Fs, artifact, destDir string, stale ...string) error {
	for _, path := range stale {
		if err := fs.RemoveAll(path); err != nil {
			return errors.WithContext(err, fmt.Sprintf("remove stale %q", path))
		}
	}

	f, err := fs.Open(artifact)
	if err != nil {
		return errors.WithContext(err, "open archive")
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return errors.WithContext(err, "stat archive")
	}

	r, err := zip.NewReader(f, fi.Size())
	if err != nil {
		return errors.WithContext(err, "read archive")
	}

	for _, entry := range r.File {
		if err := extract(fs, entry, destDir); err != nil {
			return errors.WithContext(err, fmt.Sprintf("extract %q", entry.Name))
		}
	}
	return nil
}

func extract(fs afero.Fs, entry *zip.File, destDir string) error {
	target := filepath.Join(destDir, filepath.FromSlash(entry.Name))
	rel, err := filepath.Rel(destDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return errors.New("entry escapes the destination directory")
	}

	if entry.FileInfo().IsDir() {
		return fs.MkdirAll(target, 0755)
	}

	if err := fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.WithContext(err, "make parent directory")
	}

	src, err := entry.Open()
	if err != nil {
		return errors.WithContext(err, "open entry")
	}
	defer src.Close()

	mode := entry.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}

	dst, err := fs.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return errors.WithContext(err, "create file")
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return errors.WithContext(err, "write file")
	}
	return nil
}
