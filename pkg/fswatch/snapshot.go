package fswatch

import (
	"crypto/sha512"
	"encoding/base64"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/sidkik/revsync/pkg/errors"
)

// Snapshot maps the files under a set of roots to the hash of their contents.
type Snapshot map[string]string

// TakeSnapshot hashes every regular file under `roots`. Roots that don't exist
// are skipped, so that deleted projects show up as changes.
func TakeSnapshot(roots []string) (Snapshot, error) {
	snapshot := Snapshot{}
	for _, root := range roots {
		err := afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
			if err != nil {
				if os.IsNotExist(err) && path == root {
					return nil
				}
				return errors.WithContext(err, "walk error")
			}

			if !fi.Mode().IsRegular() {
				return nil
			}

			hash, err := HashFile(path)
			if err != nil {
				return errors.WithContext(err, "hash")
			}
			snapshot[path] = hash
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return snapshot, nil
}

// Changed returns the roots whose files differ between the two snapshots.
func (s Snapshot) Changed(other Snapshot, roots []string) []string {
	changed := map[string]struct{}{}
	check := func(path string) {
		if s[path] == other[path] {
			return
		}

		for _, root := range roots {
			if path == root || isWithin(path, root) {
				changed[root] = struct{}{}
			}
		}
	}

	for path := range s {
		check(path)
	}
	for path := range other {
		check(path)
	}

	var result []string
	for root := range changed {
		result = append(result, root)
	}
	sort.Strings(result)
	return result
}

// HashFile returns the sha512 hash of the file at the given path.
func HashFile(path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", errors.WithContext(err, "open")
	}
	defer f.Close()

	hasher := sha512.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", errors.WithContext(err, "read")
	}

	return base64.StdEncoding.EncodeToString(hasher.Sum(nil)), nil
}

func isWithin(path, dir string) bool {
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}
