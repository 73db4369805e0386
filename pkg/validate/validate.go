// Package validate implements the naming rules for projects and folders.
package validate

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/spf13/afero"

	"github.com/sidkik/revsync/pkg/errors"
)

const (
	// KindProject is used in errors for invalid project names.
	KindProject = "project"

	// KindFolder is used in errors for invalid folder names.
	KindFolder = "folder"
)

var nameRegex = regexp.MustCompile(`^\w+$`)

// Name returns whether `name` is non-empty and made of only letters, digits
// and underscores.
func Name(name string) bool {
	return nameRegex.MatchString(name)
}

// Check returns a ValidationError if `name` isn't valid.
func Check(kind, name string) error {
	if !Name(name) {
		return errors.ValidationError{Kind: kind, Name: name}
	}
	return nil
}

// Tree checks the name of `dir` and of every directory nested inside it.
// Nothing should be uploaded unless the whole tree is valid.
func Tree(fs afero.Fs, dir string) error {
	if err := Check(KindFolder, filepath.Base(dir)); err != nil {
		return err
	}

	return afero.Walk(fs, dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return errors.WithContext(err, "walk")
		}

		if path == dir || !fi.IsDir() {
			return nil
		}
		return Check(KindFolder, fi.Name())
	})
}
