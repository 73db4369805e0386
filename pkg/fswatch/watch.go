// Package fswatch notices local edits to checked out databases.
package fswatch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/revsync/pkg/errors"
)

var fs = afero.NewOsFs()

// Watch watches `paths` and sends an event on the returned channel whenever
// something within them changes. Directories are watched recursively. The
// returned function stops the watch.
func Watch(paths []string) (<-chan struct{}, func(), error) {
	pathsToWatch, err := getPathsToWatch(paths)
	if err != nil {
		return nil, nil, errors.WithContext(err, "get paths")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, errors.WithContext(err, "create watcher")
	}

	stop := func() {
		if err := watcher.Close(); err != nil {
			log.WithError(err).Warn("Failed to close file watcher")
		}
	}

	for _, path := range pathsToWatch {
		if err := watcher.Add(path); err != nil {
			// Close the watcher so that we release the file handlers for the
			// previously added paths.
			stop()
			return nil, nil, errors.WithContext(err, fmt.Sprintf("watch %q", path))
		}
	}

	go func() {
		for err := range watcher.Errors {
			log.WithError(err).Debug("File watcher error")
		}
	}()
	return combineUpdates(watcher.Events), stop, nil
}

func combineUpdates(updates <-chan fsnotify.Event) chan struct{} {
	combined := make(chan struct{}, 1)
	go func() {
		for range updates {
			select {
			case combined <- struct{}{}:
			default:
			}
		}
	}()
	return combined
}

// getPathsToWatch returns the directories that have to be watched to notice
// changes to `paths`. fsnotify doesn't watch directories recursively, so every
// subdirectory is listed.
func getPathsToWatch(paths []string) (toWatch []string, err error) {
	seen := map[string]struct{}{}
	add := func(path string) {
		if _, ok := seen[path]; !ok {
			seen[path] = struct{}{}
			toWatch = append(toWatch, path)
		}
	}

	for _, path := range paths {
		fi, err := fs.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errors.FileNotFound{Path: path}
			}
			return nil, errors.WithContext(err, "stat")
		}

		if !fi.IsDir() {
			// Watch the file's parent directory as well as the file itself.
			// Tools often save by replacing the file, which removes the watch
			// on the file.
			add(path)
			add(filepath.Dir(path))
			continue
		}

		err = afero.Walk(fs, path, func(child string, fi os.FileInfo, err error) error {
			if err != nil {
				return errors.WithContext(err, "walk error")
			}
			if fi.IsDir() {
				add(child)
			}
			return nil
		})
		if err != nil {
			return nil, errors.WithContext(err, "get subdirs")
		}
	}
	return toWatch, nil
}
