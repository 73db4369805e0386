// Package cache manages the local mirror of remote projects.
//
// Every project has a directory under the cache root that mirrors the
// manifest's path segments. Revision databases are only written when they're
// checked out or opened, and are removed once the manifest no longer
// references them.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/revsync/pkg/archive"
	"github.com/sidkik/revsync/pkg/errors"
	"github.com/sidkik/revsync/pkg/manifest"
	"github.com/sidkik/revsync/pkg/validate"
)

// ChangesFile is the name of the sidecar that tracks the changes recorded
// for the databases of a binary. It's shared by every database of the binary.
const ChangesFile = "changes.json"

// Store is the only writer of the cache directory.
type Store struct {
	fs   afero.Fs
	root string
}

// New returns a Store backed by the OS filesystem.
func New(root string) *Store {
	return NewWithFs(afero.NewOsFs(), root)
}

// NewWithFs returns a Store backed by `fs`.
func NewWithFs(fs afero.Fs, root string) *Store {
	return &Store{fs: fs, root: root}
}

// Root returns the cache root directory.
func (s *Store) Root() string {
	return s.root
}

// Fs returns the filesystem that the store writes to.
func (s *Store) Fs() afero.Fs {
	return s.fs
}

// Path returns the local path for the manifest path `segments`.
func (s *Store) Path(segments ...string) string {
	return filepath.Join(append([]string{s.root}, segments...)...)
}

// BinaryDir returns the directory that holds the files of the binary at
// `binaryPath`.
func (s *Store) BinaryDir(binaryPath []string) string {
	return s.Path(binaryPath...)
}

// ArtifactPath returns where the artifact of `db` is materialized.
func (s *Store) ArtifactPath(db *manifest.RevisionDatabase) string {
	return filepath.Join(s.BinaryDir(manifest.PathOf(db.Binary())), db.FileName())
}

// ChangesPath returns the path of the changes sidecar of `binary`.
func (s *Store) ChangesPath(binary *manifest.Binary) string {
	return filepath.Join(s.BinaryDir(manifest.PathOf(binary)), ChangesFile)
}

// BinaryPath returns where the original binary is downloaded to.
func (s *Store) BinaryPath(binary *manifest.Binary) string {
	return filepath.Join(s.BinaryDir(manifest.PathOf(binary)), binary.Name())
}

// EnsureProject creates the project's directory if it doesn't exist.
func (s *Store) EnsureProject(project string) error {
	if err := validate.Check(validate.KindProject, project); err != nil {
		return err
	}

	if err := s.fs.MkdirAll(s.Path(project), 0755); err != nil {
		return errors.WithContext(err, "create project directory")
	}
	return nil
}

// RemoveProject deletes the project's directory and everything in it.
func (s *Store) RemoveProject(project string) error {
	if err := validate.Check(validate.KindProject, project); err != nil {
		return err
	}

	if err := s.fs.RemoveAll(s.Path(project)); err != nil {
		return errors.WithContext(err, "remove project directory")
	}
	return nil
}

// StaleProjects returns the local project directories that aren't in
// `remote`, the projects that the server still has.
// Entries that can't be project directories are ignored.
func (s *Store) StaleProjects(remote []string) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WithContext(err, "list cache directory")
	}

	known := map[string]struct{}{}
	for _, project := range remote {
		known[project] = struct{}{}
	}

	var stale []string
	for _, entry := range entries {
		if !entry.IsDir() || !validate.Name(entry.Name()) {
			continue
		}

		if _, ok := known[entry.Name()]; !ok {
			stale = append(stale, entry.Name())
		}
	}
	return stale, nil
}

// PruneProjects removes the directories returned by StaleProjects, and
// returns their names.
func (s *Store) PruneProjects(remote []string) ([]string, error) {
	stale, err := s.StaleProjects(remote)
	if err != nil {
		return nil, err
	}

	for i, project := range stale {
		if err := s.RemoveProject(project); err != nil {
			return stale[:i], err
		}
		log.WithField("project", project).Info("Removed deleted project from the cache")
	}
	return stale, nil
}

// RemoveSubtree deletes the local directory of a Folder or Binary.
func (s *Store) RemoveSubtree(segments []string) error {
	if len(segments) < 2 {
		return errors.New("refusing to remove the project root")
	}

	if err := s.fs.RemoveAll(s.Path(segments...)); err != nil {
		return errors.WithContext(err, fmt.Sprintf("remove %q", strings.Join(segments, "/")))
	}
	return nil
}

// WriteArtifact stores the artifact bytes of `db`.
func (s *Store) WriteArtifact(db *manifest.RevisionDatabase, contents []byte) error {
	return s.write(s.ArtifactPath(db), contents)
}

// WriteChanges stores the changes sidecar of `binary`.
func (s *Store) WriteChanges(binary *manifest.Binary, contents []byte) error {
	return s.write(s.ChangesPath(binary), contents)
}

// WriteBinary stores the original binary.
func (s *Store) WriteBinary(binary *manifest.Binary, contents []byte) error {
	return s.write(s.BinaryPath(binary), contents)
}

func (s *Store) write(path string, contents []byte) error {
	if err := s.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.WithContext(err, "create parent directory")
	}

	if err := afero.WriteFile(s.fs, path, contents, 0644); err != nil {
		return errors.WithContext(err, fmt.Sprintf("write %q", path))
	}
	return nil
}

// ReadArtifact returns the artifact bytes of `db`.
func (s *Store) ReadArtifact(db *manifest.RevisionDatabase) ([]byte, error) {
	return s.read(s.ArtifactPath(db))
}

// ReadChanges returns the changes sidecar of `binary`. A missing sidecar is
// returned as empty.
func (s *Store) ReadChanges(binary *manifest.Binary) ([]byte, error) {
	contents, err := s.read(s.ChangesPath(binary))
	if _, ok := errors.RootCause(err).(errors.FileNotFound); ok {
		return nil, nil
	}
	return contents, err
}

func (s *Store) read(path string) ([]byte, error) {
	contents, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: path}
		}
		return nil, errors.WithContext(err, fmt.Sprintf("read %q", path))
	}
	return contents, nil
}

// RemoveArtifact deletes the artifact of `db`, along with the extracted
// project of archived kinds. The binary directory and the sidecar are kept
// since they may still be used by other databases of the binary.
func (s *Store) RemoveArtifact(db *manifest.RevisionDatabase) error {
	paths := append([]string{s.ArtifactPath(db)}, s.extractedPaths(db.Binary(), db.Kind)...)
	for _, path := range paths {
		if err := s.fs.RemoveAll(path); err != nil {
			return errors.WithContext(err, fmt.Sprintf("remove %q", path))
		}
	}
	return nil
}

// PackArtifact rebuilds the artifact of an archived database from the
// project files that the analysis tool edited.
func (s *Store) PackArtifact(db *manifest.RevisionDatabase) error {
	if !db.Kind.Archived() {
		return nil
	}
	return s.pack(db.Binary(), db.Kind)
}

// PackLocal packs a project of an archived kind that was created locally
// rather than checked out. It returns false if there's no such project next
// to the binary.
func (s *Store) PackLocal(binary *manifest.Binary, kind manifest.ToolKind) (bool, error) {
	if !kind.Archived() {
		return false, nil
	}

	// The first path is the one that the tool creates when the project is
	// created.
	marker := s.extractedPaths(binary, kind)[0]
	if _, err := s.fs.Stat(marker); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.WithContext(err, "stat")
	}

	if err := s.pack(binary, kind); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) pack(binary *manifest.Binary, kind manifest.ToolKind) error {
	binDir := s.BinaryDir(manifest.PathOf(binary))
	dest := filepath.Join(binDir, binary.Name()+"."+string(kind))
	return archive.Pack(s.fs, dest, binDir, s.extractedPaths(binary, kind)...)
}

// UnpackArtifact extracts the artifact of an archived database next to it,
// replacing any previously extracted project.
func (s *Store) UnpackArtifact(db *manifest.RevisionDatabase) error {
	if !db.Kind.Archived() {
		return nil
	}

	binDir := s.BinaryDir(manifest.PathOf(db.Binary()))
	return archive.Unpack(s.fs, s.ArtifactPath(db), binDir,
		s.extractedPaths(db.Binary(), db.Kind)...)
}

// WorkingPaths returns the files and directories that the analysis tool edits
// for `db`.
func (s *Store) WorkingPaths(db *manifest.RevisionDatabase) []string {
	if db.Kind.Archived() {
		return s.extractedPaths(db.Binary(), db.Kind)
	}
	return []string{s.ArtifactPath(db)}
}

// extractedPaths returns the files and directories that the tool works on
// after an artifact of `kind` is unpacked.
func (s *Store) extractedPaths(binary *manifest.Binary, kind manifest.ToolKind) []string {
	binDir := s.BinaryDir(manifest.PathOf(binary))

	switch kind {
	case manifest.Ghidra:
		return []string{
			filepath.Join(binDir, binary.Name()+".gpr"),
			filepath.Join(binDir, binary.Name()+".rep"),
		}
	case manifest.AndroidStudio:
		return []string{filepath.Join(binDir, SourceDirName(binary.Name()))}
	}
	return nil
}

// SourceDirName returns the name of the directory that decompiled sources of
// `binary` are written to. It's the binary name without its four character
// extension, e.g. `app` for `app.apk`.
func SourceDirName(binary string) string {
	if len(binary) > 4 && binary[len(binary)-4] == '.' {
		return binary[:len(binary)-4]
	}
	return binary
}

// Reconcile deletes every local entry that's no longer referenced by `m`.
// Entries that match a Folder are descended into, and entries that match a
// Binary are left alone since their files are only written on demand. It
// returns the paths that were removed.
func (s *Store) Reconcile(m *manifest.Manifest) (removed []string, err error) {
	if err := validate.Check(validate.KindProject, m.Project); err != nil {
		return nil, err
	}

	type item struct {
		folder *manifest.Folder
		path   string
	}

	stack := []item{{m.Root, s.Path(m.Project)}}
	for len(stack) > 0 {
		curr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := afero.ReadDir(s.fs, curr.path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, errors.WithContext(err, fmt.Sprintf("list %q", curr.path))
		}

		for _, entry := range entries {
			path := filepath.Join(curr.path, entry.Name())
			child, ok := curr.folder.Children[entry.Name()]
			if !ok {
				if err := s.fs.RemoveAll(path); err != nil {
					return removed, errors.WithContext(err, fmt.Sprintf("remove %q", path))
				}
				log.WithField("path", path).Debug("Removed stale cache entry")
				removed = append(removed, path)
				continue
			}

			if folder, ok := child.(*manifest.Folder); ok {
				stack = append(stack, item{folder, path})
			}
		}
	}
	return removed, nil
}
