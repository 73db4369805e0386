// Package tree implements structural changes to a project: creating, renaming,
// moving and deleting entries, and uploading binaries.
//
// The server decides whether a change is allowed. Local state is only changed
// after the server accepts, and every successful change is followed by a
// refresh.
package tree

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/revsync/pkg/cache"
	"github.com/sidkik/revsync/pkg/errors"
	"github.com/sidkik/revsync/pkg/manifest"
	"github.com/sidkik/revsync/pkg/pathlock"
	"github.com/sidkik/revsync/pkg/session"
	"github.com/sidkik/revsync/pkg/transport"
	"github.com/sidkik/revsync/pkg/validate"
)

// Syncer provides the current manifest of a project.
type Syncer interface {
	Refresh(ctx context.Context, sess session.Session) (*manifest.Manifest, error)
	Current(project string) (*manifest.Manifest, bool)
}

// Mutator applies structural changes.
type Mutator struct {
	client transport.Client
	syncer Syncer
	store  *cache.Store
	locks  *pathlock.Locker

	// src is where uploaded files are read from.
	src afero.Fs
}

// New creates a Mutator that uploads files from `src`.
func New(client transport.Client, syncer Syncer, store *cache.Store,
	locks *pathlock.Locker, src afero.Fs) *Mutator {
	return &Mutator{
		client: client,
		syncer: syncer,
		store:  store,
		locks:  locks,
		src:    src,
	}
}

// MakeFolder creates the folder `name` in the folder at `parent`.
func (m *Mutator) MakeFolder(ctx context.Context, sess session.Session, parent []string, name string) error {
	if err := validate.Check(validate.KindFolder, name); err != nil {
		return err
	}

	path := join(parent, name)
	release, err := m.locks.Acquire(path)
	if err != nil {
		return err
	}
	defer release()

	if err := m.client.MakeFolder(ctx, sess.Project, parent, name); err != nil {
		return m.afterConflict(ctx, sess, errors.WithContext(err, "make folder"))
	}

	log.WithField("path", strings.Join(path, "/")).Info("Created folder")
	return m.refresh(ctx, sess)
}

// Rename renames the folder at `path` to `name`.
func (m *Mutator) Rename(ctx context.Context, sess session.Session, path []string, name string) error {
	if len(path) < 2 {
		return errors.NewFriendlyError("The project root can't be renamed.")
	}

	if err := validate.Check(validate.KindFolder, name); err != nil {
		return err
	}

	release, err := m.locks.Acquire(path)
	if err != nil {
		return err
	}
	defer release()

	if err := m.client.RenameFolder(ctx, sess.Project, path, name); err != nil {
		return m.afterConflict(ctx, sess, errors.WithContext(err, "rename folder"))
	}

	log.WithFields(log.Fields{
		"path": strings.Join(path, "/"),
		"name": name,
	}).Info("Renamed folder")
	return m.refresh(ctx, sess)
}

// Move moves the Folder or Binary at `src` into the folder at `dest`.
func (m *Mutator) Move(ctx context.Context, sess session.Session, src, dest []string) error {
	if len(src) < 2 {
		return errors.NewFriendlyError("The project root can't be moved.")
	}

	if isWithin(dest, src) {
		return errors.NewFriendlyError("%q can't be moved into itself.", strings.Join(src, "/"))
	}

	mf, err := m.manifest(ctx, sess)
	if err != nil {
		return err
	}

	node, err := mf.Resolve(src)
	if err != nil {
		return err
	}

	if _, ok := node.(*manifest.RevisionDatabase); ok {
		return errors.NewFriendlyError("Only folders and binaries can be moved.")
	}

	if _, err := mf.ResolveFolder(dest); err != nil {
		return err
	}

	release, err := m.locks.Acquire(src)
	if err != nil {
		return err
	}
	defer release()

	// Moving an entry into its current folder is refused by the server.
	if target := join(dest, node.Name()); !isWithin(target, src) {
		releaseTarget, err := m.locks.Acquire(target)
		if err != nil {
			return err
		}
		defer releaseTarget()
	}

	if err := m.client.Move(ctx, sess.Project, src, dest); err != nil {
		return m.afterConflict(ctx, sess, errors.WithContext(err, "move"))
	}

	log.WithFields(log.Fields{
		"src":  strings.Join(src, "/"),
		"dest": strings.Join(dest, "/"),
	}).Info("Moved")
	return m.refresh(ctx, sess)
}

// DeleteFolder deletes the folder at `path`, and everything in it.
func (m *Mutator) DeleteFolder(ctx context.Context, sess session.Session, path []string) error {
	if len(path) < 2 {
		return errors.NewFriendlyError("The project root can't be deleted. " +
			"Delete the project instead.")
	}

	release, err := m.locks.Acquire(path)
	if err != nil {
		return err
	}
	defer release()

	if err := m.client.DeleteFolder(ctx, sess.Project, path); err != nil {
		return m.afterConflict(ctx, sess, errors.WithContext(err, "delete folder"))
	}

	if err := m.store.RemoveSubtree(path); err != nil {
		return err
	}

	log.WithField("path", strings.Join(path, "/")).Info("Deleted folder")
	return m.refresh(ctx, sess)
}

// DeleteFile deletes the Binary or RevisionDatabase at `path`. Deleting a
// database only removes its local artifact, while deleting a binary removes
// everything that was stored for it.
func (m *Mutator) DeleteFile(ctx context.Context, sess session.Session, path []string) error {
	mf, err := m.manifest(ctx, sess)
	if err != nil {
		return err
	}

	node, err := mf.Resolve(path)
	if err != nil {
		return err
	}

	if _, ok := node.(*manifest.Folder); ok {
		return errors.NewFriendlyError("%q is a folder.", strings.Join(path, "/"))
	}

	release, err := m.locks.Acquire(path)
	if err != nil {
		return err
	}
	defer release()

	if err := m.client.DeleteFile(ctx, sess.Project, path); err != nil {
		return m.afterConflict(ctx, sess, errors.WithContext(err, "delete file"))
	}

	switch n := node.(type) {
	case *manifest.RevisionDatabase:
		err = m.store.RemoveArtifact(n)
	case *manifest.Binary:
		err = m.store.RemoveSubtree(path)
	}
	if err != nil {
		return err
	}

	log.WithField("path", strings.Join(path, "/")).Info("Deleted file")
	return m.refresh(ctx, sess)
}

// UploadFile uploads the local file at `localPath` as a new Binary in the
// folder at `folder`.
func (m *Mutator) UploadFile(ctx context.Context, sess session.Session, folder []string, localPath string) error {
	name := filepath.Base(localPath)
	release, err := m.locks.Acquire(join(folder, name))
	if err != nil {
		return err
	}
	defer release()

	if err := m.upload(ctx, sess, folder, localPath); err != nil {
		return m.afterConflict(ctx, sess, err)
	}
	return m.refresh(ctx, sess)
}

// UploadDir recreates the local directory `localDir` in the folder at
// `parent`, uploading every file in it. Nothing is uploaded unless every
// directory name is valid.
func (m *Mutator) UploadDir(ctx context.Context, sess session.Session, parent []string, localDir string) error {
	if err := validate.Tree(m.src, localDir); err != nil {
		return err
	}

	path := join(parent, filepath.Base(localDir))
	release, err := m.locks.Acquire(path)
	if err != nil {
		return err
	}
	defer release()

	uploadErr := m.uploadDir(ctx, sess, parent, localDir)

	// The upload may have partially succeeded, so the manifest is refreshed
	// either way.
	refreshErr := m.refresh(ctx, sess)
	if uploadErr != nil {
		return uploadErr
	}
	return refreshErr
}

func (m *Mutator) uploadDir(ctx context.Context, sess session.Session, parent []string, localDir string) error {
	name := filepath.Base(localDir)
	if err := m.client.MakeFolder(ctx, sess.Project, parent, name); err != nil {
		return errors.WithContext(err, fmt.Sprintf("make folder %q", name))
	}

	entries, err := afero.ReadDir(m.src, localDir)
	if err != nil {
		return errors.WithContext(err, fmt.Sprintf("list %q", localDir))
	}

	folder := join(parent, name)
	for _, entry := range entries {
		localPath := filepath.Join(localDir, entry.Name())
		if entry.IsDir() {
			err = m.uploadDir(ctx, sess, folder, localPath)
		} else {
			err = m.upload(ctx, sess, folder, localPath)
		}
		if err != nil {
			return err
		}
	}

	log.WithField("path", strings.Join(folder, "/")).Info("Uploaded directory")
	return nil
}

func (m *Mutator) upload(ctx context.Context, sess session.Session, folder []string, localPath string) error {
	contents, err := afero.ReadFile(m.src, localPath)
	if err != nil {
		return errors.WithContext(err, fmt.Sprintf("read %q", localPath))
	}

	name := filepath.Base(localPath)
	if err := m.client.UploadFile(ctx, sess.Project, folder, name, contents); err != nil {
		return errors.WithContext(err, fmt.Sprintf("upload %q", name))
	}

	log.WithFields(log.Fields{
		"path": strings.Join(join(folder, name), "/"),
		"size": len(contents),
	}).Debug("Uploaded file")
	return nil
}

func (m *Mutator) manifest(ctx context.Context, sess session.Session) (*manifest.Manifest, error) {
	if mf, ok := m.syncer.Current(sess.Project); ok {
		return mf, nil
	}
	return m.syncer.Refresh(ctx, sess)
}

func (m *Mutator) refresh(ctx context.Context, sess session.Session) error {
	if _, err := m.syncer.Refresh(ctx, sess); err != nil {
		return errors.WithContext(err, "refresh")
	}
	return nil
}

// afterConflict refreshes the manifest if `err` shows that it's stale. The
// refresh is best effort, and `err` is always returned.
func (m *Mutator) afterConflict(ctx context.Context, sess session.Session, err error) error {
	if _, ok := errors.RootCause(err).(errors.ConflictError); !ok {
		return err
	}

	if _, refreshErr := m.syncer.Refresh(ctx, sess); refreshErr != nil {
		log.WithError(refreshErr).Warn("Failed to refresh after conflict")
	}
	return err
}

// isWithin returns whether `path` is `ancestor` or one of its descendants.
func isWithin(path, ancestor []string) bool {
	if len(path) < len(ancestor) {
		return false
	}

	for i := range ancestor {
		if path[i] != ancestor[i] {
			return false
		}
	}
	return true
}

func join(parent []string, name string) []string {
	return append(append([]string{}, parent...), name)
}
