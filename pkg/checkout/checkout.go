// Package checkout implements the exclusive lock lifecycle of revision
// databases. The server arbitrates every lock, and the local cache is only
// written after the server accepts a request.
package checkout

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/sidkik/revsync/pkg/cache"
	"github.com/sidkik/revsync/pkg/errors"
	"github.com/sidkik/revsync/pkg/manifest"
	"github.com/sidkik/revsync/pkg/pathlock"
	"github.com/sidkik/revsync/pkg/session"
	"github.com/sidkik/revsync/pkg/transport"
)

// DefaultComment is sent when a database is checked in without a comment.
const DefaultComment = "NoComment"

// ReadOnlyWarning is returned by Open when the downloaded copy may be
// overwritten by a later open or checkout.
const ReadOnlyWarning = "The database was opened read-only. Opening it again or " +
	"checking it out will overwrite any local changes. Check it out to make changes."

// Syncer provides the current manifest of a project.
type Syncer interface {
	Refresh(ctx context.Context, sess session.Session) (*manifest.Manifest, error)
	Current(project string) (*manifest.Manifest, bool)
}

// Coordinator drives checkouts and checkins.
type Coordinator struct {
	client transport.Client
	syncer Syncer
	store  *cache.Store
	locks  *pathlock.Locker
}

// Result describes the local copy of a database after an operation.
type Result struct {
	// Path is where the artifact is stored locally.
	Path    string
	Version manifest.Version

	// Warning is set when the local copy shouldn't be edited.
	Warning string

	// Unchanged is set when the server declined to send the artifact, and the
	// local copy was left as is.
	Unchanged bool
}

// New creates a Coordinator. `locks` should be shared with every other
// component that mutates the same projects.
func New(client transport.Client, syncer Syncer, store *cache.Store,
	locks *pathlock.Locker) *Coordinator {
	return &Coordinator{
		client: client,
		syncer: syncer,
		store:  store,
		locks:  locks,
	}
}

// Checkout takes the lock on the database at `path`, and writes the selected
// version to the cache. An empty `label` selects the latest version.
func (c *Coordinator) Checkout(ctx context.Context, sess session.Session,
	path []string, label string) (Result, error) {
	release, err := c.locks.Acquire(path)
	if err != nil {
		return Result{}, err
	}
	defer release()

	db, v, err := c.selectVersion(ctx, sess, path, label)
	if err != nil {
		return Result{}, err
	}

	artifact, err := c.client.Checkout(ctx, ref(sess, db), v.Index)
	if err != nil {
		return Result{}, c.afterConflict(ctx, sess, errors.WithContext(err, "checkout"))
	}

	logger := log.WithFields(log.Fields{
		"path":    strings.Join(path, "/"),
		"version": v.Label,
	})
	if err := c.materialize(ctx, sess, db, artifact); err != nil {
		// The server already granted the lock, so the user has to undo the
		// checkout or retry it once the cache is writable.
		logger.WithError(err).Warn("Checked out, but failed to write the local copy")
		return Result{}, err
	}
	logger.Info("Checked out database")

	return Result{Path: c.store.ArtifactPath(db), Version: v}, c.refresh(ctx, sess)
}

// Checkin uploads the local copy of the database at `path` as a new version.
// The lock is released unless `keepCheckout` is set.
func (c *Coordinator) Checkin(ctx context.Context, sess session.Session,
	path []string, comment string, keepCheckout bool) error {
	release, err := c.locks.Acquire(path)
	if err != nil {
		return err
	}
	defer release()

	db, err := c.database(ctx, sess, path)
	if err != nil {
		return err
	}

	if err := c.store.PackArtifact(db); err != nil {
		return errors.WithContext(err, "pack")
	}

	contents, err := c.store.ReadArtifact(db)
	if err != nil {
		return err
	}

	changes, err := c.store.ReadChanges(db.Binary())
	if err != nil {
		return err
	}

	if comment == "" {
		comment = DefaultComment
	}

	err = c.client.Checkin(ctx, ref(sess, db), transport.Checkin{
		Contents:     contents,
		Changes:      changes,
		Comment:      comment,
		KeepCheckout: keepCheckout,
	})
	if err != nil {
		return c.afterConflict(ctx, sess, errors.WithContext(err, "checkin"))
	}

	log.WithFields(log.Fields{
		"path":          strings.Join(path, "/"),
		"keep-checkout": keepCheckout,
	}).Info("Checked in database")
	return c.refresh(ctx, sess)
}

// UndoCheckout releases the lock on the database at `path` without uploading
// anything.
func (c *Coordinator) UndoCheckout(ctx context.Context, sess session.Session, path []string) error {
	release, err := c.locks.Acquire(path)
	if err != nil {
		return err
	}
	defer release()

	db, err := c.database(ctx, sess, path)
	if err != nil {
		return err
	}

	if err := c.client.UndoCheckout(ctx, ref(sess, db)); err != nil {
		return c.afterConflict(ctx, sess, errors.WithContext(err, "undo checkout"))
	}

	log.WithField("path", strings.Join(path, "/")).Info("Undid checkout")
	return c.refresh(ctx, sess)
}

// Open downloads the selected version of the database at `path` without
// taking the lock. If the caller has the database checked out, the server
// doesn't send it and the local copy is left untouched.
func (c *Coordinator) Open(ctx context.Context, sess session.Session,
	path []string, label string) (Result, error) {
	release, err := c.locks.Acquire(path)
	if err != nil {
		return Result{}, err
	}
	defer release()

	db, v, err := c.selectVersion(ctx, sess, path, label)
	if err != nil {
		return Result{}, err
	}

	result := Result{Path: c.store.ArtifactPath(db), Version: v}
	artifact, err := c.client.OpenArtifact(ctx, ref(sess, db), v.Index)
	switch {
	case errors.IsConflict(err, errors.AlreadyCheckedOut):
		log.WithField("path", strings.Join(path, "/")).
			Debug("Database is checked out by the current user. Keeping the local copy")
		result.Unchanged = true
		return result, nil
	case err != nil:
		return Result{}, errors.WithContext(err, "open")
	}

	if err := c.materialize(ctx, sess, db, artifact); err != nil {
		return Result{}, err
	}

	result.Warning = ReadOnlyWarning
	return result, nil
}

// FetchBinary downloads the original binary at `path` into the cache, and
// returns where it was written.
func (c *Coordinator) FetchBinary(ctx context.Context, sess session.Session, path []string) (string, error) {
	release, err := c.locks.Acquire(path)
	if err != nil {
		return "", err
	}
	defer release()

	binary, err := c.binary(ctx, sess, path)
	if err != nil {
		return "", err
	}

	if err := c.fetchBinary(ctx, sess, binary); err != nil {
		return "", err
	}
	return c.store.BinaryPath(binary), nil
}

// PushLocal uploads the databases that were created locally for the binary at
// `path`. Projects of archived kinds are packed first. Databases that already
// exist on the server are left unchanged by it. It returns the names of the
// uploaded files.
func (c *Coordinator) PushLocal(ctx context.Context, sess session.Session, path []string) ([]string, error) {
	release, err := c.locks.Acquire(path)
	if err != nil {
		return nil, err
	}
	defer release()

	binary, err := c.binary(ctx, sess, path)
	if err != nil {
		return nil, err
	}

	for _, kind := range manifest.Kinds {
		packed, err := c.store.PackLocal(binary, kind)
		if err != nil {
			return nil, errors.WithContext(err, fmt.Sprintf("pack %s project", kind))
		}
		if packed {
			log.WithField("kind", kind).Debug("Packed local project")
		}
	}

	uploads, err := c.localDatabases(binary)
	if err != nil {
		return nil, err
	}

	binaryPath := manifest.PathOf(binary)
	g, gctx := errgroup.WithContext(ctx)
	for _, upload := range uploads {
		upload := upload
		g.Go(func() error {
			contents, err := afero.ReadFile(c.store.Fs(), upload.localPath)
			if err != nil {
				return errors.WithContext(err, fmt.Sprintf("read %q", upload.localPath))
			}

			err = c.client.UploadArtifact(gctx, sess.Project, binaryPath, upload.fileName, contents)
			if err != nil {
				return errors.WithContext(err, fmt.Sprintf("upload %s", upload.fileName))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, c.afterConflict(ctx, sess, err)
	}

	var pushed []string
	for _, upload := range uploads {
		pushed = append(pushed, upload.fileName)
	}
	return pushed, c.refresh(ctx, sess)
}

type localDatabase struct {
	localPath string
	fileName  string
}

// localDatabases finds the databases next to `binary` that tools saved. Tools
// that strip the binary's extension get their files renamed to what the
// server expects.
func (c *Coordinator) localDatabases(binary *manifest.Binary) ([]localDatabase, error) {
	dir := c.store.BinaryDir(manifest.PathOf(binary))
	entries, err := afero.ReadDir(c.store.Fs(), dir)
	if err != nil {
		return nil, errors.WithContext(err, "list local files")
	}

	stem := strings.TrimSuffix(binary.Name(), filepath.Ext(binary.Name()))

	var dbs []localDatabase
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		ext := filepath.Ext(name)
		kind, ok := manifest.ParseToolKind(strings.TrimPrefix(ext, "."))
		if !ok {
			continue
		}

		base := strings.TrimSuffix(name, ext)
		if base != binary.Name() && !(kind.StripsExtension() && base == stem) {
			log.WithField("file", name).Debug("Skipping database that doesn't match the binary")
			continue
		}

		dbs = append(dbs, localDatabase{
			localPath: filepath.Join(dir, name),
			fileName:  binary.Name() + "." + string(kind),
		})
	}
	return dbs, nil
}

func (c *Coordinator) materialize(ctx context.Context, sess session.Session,
	db *manifest.RevisionDatabase, artifact transport.Artifact) error {
	if err := c.store.WriteArtifact(db, artifact.Contents); err != nil {
		return err
	}

	if err := c.store.WriteChanges(db.Binary(), artifact.Changes); err != nil {
		return err
	}

	if err := c.store.UnpackArtifact(db); err != nil {
		return errors.WithContext(err, "unpack")
	}

	if db.Kind.NeedsBinary() {
		return c.fetchBinary(ctx, sess, db.Binary())
	}
	return nil
}

func (c *Coordinator) fetchBinary(ctx context.Context, sess session.Session, binary *manifest.Binary) error {
	binaryPath := manifest.PathOf(binary)
	folder := binaryPath[:len(binaryPath)-1]

	contents, err := c.client.DownloadFile(ctx, sess.Project, folder, binary.Name())
	if err != nil {
		return errors.WithContext(err, "download binary")
	}
	return c.store.WriteBinary(binary, contents)
}

// selectVersion always refreshes first so that the latest version isn't
// resolved against a stale history.
func (c *Coordinator) selectVersion(ctx context.Context, sess session.Session,
	path []string, label string) (*manifest.RevisionDatabase, manifest.Version, error) {
	m, err := c.syncer.Refresh(ctx, sess)
	if err != nil {
		return nil, manifest.Version{}, errors.WithContext(err, "refresh")
	}

	db, err := m.ResolveDatabase(path)
	if err != nil {
		return nil, manifest.Version{}, err
	}

	v, err := db.Select(label)
	if err != nil {
		return nil, manifest.Version{}, err
	}
	return db, v, nil
}

func (c *Coordinator) database(ctx context.Context, sess session.Session,
	path []string) (*manifest.RevisionDatabase, error) {
	m, err := c.manifest(ctx, sess)
	if err != nil {
		return nil, err
	}
	return m.ResolveDatabase(path)
}

func (c *Coordinator) binary(ctx context.Context, sess session.Session, path []string) (*manifest.Binary, error) {
	m, err := c.manifest(ctx, sess)
	if err != nil {
		return nil, err
	}

	node, err := m.Resolve(path)
	if err != nil {
		return nil, err
	}

	binary, ok := node.(*manifest.Binary)
	if !ok {
		return nil, errors.NewNotFound(path)
	}
	return binary, nil
}

func (c *Coordinator) manifest(ctx context.Context, sess session.Session) (*manifest.Manifest, error) {
	if m, ok := c.syncer.Current(sess.Project); ok {
		return m, nil
	}
	return c.syncer.Refresh(ctx, sess)
}

func (c *Coordinator) refresh(ctx context.Context, sess session.Session) error {
	if _, err := c.syncer.Refresh(ctx, sess); err != nil {
		return errors.WithContext(err, "refresh")
	}
	return nil
}

// afterConflict refreshes the manifest if `err` shows that it's stale. The
// refresh is best effort, and `err` is always returned.
func (c *Coordinator) afterConflict(ctx context.Context, sess session.Session, err error) error {
	if _, ok := errors.RootCause(err).(errors.ConflictError); !ok {
		return err
	}

	if _, refreshErr := c.syncer.Refresh(ctx, sess); refreshErr != nil {
		log.WithError(refreshErr).Warn("Failed to refresh after conflict")
	}
	return err
}

func ref(sess session.Session, db *manifest.RevisionDatabase) transport.ArtifactRef {
	return transport.ArtifactRef{
		Project:  sess.Project,
		Binary:   manifest.PathOf(db.Binary()),
		FileName: db.FileName(),
	}
}
