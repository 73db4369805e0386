// Package transport defines the operations that the remote authority
// provides, and implements them over HTTPS.
//
// The server is the only arbiter of checkout locks and of the project tree.
// Every method is a single blocking round trip, and none of them are retried.
package transport

import (
	"context"
)

// AdminUser is the only user that the server allows to manage accounts.
const AdminUser = "admin"

// Client is a connection to the remote authority, authenticated as a single
// user.
//
// Paths are manifest paths, and always start with the project name.
type Client interface {
	// Ping checks that the server is reachable and accepts the credentials.
	// It returns the server's version, or an empty string if the server
	// doesn't report one.
	Ping(ctx context.Context) (string, error)

	ListProjects(ctx context.Context) ([]string, error)
	ListUsers(ctx context.Context) ([]string, error)

	// ChangePassword changes the password of the authenticated user. The
	// client must reconnect with the new password afterwards.
	ChangePassword(ctx context.Context, password string) error

	// AddUser and DeleteUsers manage server accounts. Only AdminUser may
	// call them.
	AddUser(ctx context.Context, username, password string) error
	DeleteUsers(ctx context.Context, users []string) error

	ProjectUsers(ctx context.Context, project string) ([]string, error)
	AddProjectUsers(ctx context.Context, project string, users []string) error
	RemoveProjectUsers(ctx context.Context, project string, users []string) error

	// OpenProject returns the manifest JSON of the project.
	OpenProject(ctx context.Context, project string) ([]byte, error)

	// CreateProject creates the project with the given members, and returns
	// its manifest JSON.
	CreateProject(ctx context.Context, project string, users []string) ([]byte, error)

	DeleteProject(ctx context.Context, project string) error

	// MakeFolder creates the folder `name` inside of `parent`.
	MakeFolder(ctx context.Context, project string, parent []string, name string) error

	// DeleteFolder deletes the folder at `path` and everything under it.
	DeleteFolder(ctx context.Context, project string, path []string) error

	// RenameFolder renames the last segment of `path` to `name`.
	RenameFolder(ctx context.Context, project string, path []string, name string) error

	// Move moves the Folder or Binary at `src` into the folder at `dest`.
	Move(ctx context.Context, project string, src, dest []string) error

	// DeleteFile deletes the Binary or RevisionDatabase at `path`.
	DeleteFile(ctx context.Context, project string, path []string) error

	// UploadFile creates a Binary named `name` inside of `folder`. It fails
	// if the name is taken.
	UploadFile(ctx context.Context, project string, folder []string, name string, contents []byte) error

	// UploadArtifact creates a RevisionDatabase for the Binary at `binary`.
	// The server silently ignores artifacts that already exist.
	UploadArtifact(ctx context.Context, project string, binary []string, fileName string, contents []byte) error

	// DownloadFile returns the contents of the Binary `name` in `folder`.
	DownloadFile(ctx context.Context, project string, folder []string, name string) ([]byte, error)

	// Checkout takes the checkout lock and returns the requested version.
	Checkout(ctx context.Context, ref ArtifactRef, version int) (Artifact, error)

	// Checkin uploads a new version. The lock is released unless
	// `upload.KeepCheckout` is set.
	Checkin(ctx context.Context, ref ArtifactRef, upload Checkin) error

	// UndoCheckout releases the checkout lock without uploading anything.
	UndoCheckout(ctx context.Context, ref ArtifactRef) error

	// OpenArtifact returns the requested version without taking the lock.
	// It returns a ConflictError with reason AlreadyCheckedOut when the
	// server declines to send the artifact because it's checked out.
	OpenArtifact(ctx context.Context, ref ArtifactRef, version int) (Artifact, error)
}

// ArtifactRef addresses a RevisionDatabase on the server.
type ArtifactRef struct {
	Project string

	// Binary is the path of the Binary that the database belongs to.
	Binary []string

	// FileName is the database's file name, `<binary>.<ext>`.
	FileName string
}

// Artifact is a downloaded RevisionDatabase.
type Artifact struct {
	Contents []byte
	Changes  []byte
}

// Checkin is the data uploaded when checking in a RevisionDatabase.
type Checkin struct {
	Contents     []byte
	Changes      []byte
	Comment      string
	KeepCheckout bool
}
