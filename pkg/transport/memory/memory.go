// Package memory implements an in-process remote authority. It enforces the
// same lock and tree rules as the real server, and is used to test the
// client against more than one user.
package memory

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/sidkik/revsync/pkg/errors"
	"github.com/sidkik/revsync/pkg/manifest"
	"github.com/sidkik/revsync/pkg/transport"
)

// Server holds the state of every project.
type Server struct {
	lock        sync.Mutex
	users       []string
	passwords   map[string]string
	projects    map[string]*project
	binaries    map[*manifest.Binary][]byte
	histories   map[*manifest.RevisionDatabase]*history
	unreachable bool
}

type project struct {
	tree    *manifest.Manifest
	members []string
}

type history struct {
	contents [][]byte
	changes  [][]byte
	comments []string
}

// NewServer returns a server that knows about `users`.
func NewServer(users ...string) *Server {
	return &Server{
		users:     users,
		passwords: map[string]string{},
		projects:  map[string]*project{},
		binaries:  map[*manifest.Binary][]byte{},
		histories: map[*manifest.RevisionDatabase]*history{},
	}
}

// Client returns a client that's authenticated as `user`.
func (s *Server) Client(user string) transport.Client {
	return &client{server: s, user: user}
}

// SetUnreachable makes every request fail with a TransportError until it's
// reset.
func (s *Server) SetUnreachable(unreachable bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.unreachable = unreachable
}

// Password returns the password last set for `user`, and whether one was
// set.
func (s *Server) Password(user string) (string, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	password, ok := s.passwords[user]
	return password, ok
}

// Manifest returns a copy of the project's tree.
func (s *Server) Manifest(name string) (*manifest.Manifest, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	p, err := s.project(name)
	if err != nil {
		return nil, err
	}
	return snapshot(p.tree)
}

// Comments returns the checkin comments of the database at `path`. The first
// version was uploaded rather than checked in, so its comment is empty.
func (s *Server) Comments(path []string) []string {
	s.lock.Lock()
	defer s.lock.Unlock()

	p, err := s.project(path[0])
	if err != nil {
		return nil
	}

	db, err := p.tree.ResolveDatabase(path)
	if err != nil {
		return nil
	}
	return append([]string{}, s.histories[db].comments...)
}

func snapshot(tree *manifest.Manifest) (*manifest.Manifest, error) {
	data, err := manifest.Marshal(tree)
	if err != nil {
		return nil, err
	}
	return manifest.Parse(tree.Project, data)
}

func (s *Server) project(name string) (*project, error) {
	p, ok := s.projects[name]
	if !ok {
		return nil, errors.NewNotFound([]string{name})
	}
	return p, nil
}

type client struct {
	server *Server
	user   string
}

// begin locks the server and checks that the request can be served. The
// caller must unlock the server if no error is returned.
func (c *client) begin(op string) error {
	c.server.lock.Lock()
	if c.server.unreachable {
		c.server.lock.Unlock()
		return errors.TransportError{Op: op, Err: errors.New("connection refused")}
	}

	for _, user := range c.server.users {
		if user == c.user {
			return nil
		}
	}
	c.server.lock.Unlock()
	return errors.AuthError{Username: c.user}
}

// beginAdmin is like begin, but also requires the caller to be the admin.
func (c *client) beginAdmin(op string) error {
	if err := c.begin(op); err != nil {
		return err
	}

	if c.user != transport.AdminUser {
		c.end()
		return errors.AuthError{Username: c.user}
	}
	return nil
}

func (c *client) end() {
	c.server.lock.Unlock()
}

func (c *client) Ping(ctx context.Context) (string, error) {
	if err := c.begin("ping"); err != nil {
		return "", err
	}
	defer c.end()
	return "", nil
}

func (c *client) ListProjects(ctx context.Context) ([]string, error) {
	if err := c.begin("list projects"); err != nil {
		return nil, err
	}
	defer c.end()

	var names []string
	for name, p := range c.server.projects {
		if contains(p.members, c.user) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (c *client) ListUsers(ctx context.Context) ([]string, error) {
	if err := c.begin("list users"); err != nil {
		return nil, err
	}
	defer c.end()
	return append([]string{}, c.server.users...), nil
}

func (c *client) ChangePassword(ctx context.Context, password string) error {
	if err := c.begin("change password"); err != nil {
		return err
	}
	defer c.end()

	if password == "" {
		return badRequest("change password", "empty password")
	}
	c.server.passwords[c.user] = password
	return nil
}

func (c *client) AddUser(ctx context.Context, username, password string) error {
	if err := c.beginAdmin("add user"); err != nil {
		return err
	}
	defer c.end()

	if username == "" || password == "" {
		return badRequest("add user", "missing username or password")
	}
	if contains(c.server.users, username) {
		return errors.ConflictError{Reason: errors.AlreadyExists, Path: []string{username}}
	}

	c.server.users = append(c.server.users, username)
	c.server.passwords[username] = password
	return nil
}

func (c *client) DeleteUsers(ctx context.Context, users []string) error {
	if err := c.beginAdmin("delete users"); err != nil {
		return err
	}
	defer c.end()

	var remaining []string
	for _, user := range c.server.users {
		if !contains(users, user) {
			remaining = append(remaining, user)
		}
	}
	c.server.users = remaining

	for _, user := range users {
		delete(c.server.passwords, user)
	}
	for _, p := range c.server.projects {
		var members []string
		for _, member := range p.members {
			if !contains(users, member) {
				members = append(members, member)
			}
		}
		p.members = members
	}
	return nil
}

func (c *client) ProjectUsers(ctx context.Context, name string) ([]string, error) {
	if err := c.begin("list project users"); err != nil {
		return nil, err
	}
	defer c.end()

	p, err := c.server.project(name)
	if err != nil {
		return nil, err
	}
	return append([]string{}, p.members...), nil
}

func (c *client) AddProjectUsers(ctx context.Context, name string, users []string) error {
	if err := c.begin("add project users"); err != nil {
		return err
	}
	defer c.end()

	p, err := c.server.project(name)
	if err != nil {
		return err
	}

	for _, user := range users {
		if !contains(p.members, user) {
			p.members = append(p.members, user)
		}
	}
	return nil
}

func (c *client) RemoveProjectUsers(ctx context.Context, name string, users []string) error {
	if err := c.begin("remove project users"); err != nil {
		return err
	}
	defer c.end()

	p, err := c.server.project(name)
	if err != nil {
		return err
	}

	var members []string
	for _, member := range p.members {
		if !contains(users, member) {
			members = append(members, member)
		}
	}
	p.members = members
	return nil
}

func (c *client) OpenProject(ctx context.Context, name string) ([]byte, error) {
	if err := c.begin("open project"); err != nil {
		return nil, err
	}
	defer c.end()

	p, err := c.server.project(name)
	if err != nil {
		return nil, err
	}
	return manifest.Marshal(p.tree)
}

func (c *client) CreateProject(ctx context.Context, name string, users []string) ([]byte, error) {
	if err := c.begin("create project"); err != nil {
		return nil, err
	}
	defer c.end()

	if _, ok := c.server.projects[name]; ok {
		return nil, errors.ConflictError{Reason: errors.AlreadyExists, Path: []string{name}}
	}

	p := &project{tree: manifest.New(name), members: append([]string{}, users...)}
	c.server.projects[name] = p
	return manifest.Marshal(p.tree)
}

func (c *client) DeleteProject(ctx context.Context, name string) error {
	if err := c.begin("delete project"); err != nil {
		return err
	}
	defer c.end()

	delete(c.server.projects, name)
	return nil
}

func (c *client) MakeFolder(ctx context.Context, name string, parent []string, dirname string) error {
	if err := c.begin("make folder"); err != nil {
		return err
	}
	defer c.end()

	folder, err := c.folder(name, parent)
	if err != nil {
		return err
	}

	if _, ok := folder.Children[dirname]; ok {
		return errors.ConflictError{Reason: errors.AlreadyExists, Path: join(parent, dirname)}
	}
	folder.AddFolder(dirname)
	return nil
}

func (c *client) DeleteFolder(ctx context.Context, name string, path []string) error {
	if err := c.begin("delete folder"); err != nil {
		return err
	}
	defer c.end()

	folder, err := c.folder(name, path)
	if err != nil {
		return err
	}

	parent, ok := folder.Parent().(*manifest.Folder)
	if !ok {
		return badRequest("delete folder", "can't delete the project root")
	}

	if locked(folder) {
		return errors.ConflictError{Reason: errors.CheckedOutConflict, Path: path}
	}
	parent.Detach(folder.Name())
	return nil
}

func (c *client) RenameFolder(ctx context.Context, name string, path []string, newName string) error {
	if err := c.begin("rename folder"); err != nil {
		return err
	}
	defer c.end()

	folder, err := c.folder(name, path)
	if err != nil {
		return err
	}

	parent, ok := folder.Parent().(*manifest.Folder)
	if !ok {
		return badRequest("rename folder", "can't rename the project root")
	}

	if _, ok := parent.Children[newName]; ok {
		return errors.ConflictError{Reason: errors.AlreadyExists, Path: join(path[:len(path)-1], newName)}
	}

	if locked(folder) {
		return errors.ConflictError{Reason: errors.CheckedOutConflict, Path: path}
	}

	parent.Detach(folder.Name())
	parent.Attach(newName, folder)
	return nil
}

func (c *client) Move(ctx context.Context, name string, src, dest []string) error {
	if err := c.begin("move"); err != nil {
		return err
	}
	defer c.end()

	p, err := c.server.project(name)
	if err != nil {
		return err
	}

	node, err := p.tree.Resolve(src)
	if err != nil {
		return err
	}

	destFolder, err := p.tree.ResolveFolder(dest)
	if err != nil {
		return err
	}

	parent, ok := node.Parent().(*manifest.Folder)
	if !ok {
		return badRequest("move", "only folders and binaries can be moved")
	}

	for curr := manifest.Node(destFolder); curr != nil; curr = curr.Parent() {
		if curr == node {
			return badRequest("move", "can't move a folder into itself")
		}
	}

	if _, ok := destFolder.Children[node.Name()]; ok {
		return errors.ConflictError{Reason: errors.AlreadyExists, Path: src}
	}

	if locked(node) {
		return errors.ConflictError{Reason: errors.CheckedOutConflict, Path: src}
	}

	parent.Detach(node.Name())
	destFolder.Attach(node.Name(), node)
	return nil
}

func (c *client) DeleteFile(ctx context.Context, name string, path []string) error {
	if err := c.begin("delete file"); err != nil {
		return err
	}
	defer c.end()

	p, err := c.server.project(name)
	if err != nil {
		return err
	}

	node, err := p.tree.Resolve(path)
	if err != nil {
		return err
	}

	if locked(node) {
		return errors.ConflictError{Reason: errors.CheckedOutConflict, Path: path}
	}

	switch n := node.(type) {
	case *manifest.Binary:
		n.Parent().(*manifest.Folder).Detach(n.Name())
		delete(c.server.binaries, n)
	case *manifest.RevisionDatabase:
		delete(n.Binary().Databases, n.Kind)
		delete(c.server.histories, n)
	default:
		return badRequest("delete file", "not a file")
	}
	return nil
}

func (c *client) UploadFile(ctx context.Context, name string, folderPath []string,
	fileName string, contents []byte) error {
	if err := c.begin("upload file"); err != nil {
		return err
	}
	defer c.end()

	folder, err := c.folder(name, folderPath)
	if err != nil {
		return err
	}

	if _, ok := folder.Children[fileName]; ok {
		return errors.ConflictError{Reason: errors.AlreadyExists, Path: join(folderPath, fileName)}
	}
	c.server.binaries[folder.AddBinary(fileName)] = copyBytes(contents)
	return nil
}

func (c *client) UploadArtifact(ctx context.Context, name string, binaryPath []string,
	fileName string, contents []byte) error {
	if err := c.begin("upload artifact"); err != nil {
		return err
	}
	defer c.end()

	binary, err := c.binary(name, binaryPath)
	if err != nil {
		return err
	}

	kind, ok := manifest.ParseToolKind(strings.TrimPrefix(fileName, binary.Name()+"."))
	if !ok || fileName != binary.Name()+"."+string(kind) {
		return badRequest("upload artifact", fmt.Sprintf("unexpected file name %q", fileName))
	}

	if _, ok := binary.Databases[kind]; ok {
		return nil
	}

	db := binary.AddDatabase(kind, "v0")
	c.server.histories[db] = &history{
		contents: [][]byte{copyBytes(contents)},
		changes:  [][]byte{{}},
		comments: []string{""},
	}
	return nil
}

func (c *client) DownloadFile(ctx context.Context, name string, folder []string,
	fileName string) ([]byte, error) {
	if err := c.begin("download file"); err != nil {
		return nil, err
	}
	defer c.end()

	binary, err := c.binary(name, join(folder, fileName))
	if err != nil {
		return nil, err
	}
	return copyBytes(c.server.binaries[binary]), nil
}

func (c *client) Checkout(ctx context.Context, ref transport.ArtifactRef, version int) (transport.Artifact, error) {
	if err := c.begin("checkout"); err != nil {
		return transport.Artifact{}, err
	}
	defer c.end()

	db, err := c.database(ref)
	if err != nil {
		return transport.Artifact{}, err
	}

	if db.CheckedOut() {
		return transport.Artifact{}, errors.ConflictError{
			Reason: errors.AlreadyCheckedOut,
			Path:   manifest.PathOf(db),
		}
	}

	artifact, err := c.artifact(db, version)
	if err != nil {
		return transport.Artifact{}, err
	}
	db.Holder = c.user
	return artifact, nil
}

func (c *client) Checkin(ctx context.Context, ref transport.ArtifactRef, upload transport.Checkin) error {
	if err := c.begin("checkin"); err != nil {
		return err
	}
	defer c.end()

	db, err := c.database(ref)
	if err != nil {
		return err
	}

	if db.Holder != c.user {
		return errors.ConflictError{Reason: errors.NotCheckedOut, Path: manifest.PathOf(db)}
	}

	db.Append(fmt.Sprintf("v%d", len(db.Versions)))
	h := c.server.histories[db]
	h.contents = append(h.contents, copyBytes(upload.Contents))
	h.changes = append(h.changes, copyBytes(upload.Changes))
	h.comments = append(h.comments, upload.Comment)

	if !upload.KeepCheckout {
		db.Holder = ""
	}
	return nil
}

func (c *client) UndoCheckout(ctx context.Context, ref transport.ArtifactRef) error {
	if err := c.begin("undo checkout"); err != nil {
		return err
	}
	defer c.end()

	db, err := c.database(ref)
	if err != nil {
		return err
	}

	if db.Holder != c.user {
		return errors.ConflictError{Reason: errors.NotCheckedOut, Path: manifest.PathOf(db)}
	}
	db.Holder = ""
	return nil
}

// OpenArtifact declines to send databases that the caller has checked out,
// so that a read-only open never overwrites the caller's own edits.
func (c *client) OpenArtifact(ctx context.Context, ref transport.ArtifactRef, version int) (transport.Artifact, error) {
	if err := c.begin("open artifact"); err != nil {
		return transport.Artifact{}, err
	}
	defer c.end()

	db, err := c.database(ref)
	if err != nil {
		return transport.Artifact{}, err
	}

	if db.Holder == c.user {
		return transport.Artifact{}, errors.ConflictError{
			Reason: errors.AlreadyCheckedOut,
			Path:   manifest.PathOf(db),
		}
	}
	return c.artifact(db, version)
}

func (c *client) artifact(db *manifest.RevisionDatabase, version int) (transport.Artifact, error) {
	h := c.server.histories[db]
	if version < 0 || version >= len(h.contents) {
		return transport.Artifact{}, badRequest("download", fmt.Sprintf("no version %d", version))
	}

	return transport.Artifact{
		Contents: copyBytes(h.contents[version]),
		Changes:  copyBytes(h.changes[version]),
	}, nil
}

func (c *client) folder(name string, path []string) (*manifest.Folder, error) {
	p, err := c.server.project(name)
	if err != nil {
		return nil, err
	}
	return p.tree.ResolveFolder(path)
}

func (c *client) binary(name string, path []string) (*manifest.Binary, error) {
	p, err := c.server.project(name)
	if err != nil {
		return nil, err
	}

	node, err := p.tree.Resolve(path)
	if err != nil {
		return nil, err
	}

	binary, ok := node.(*manifest.Binary)
	if !ok {
		return nil, errors.NewNotFound(path)
	}
	return binary, nil
}

func (c *client) database(ref transport.ArtifactRef) (*manifest.RevisionDatabase, error) {
	binary, err := c.binary(ref.Project, ref.Binary)
	if err != nil {
		return nil, err
	}

	ext := strings.TrimPrefix(ref.FileName, binary.Name()+".")
	kind, ok := manifest.ParseToolKind(ext)
	if !ok {
		return nil, errors.NewNotFound(join(ref.Binary, ext))
	}

	db, ok := binary.Databases[kind]
	if !ok {
		return nil, errors.NewNotFound(join(ref.Binary, ext))
	}
	return db, nil
}

// locked returns whether any database at or below `node` is checked out.
func locked(node manifest.Node) bool {
	switch n := node.(type) {
	case *manifest.Folder:
		for _, child := range n.Children {
			if locked(child) {
				return true
			}
		}
	case *manifest.Binary:
		for _, db := range n.Databases {
			if db.CheckedOut() {
				return true
			}
		}
	case *manifest.RevisionDatabase:
		return n.CheckedOut()
	}
	return false
}

func badRequest(op, msg string) error {
	return errors.ServerError{Op: op, Status: http.StatusBadRequest, Body: msg}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func copyBytes(b []byte) []byte {
	return append([]byte{}, b...)
}

func join(parent []string, name string) []string {
	return append(append([]string{}, parent...), name)
}
