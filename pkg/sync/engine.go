package sync

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/sidkik/revsync/pkg/cache"
	"github.com/sidkik/revsync/pkg/errors"
	"github.com/sidkik/revsync/pkg/manifest"
	"github.com/sidkik/revsync/pkg/session"
	"github.com/sidkik/revsync/pkg/transport"
	"github.com/sidkik/revsync/pkg/validate"
)

// Engine owns the current manifest of every project that's been refreshed.
type Engine struct {
	client transport.Client
	store  *cache.Store

	// refreshes coalesces concurrent refreshes of the same project.
	refreshes singleflight.Group

	lock      sync.Mutex
	manifests map[string]*manifest.Manifest
}

// New creates an Engine that fetches manifests with `client` and mirrors
// them in `store`.
func New(client transport.Client, store *cache.Store) *Engine {
	return &Engine{
		client:    client,
		store:     store,
		manifests: map[string]*manifest.Manifest{},
	}
}

// Refresh fetches the manifest of the session's project, replaces the
// current manifest with it, and removes cached entries that are no longer in
// the manifest.
// If the fetch fails, the previous manifest is kept and nothing on disk is
// changed.
//
// The fetch isn't tied to any one caller's context, so a caller that gives up
// doesn't fail the others waiting on the same refresh.
func (e *Engine) Refresh(ctx context.Context, sess session.Session) (*manifest.Manifest, error) {
	if err := validate.Check(validate.KindProject, sess.Project); err != nil {
		return nil, err
	}

	resultChan := e.refreshes.DoChan(sess.Project, func() (interface{}, error) {
		refreshCtx, cancel := context.WithTimeout(context.Background(), transport.RequestTimeout)
		defer cancel()
		return e.refresh(refreshCtx, sess.Project)
	})

	select {
	case <-ctx.Done():
		return nil, errors.WithContext(ctx.Err(), "refresh")
	case res := <-resultChan:
		if res.Shared {
			log.WithField("project", sess.Project).Debug("Joined in-flight refresh")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*manifest.Manifest), nil
	}
}

func (e *Engine) refresh(ctx context.Context, project string) (*manifest.Manifest, error) {
	data, err := e.client.OpenProject(ctx, project)
	if err != nil {
		return nil, errors.WithContext(err, "open project")
	}

	m, err := manifest.Parse(project, data)
	if err != nil {
		return nil, errors.WithContext(err, "parse manifest")
	}

	m.Walk(func(node manifest.Node) {
		if folder, ok := node.(*manifest.Folder); ok {
			folder.Expanded = true
		}
	})

	removed, err := e.store.Reconcile(m)
	if err != nil {
		return nil, errors.WithContext(err, "reconcile cache")
	}

	e.lock.Lock()
	e.manifests[project] = m
	e.lock.Unlock()

	log.WithFields(log.Fields{
		"project":   project,
		"databases": len(m.Databases()),
		"removed":   len(removed),
	}).Debug("Refreshed project")
	return m, nil
}

// Current returns the manifest from the last successful refresh of
// `project`.
func (e *Engine) Current(project string) (*manifest.Manifest, bool) {
	e.lock.Lock()
	defer e.lock.Unlock()

	m, ok := e.manifests[project]
	return m, ok
}

// Open prepares the local directory of the session's project and refreshes
// it.
func (e *Engine) Open(ctx context.Context, sess session.Session) (*manifest.Manifest, error) {
	if err := validate.Check(validate.KindProject, sess.Project); err != nil {
		return nil, err
	}

	if err := e.store.EnsureProject(sess.Project); err != nil {
		return nil, err
	}
	return e.Refresh(ctx, sess)
}

// Create creates the session's project on the server with `members`, and
// opens it. The session's user is always a member.
func (e *Engine) Create(ctx context.Context, sess session.Session, members []string) (*manifest.Manifest, error) {
	if err := validate.Check(validate.KindProject, sess.Project); err != nil {
		return nil, err
	}

	users := []string{sess.User}
	for _, member := range members {
		if member != sess.User {
			users = append(users, member)
		}
	}

	if _, err := e.client.CreateProject(ctx, sess.Project, users); err != nil {
		return nil, errors.WithContext(err, "create project")
	}

	log.WithFields(log.Fields{
		"project": sess.Project,
		"members": users,
	}).Info("Created project")
	return e.Open(ctx, sess)
}

// Delete deletes the session's project from the server, and then removes its
// local directory.
func (e *Engine) Delete(ctx context.Context, sess session.Session) error {
	if err := validate.Check(validate.KindProject, sess.Project); err != nil {
		return err
	}

	if err := e.client.DeleteProject(ctx, sess.Project); err != nil {
		return errors.WithContext(err, "delete project")
	}

	e.lock.Lock()
	delete(e.manifests, sess.Project)
	e.lock.Unlock()

	return e.store.RemoveProject(sess.Project)
}

// Projects lists the projects that the user can open.
func (e *Engine) Projects(ctx context.Context) ([]string, error) {
	projects, err := e.client.ListProjects(ctx)
	if err != nil {
		return nil, errors.WithContext(err, "list projects")
	}
	return projects, nil
}

// PruneProjects removes the local directories of projects that aren't in
// `remote`, the result of Projects. It returns the removed project names.
func (e *Engine) PruneProjects(remote []string) ([]string, error) {
	pruned, err := e.store.PruneProjects(remote)
	if err != nil {
		return pruned, errors.WithContext(err, "prune projects")
	}

	e.lock.Lock()
	for _, project := range pruned {
		delete(e.manifests, project)
	}
	e.lock.Unlock()
	return pruned, nil
}

// Members lists the users that have access to the session's project.
func (e *Engine) Members(ctx context.Context, sess session.Session) ([]string, error) {
	members, err := e.client.ProjectUsers(ctx, sess.Project)
	if err != nil {
		return nil, errors.WithContext(err, "list members")
	}
	return members, nil
}

// AddMembers gives `users` access to the session's project.
func (e *Engine) AddMembers(ctx context.Context, sess session.Session, users []string) error {
	return errors.WithContext(e.client.AddProjectUsers(ctx, sess.Project, users), "add members")
}

// RemoveMembers revokes the access of `users` to the session's project.
func (e *Engine) RemoveMembers(ctx context.Context, sess session.Session, users []string) error {
	return errors.WithContext(e.client.RemoveProjectUsers(ctx, sess.Project, users), "remove members")
}
