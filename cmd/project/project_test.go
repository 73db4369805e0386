package project

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/revsync/cmd/util"
	"github.com/sidkik/revsync/pkg/config"
	"github.com/sidkik/revsync/pkg/errors"
	"github.com/sidkik/revsync/pkg/transport/memory"
)

func newDeps(t *testing.T, server *memory.Server, user, project string) *util.Deps {
	cfg := config.User{
		Server:   "https://revsync:5000",
		Username: user,
		CacheDir: t.TempDir(),
		Project:  "demo",
	}
	return util.Wire(cfg, server.Client(user), project)
}

func mockWriteUser() *[]config.User {
	var written []config.User
	writeUser = func(cfg config.User) error {
		written = append(written, cfg)
		return nil
	}
	return &written
}

func TestCreateAndList(t *testing.T) {
	ctx := context.Background()
	server := memory.NewServer("alice", "bob")
	written := mockWriteUser()
	out := bytes.NewBuffer(nil)
	stdout = out

	alice := newDeps(t, server, "alice", "demo")
	require.NoError(t, create(ctx, alice, []string{"bob"}))
	require.Len(t, *written, 1)
	assert.Equal(t, "demo", (*written)[0].Project)
	assert.Equal(t, fmt.Sprintf("Opened project demo in %s\n", alice.Store.Path("demo")), out.String())

	_, err := os.Stat(alice.Store.Path("demo"))
	assert.NoError(t, err)

	bob := newDeps(t, server, "bob", "")
	require.NoError(t, create(ctx, newDeps(t, server, "alice", "private"), nil))

	out.Reset()
	require.NoError(t, list(ctx, bob, false))
	assert.Equal(t, "* demo\n", out.String())

	out.Reset()
	require.NoError(t, list(ctx, alice, false))
	assert.Equal(t, "* demo\n  private\n", out.String())
}

func TestListDeletedProjects(t *testing.T) {
	ctx := context.Background()
	server := memory.NewServer("alice", "bob")
	mockWriteUser()
	out := bytes.NewBuffer(nil)
	stdout = out

	deps := newDeps(t, server, "alice", "demo")
	require.NoError(t, create(ctx, deps, nil))

	// Another user deletes the project while it's still stored locally.
	scratch := deps.Session.WithProject("scratch")
	_, err := deps.Engine.Create(ctx, scratch, []string{"bob"})
	require.NoError(t, err)
	require.NoError(t, server.Client("bob").DeleteProject(ctx, "scratch"))

	out.Reset()
	require.NoError(t, list(ctx, deps, false))
	assert.Equal(t, "* demo\n\n"+
		"These projects were deleted on the server, but are still stored locally:\n"+
		"  scratch\n"+
		"Run `revsync project list --prune` to remove them.\n", out.String())
	_, err = os.Stat(deps.Store.Path("scratch"))
	assert.NoError(t, err)

	out.Reset()
	require.NoError(t, list(ctx, deps, true))
	assert.Equal(t, "* demo\nRemoved the local copy of deleted project scratch\n", out.String())
	_, err = os.Stat(deps.Store.Path("scratch"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(deps.Store.Path("demo"))
	assert.NoError(t, err)
}

func TestOpenSetsDefault(t *testing.T) {
	ctx := context.Background()
	server := memory.NewServer("alice")
	written := mockWriteUser()
	stdout = bytes.NewBuffer(nil)

	require.NoError(t, create(ctx, newDeps(t, server, "alice", "firmware"), nil))

	deps := newDeps(t, server, "alice", "firmware")
	require.NoError(t, open(ctx, deps))
	require.Len(t, *written, 2)
	assert.Equal(t, "firmware", (*written)[1].Project)

	_, ok := deps.Engine.Current("firmware")
	assert.True(t, ok)
}

func TestOpenMissingProject(t *testing.T) {
	ctx := context.Background()
	server := memory.NewServer("alice")
	written := mockWriteUser()
	stdout = bytes.NewBuffer(nil)

	assert.Error(t, open(ctx, newDeps(t, server, "alice", "missing")))
	assert.Empty(t, *written)
}

func TestRemove(t *testing.T) {
	tests := []struct {
		name       string
		project    string
		expWritten int
	}{
		{
			name:       "DefaultProject",
			project:    "demo",
			expWritten: 1,
		},
		{
			name:       "OtherProject",
			project:    "scratch",
			expWritten: 0,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			ctx := context.Background()
			server := memory.NewServer("alice")
			stdout = bytes.NewBuffer(nil)

			deps := newDeps(t, server, "alice", test.project)
			_, err := deps.Engine.Create(ctx, deps.Session, nil)
			require.NoError(t, err)

			written := mockWriteUser()
			require.NoError(t, remove(ctx, deps))
			assert.Len(t, *written, test.expWritten)
			for _, cfg := range *written {
				assert.Empty(t, cfg.Project)
			}

			_, err = os.Stat(deps.Store.Path(test.project))
			assert.True(t, os.IsNotExist(err))

			projects, err := deps.Engine.Projects(ctx)
			require.NoError(t, err)
			assert.Empty(t, projects)
		})
	}
}

func TestMembers(t *testing.T) {
	ctx := context.Background()
	server := memory.NewServer("alice", "bob", "carol")
	out := bytes.NewBuffer(nil)
	stdout = out

	deps := newDeps(t, server, "alice", "demo")
	_, err := deps.Engine.Create(ctx, deps.Session, nil)
	require.NoError(t, err)

	require.NoError(t, addMembers(ctx, deps, []string{"bob", "carol"}))
	require.NoError(t, removeMembers(ctx, deps, []string{"carol"}))
	require.NoError(t, listMembers(ctx, deps))
	assert.Equal(t, "alice\nbob\n", out.String())

	out.Reset()
	require.NoError(t, listUsers(ctx, deps))
	assert.Equal(t, "alice\nbob\ncarol\n", out.String())
}

func TestMembersRequireProject(t *testing.T) {
	deps := newDeps(t, memory.NewServer("alice"), "alice", "")
	assert.Error(t, listMembers(context.Background(), deps))
	assert.Error(t, addMembers(context.Background(), deps, []string{"bob"}))
}

func TestProjectNameArg(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		expErr error
	}{
		{
			name: "Valid",
			args: []string{"demo"},
		},
		{
			name:   "Empty",
			args:   []string{""},
			expErr: errors.ValidationError{Kind: "project", Name: ""},
		},
		{
			name:   "ParentDirectory",
			args:   []string{".."},
			expErr: errors.ValidationError{Kind: "project", Name: ".."},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expErr, projectNameArg(nil, test.args))
		})
	}

	assert.Error(t, projectNameArg(nil, nil))
}
