package util

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/revsync/pkg/config"
	"github.com/sidkik/revsync/pkg/errors"
	"github.com/sidkik/revsync/pkg/session"
	"github.com/sidkik/revsync/pkg/transport"
	"github.com/sidkik/revsync/pkg/transport/memory"
)

func TestParsePath(t *testing.T) {
	deps := &Deps{Session: session.New("alice", "demo")}

	tests := []struct {
		name string
		path string
		exp  []string
	}{
		{
			name: "Root",
			path: "",
			exp:  []string{"demo"},
		},
		{
			name: "Slash",
			path: "/",
			exp:  []string{"demo"},
		},
		{
			name: "Database",
			path: "fw/boot.img/i64",
			exp:  []string{"demo", "fw", "boot.img", "i64"},
		},
		{
			name: "ExtraSlashes",
			path: "/fw//boot.img/",
			exp:  []string{"demo", "fw", "boot.img"},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.exp, deps.ParsePath(test.path))
		})
	}
}

func TestRequireProject(t *testing.T) {
	deps := &Deps{Session: session.New("alice", "")}
	_, ok := deps.RequireProject().(errors.FriendlyError)
	assert.True(t, ok)

	deps.Session = deps.Session.WithProject("demo")
	assert.NoError(t, deps.RequireProject())
}

func TestNewDeps(t *testing.T) {
	server := memory.NewServer("alice")
	defer func() {
		parseUserConfig = config.ParseUser
		getPassword = config.GetPassword
	}()

	parseUserConfig = func() (config.User, error) {
		return config.User{
			Server:   "https://revsync:5000",
			Username: "alice",
			CacheDir: t.TempDir(),
			Project:  "demo",
		}, nil
	}
	getPassword = func(username string) (string, error) {
		assert.Equal(t, "alice", username)
		return "secret", nil
	}

	var gotCfg transport.Config
	origNewClient := newClient
	defer func() { newClient = origNewClient }()
	newClient = func(cfg transport.Config) (transport.Client, error) {
		gotCfg = cfg
		return server.Client("alice"), nil
	}

	deps, err := NewDeps("")
	require.NoError(t, err)
	assert.Equal(t, "secret", gotCfg.Password)
	assert.Equal(t, session.New("alice", "demo"), deps.Session)

	deps, err = NewDeps("other")
	require.NoError(t, err)
	assert.Equal(t, "other", deps.Session.Project)

	// The wired engine talks to the same server.
	ctx := context.Background()
	_, err = deps.Engine.Create(ctx, deps.Session, nil)
	require.NoError(t, err)
	projects, err := deps.Engine.Projects(ctx)
	require.NoError(t, err)
	assert.Contains(t, projects, "other")
}

func TestNewDepsPasswordError(t *testing.T) {
	defer func() {
		parseUserConfig = config.ParseUser
		getPassword = config.GetPassword
	}()

	parseUserConfig = func() (config.User, error) {
		return config.User{Server: "https://revsync:5000", Username: "alice"}, nil
	}
	getPassword = func(string) (string, error) {
		return "", errors.NewFriendlyError("no password")
	}

	_, err := NewDeps("demo")
	assert.Equal(t, errors.NewFriendlyError("no password"), errors.RootCause(err))
}
