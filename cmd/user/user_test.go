package user

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/revsync/cmd/util"
	"github.com/sidkik/revsync/pkg/config"
	"github.com/sidkik/revsync/pkg/errors"
	"github.com/sidkik/revsync/pkg/transport"
	"github.com/sidkik/revsync/pkg/transport/memory"
)

func newDeps(t *testing.T, server *memory.Server, user string) *util.Deps {
	cfg := config.User{
		Server:   "https://revsync:5000",
		Username: user,
		CacheDir: t.TempDir(),
	}
	return util.Wire(cfg, server.Client(user), "")
}

func mockPassword(password string, err error) *[]string {
	var prompted []string
	promptNewPassword = func(username string) (string, error) {
		prompted = append(prompted, username)
		return password, err
	}
	return &prompted
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	server := memory.NewServer("alice")
	out := bytes.NewBuffer(nil)
	stdout = out

	prompted := mockPassword("hunter2", nil)
	require.NoError(t, changePassword(ctx, newDeps(t, server, "alice")))
	assert.Equal(t, []string{"alice"}, *prompted)

	password, ok := server.Password("alice")
	assert.True(t, ok)
	assert.Equal(t, "hunter2", password)
	assert.Contains(t, out.String(), "Changed the password of alice.")

	mismatch := errors.NewFriendlyError("The passwords don't match.")
	mockPassword("", mismatch)
	assert.Equal(t, mismatch, changePassword(ctx, newDeps(t, server, "alice")))
}

func TestAddUser(t *testing.T) {
	ctx := context.Background()
	server := memory.NewServer(transport.AdminUser, "alice")
	out := bytes.NewBuffer(nil)
	stdout = out

	prompted := mockPassword("s3cret", nil)
	require.NoError(t, add(ctx, newDeps(t, server, transport.AdminUser), "carol"))
	assert.Equal(t, []string{"carol"}, *prompted)
	assert.Equal(t, "Added user carol\n", out.String())

	password, ok := server.Password("carol")
	assert.True(t, ok)
	assert.Equal(t, "s3cret", password)

	// Only the admin is prompted for a password.
	prompted = mockPassword("s3cret", nil)
	err := add(ctx, newDeps(t, server, "alice"), "dave")
	_, friendly := err.(errors.FriendlyError)
	assert.True(t, friendly)
	assert.Empty(t, *prompted)

	err = add(ctx, newDeps(t, server, transport.AdminUser), "carol")
	assert.Equal(t, errors.ConflictError{Reason: errors.AlreadyExists, Path: []string{"carol"}},
		errors.RootCause(err))
}

func TestDeleteUsers(t *testing.T) {
	ctx := context.Background()
	server := memory.NewServer(transport.AdminUser, "alice", "bob", "carol")
	out := bytes.NewBuffer(nil)
	stdout = out

	admin := newDeps(t, server, transport.AdminUser)
	require.NoError(t, remove(ctx, admin, []string{"bob", "carol"}))
	assert.Equal(t, "Deleted user bob\nDeleted user carol\n", out.String())

	users, err := admin.Client.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{transport.AdminUser, "alice"}, users)

	_, friendly := remove(ctx, admin, []string{transport.AdminUser}).(errors.FriendlyError)
	assert.True(t, friendly)

	_, friendly = remove(ctx, newDeps(t, server, "alice"), []string{"bob"}).(errors.FriendlyError)
	assert.True(t, friendly)
}
