package tree

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/revsync/cmd/util"
	"github.com/sidkik/revsync/pkg/config"
	"github.com/sidkik/revsync/pkg/errors"
	"github.com/sidkik/revsync/pkg/manifest"
	"github.com/sidkik/revsync/pkg/transport/memory"
)

func newProject(t *testing.T) (*memory.Server, *util.Deps) {
	server := memory.NewServer("alice")
	cfg := config.User{
		Server:   "https://revsync:5000",
		Username: "alice",
		CacheDir: t.TempDir(),
	}
	deps := util.Wire(cfg, server.Client("alice"), "demo")
	_, err := deps.Engine.Create(context.Background(), deps.Session, nil)
	require.NoError(t, err)
	return server, deps
}

func resolve(t *testing.T, server *memory.Server, path ...string) (manifest.Node, error) {
	m, err := server.Manifest("demo")
	require.NoError(t, err)
	return m.Resolve(append([]string{"demo"}, path...))
}

func writeFile(t *testing.T, path, contents string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
}

func TestMkdir(t *testing.T) {
	ctx := context.Background()
	server, deps := newProject(t)

	require.NoError(t, mkdir(ctx, deps, "fw"))
	require.NoError(t, mkdir(ctx, deps, "/fw/boot/"))

	node, err := resolve(t, server, "fw", "boot")
	require.NoError(t, err)
	assert.IsType(t, &manifest.Folder{}, node)

	_, ok := mkdir(ctx, deps, "/").(errors.FriendlyError)
	assert.True(t, ok)
}

func TestUpload(t *testing.T) {
	ctx := context.Background()
	server, deps := newProject(t)
	out := bytes.NewBuffer(nil)
	stdout = out

	local := t.TempDir()
	writeFile(t, filepath.Join(local, "app.bin"), "ELF")
	writeFile(t, filepath.Join(local, "firmware", "boot.img"), "boot")
	writeFile(t, filepath.Join(local, "firmware", "radio", "modem.bin"), "modem")

	require.NoError(t, upload(ctx, deps, filepath.Join(local, "app.bin"), ""))
	require.NoError(t, upload(ctx, deps, filepath.Join(local, "firmware"), ""))

	for _, path := range [][]string{
		{"app.bin"},
		{"firmware", "boot.img"},
		{"firmware", "radio", "modem.bin"},
	} {
		node, err := resolve(t, server, path...)
		assert.NoError(t, err, path)
		assert.IsType(t, &manifest.Binary{}, node, path)
	}
	assert.Contains(t, out.String(), "Uploaded "+filepath.Join(local, "app.bin")+" to demo\n")

	_, ok := errors.RootCause(upload(ctx, deps, filepath.Join(local, "missing"), "")).(errors.FriendlyError)
	assert.True(t, ok)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	server, deps := newProject(t)
	stdout = bytes.NewBuffer(nil)

	local := t.TempDir()
	writeFile(t, filepath.Join(local, "fw", "boot.img"), "boot")
	writeFile(t, filepath.Join(local, "app.bin"), "ELF")
	require.NoError(t, upload(ctx, deps, filepath.Join(local, "fw"), ""))
	require.NoError(t, upload(ctx, deps, filepath.Join(local, "app.bin"), ""))

	// Folders and binaries are both removed by path.
	require.NoError(t, remove(ctx, deps, "fw"))
	_, err := resolve(t, server, "fw")
	assert.True(t, errors.IsNotFound(err))

	require.NoError(t, remove(ctx, deps, "app.bin"))
	_, err = resolve(t, server, "app.bin")
	assert.True(t, errors.IsNotFound(err))

	assert.True(t, errors.IsNotFound(remove(ctx, deps, "missing")))
}

func TestRenameAndMove(t *testing.T) {
	ctx := context.Background()
	server, deps := newProject(t)

	require.NoError(t, mkdir(ctx, deps, "fw"))
	require.NoError(t, mkdir(ctx, deps, "archive"))
	require.NoError(t, deps.Mutator.Rename(ctx, deps.Session, deps.ParsePath("fw"), "firmware"))
	require.NoError(t, deps.Mutator.Move(ctx, deps.Session,
		deps.ParsePath("firmware"), deps.ParsePath("archive")))

	_, err := resolve(t, server, "archive", "firmware")
	assert.NoError(t, err)
}
