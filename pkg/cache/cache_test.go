package cache

import (
	"os"
	"sort"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/revsync/pkg/errors"
	"github.com/sidkik/revsync/pkg/manifest"
)

func TestReconcile(t *testing.T) {
	m := manifest.New("demo")
	m.Root.AddFolder("keep").AddFolder("nested")
	m.Root.AddBinary("app.bin").AddDatabase(manifest.BinaryNinja, "v0")

	tests := []struct {
		name       string
		files      []string
		expRemoved []string
		expKept    []string
	}{
		{
			name:       "StaleFolder",
			files:      []string{"/cache/demo/keep/.keep", "/cache/demo/gone/.keep"},
			expRemoved: []string{"/cache/demo/gone", "/cache/demo/keep/.keep"},
			expKept:    []string{"/cache/demo/keep"},
		},
		{
			name: "NestedStaleEntries",
			files: []string{
				"/cache/demo/keep/nested/old.bin/old.bin.i64",
				"/cache/demo/keep/renamed/file",
			},
			expRemoved: []string{
				"/cache/demo/keep/nested/old.bin",
				"/cache/demo/keep/renamed",
			},
			expKept: []string{"/cache/demo/keep/nested"},
		},
		{
			name: "BinaryContentsUntouched",
			files: []string{
				"/cache/demo/app.bin/app.bin.bndb",
				"/cache/demo/app.bin/changes.json",
				"/cache/demo/app.bin/app.bin.i64",
			},
			expKept: []string{
				"/cache/demo/app.bin/app.bin.bndb",
				"/cache/demo/app.bin/changes.json",
				"/cache/demo/app.bin/app.bin.i64",
			},
		},
		{
			name:       "StrayFile",
			files:      []string{"/cache/demo/notes.txt"},
			expRemoved: []string{"/cache/demo/notes.txt"},
		},
		{
			name:    "OtherProjectUntouched",
			files:   []string{"/cache/other/gone/file"},
			expKept: []string{"/cache/other/gone/file"},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			for _, path := range test.files {
				require.NoError(t, afero.WriteFile(fs, path, []byte("contents"), 0644))
			}

			store := NewWithFs(fs, "/cache")
			removed, err := store.Reconcile(m)
			assert.NoError(t, err)

			sort.Strings(removed)
			sort.Strings(test.expRemoved)
			assert.Equal(t, test.expRemoved, removed)

			for _, path := range test.expRemoved {
				_, err := fs.Stat(path)
				assert.True(t, os.IsNotExist(err), path)
			}
			for _, path := range test.expKept {
				_, err := fs.Stat(path)
				assert.NoError(t, err, path)
			}
		})
	}
}

func TestReconcileIdempotent(t *testing.T) {
	m := manifest.New("demo")
	m.Root.AddFolder("keep")

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/cache/demo/keep", 0755))
	require.NoError(t, fs.MkdirAll("/cache/demo/gone", 0755))

	store := NewWithFs(fs, "/cache")
	removed, err := store.Reconcile(m)
	assert.NoError(t, err)
	assert.Equal(t, []string{"/cache/demo/gone"}, removed)

	removed, err = store.Reconcile(m)
	assert.NoError(t, err)
	assert.Empty(t, removed)

	_, err = fs.Stat("/cache/demo/keep")
	assert.NoError(t, err)
}

func TestReconcileMissingProjectDir(t *testing.T) {
	store := NewWithFs(afero.NewMemMapFs(), "/cache")
	removed, err := store.Reconcile(manifest.New("demo"))
	assert.NoError(t, err)
	assert.Empty(t, removed)
}

func TestProjectNameChecked(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewWithFs(fs, "/cache")
	require.NoError(t, afero.WriteFile(fs, "/cache/demo/app.bin/app.bin.bndb", []byte("db"), 0644))

	for _, project := range []string{"", "..", "demo/app.bin"} {
		exp := errors.ValidationError{Kind: "project", Name: project}
		assert.Equal(t, exp, store.RemoveProject(project))
		assert.Equal(t, exp, store.EnsureProject(project))

		_, err := store.Reconcile(manifest.New(project))
		assert.Equal(t, exp, err)
	}

	_, err := fs.Stat("/cache/demo/app.bin/app.bin.bndb")
	assert.NoError(t, err)
}

func TestStaleProjects(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewWithFs(fs, "/cache")

	stale, err := store.StaleProjects([]string{"demo"})
	assert.NoError(t, err)
	assert.Empty(t, stale)

	require.NoError(t, fs.MkdirAll("/cache/demo", 0755))
	require.NoError(t, fs.MkdirAll("/cache/old", 0755))
	require.NoError(t, fs.MkdirAll("/cache/.trash", 0755))
	require.NoError(t, afero.WriteFile(fs, "/cache/notes", []byte("x"), 0644))

	stale, err = store.StaleProjects([]string{"demo", "firmware"})
	assert.NoError(t, err)
	assert.Equal(t, []string{"old"}, stale)

	pruned, err := store.PruneProjects([]string{"demo", "firmware"})
	assert.NoError(t, err)
	assert.Equal(t, []string{"old"}, pruned)

	for path, exists := range map[string]bool{
		"/cache/demo":   true,
		"/cache/old":    false,
		"/cache/.trash": true,
		"/cache/notes":  true,
	} {
		ok, err := afero.Exists(fs, path)
		assert.NoError(t, err)
		assert.Equal(t, exists, ok, path)
	}
}

func TestArtifactStorage(t *testing.T) {
	m := manifest.New("demo")
	binary := m.Root.AddFolder("fw").AddBinary("boot.img")
	db := binary.AddDatabase(manifest.IDA64, "v0")

	fs := afero.NewMemMapFs()
	store := NewWithFs(fs, "/cache")

	assert.Equal(t, "/cache/demo/fw/boot.img/boot.img.i64", store.ArtifactPath(db))
	assert.Equal(t, "/cache/demo/fw/boot.img/changes.json", store.ChangesPath(binary))
	assert.Equal(t, "/cache/demo/fw/boot.img/boot.img", store.BinaryPath(binary))

	changes, err := store.ReadChanges(binary)
	assert.NoError(t, err)
	assert.Nil(t, changes)

	_, err = store.ReadArtifact(db)
	assert.Error(t, err)

	require.NoError(t, store.WriteArtifact(db, []byte("idb")))
	require.NoError(t, store.WriteChanges(binary, []byte(`{"a": 1}`)))
	require.NoError(t, store.WriteBinary(binary, []byte("ELF")))

	contents, err := store.ReadArtifact(db)
	assert.NoError(t, err)
	assert.Equal(t, "idb", string(contents))

	changes, err = store.ReadChanges(binary)
	assert.NoError(t, err)
	assert.Equal(t, `{"a": 1}`, string(changes))

	require.NoError(t, store.RemoveArtifact(db))
	_, err = fs.Stat(store.ArtifactPath(db))
	assert.True(t, os.IsNotExist(err))

	// The sidecar and the binary are shared, so they survive.
	_, err = fs.Stat(store.ChangesPath(binary))
	assert.NoError(t, err)
	_, err = fs.Stat(store.BinaryPath(binary))
	assert.NoError(t, err)
}

func TestPackUnpackGhidra(t *testing.T) {
	m := manifest.New("demo")
	db := m.Root.AddBinary("app.bin").AddDatabase(manifest.Ghidra, "v0")

	fs := afero.NewMemMapFs()
	store := NewWithFs(fs, "/cache")
	require.NoError(t, afero.WriteFile(fs, "/cache/demo/app.bin/app.bin.gpr", []byte("gpr"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/cache/demo/app.bin/app.bin.rep/idx", []byte("idx"), 0644))
	require.NoError(t, store.PackArtifact(db))

	// A file that was deleted after the artifact was packed must not survive
	// the unpack.
	require.NoError(t, afero.WriteFile(fs, "/cache/demo/app.bin/app.bin.rep/stale", []byte("x"), 0644))
	require.NoError(t, store.UnpackArtifact(db))

	contents, err := afero.ReadFile(fs, "/cache/demo/app.bin/app.bin.rep/idx")
	assert.NoError(t, err)
	assert.Equal(t, "idx", string(contents))

	_, err = fs.Stat("/cache/demo/app.bin/app.bin.rep/stale")
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, store.RemoveArtifact(db))
	for _, path := range []string{
		"/cache/demo/app.bin/app.bin.ghdb",
		"/cache/demo/app.bin/app.bin.gpr",
		"/cache/demo/app.bin/app.bin.rep",
	} {
		_, err = fs.Stat(path)
		assert.True(t, os.IsNotExist(err), path)
	}
}

func TestPackNonArchivedIsNoop(t *testing.T) {
	m := manifest.New("demo")
	db := m.Root.AddBinary("app.bin").AddDatabase(manifest.JEB, "v0")

	fs := afero.NewMemMapFs()
	store := NewWithFs(fs, "/cache")
	assert.NoError(t, store.PackArtifact(db))
	assert.NoError(t, store.UnpackArtifact(db))

	_, err := fs.Stat(store.ArtifactPath(db))
	assert.True(t, os.IsNotExist(err))
}

func TestSourceDirName(t *testing.T) {
	assert.Equal(t, "app", SourceDirName("app.apk"))
	assert.Equal(t, "bundle", SourceDirName("bundle.jar"))
	assert.Equal(t, "noext", SourceDirName("noext"))
	assert.Equal(t, "a.b", SourceDirName("a.b"))
}

func TestRemoveSubtree(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewWithFs(fs, "/cache")
	require.NoError(t, afero.WriteFile(fs, "/cache/demo/fw/boot.img/boot.img.i64", []byte("x"), 0644))

	assert.Error(t, store.RemoveSubtree([]string{"demo"}))
	assert.NoError(t, store.RemoveSubtree([]string{"demo", "fw"}))

	_, err := fs.Stat("/cache/demo/fw")
	assert.True(t, os.IsNotExist(err))
	_, err = fs.Stat("/cache/demo")
	assert.NoError(t, err)
}

func TestPackLocal(t *testing.T) {
	m := manifest.New("demo")
	binary := m.Root.AddBinary("app.apk")

	fs := afero.NewMemMapFs()
	store := NewWithFs(fs, "/cache")

	packed, err := store.PackLocal(binary, manifest.AndroidStudio)
	assert.NoError(t, err)
	assert.False(t, packed)

	packed, err = store.PackLocal(binary, manifest.IDA64)
	assert.NoError(t, err)
	assert.False(t, packed)

	require.NoError(t, afero.WriteFile(fs, "/cache/demo/app.apk/app/src/Main.java", []byte("class"), 0644))
	packed, err = store.PackLocal(binary, manifest.AndroidStudio)
	assert.NoError(t, err)
	assert.True(t, packed)

	_, err = fs.Stat("/cache/demo/app.apk/app.apk.asp")
	assert.NoError(t, err)
}

func TestWorkingPaths(t *testing.T) {
	m := manifest.New("demo")
	binary := m.Root.AddBinary("app.bin")
	store := NewWithFs(afero.NewMemMapFs(), "/cache")

	assert.Equal(t, []string{"/cache/demo/app.bin/app.bin.i64"},
		store.WorkingPaths(binary.AddDatabase(manifest.IDA64, "v0")))
	assert.Equal(t, []string{"/cache/demo/app.bin/app.bin.gpr", "/cache/demo/app.bin/app.bin.rep"},
		store.WorkingPaths(binary.AddDatabase(manifest.Ghidra, "v0")))
}
