package status

import (
	"bytes"
	"regexp"
	"strings"
	"testing"

	"github.com/buger/goterm"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/revsync/pkg/cache"
	"github.com/sidkik/revsync/pkg/manifest"
)

func demoManifest() *manifest.Manifest {
	m := manifest.New("demo")
	fw := m.Root.AddFolder("fw")
	boot := fw.AddBinary("boot.img")
	boot.AddDatabase(manifest.IDA64, "v0", "v1").Holder = "alice"
	boot.AddDatabase(manifest.BinaryNinja, "v0").Holder = "bob"
	m.Root.AddBinary("app.bin").AddDatabase(manifest.Ghidra)
	return m
}

func TestDatabaseStatus(t *testing.T) {
	tests := []struct {
		name   string
		holder string
		exp    statusString
	}{
		{
			name: "Available",
			exp:  statusString{color: goterm.GREEN, msg: "available"},
		},
		{
			name:   "Mine",
			holder: "alice",
			exp:    statusString{color: goterm.YELLOW, msg: "checked out by you"},
		},
		{
			name:   "Other",
			holder: "bob",
			exp:    statusString{color: goterm.RED, msg: "checked out by bob"},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			db := &manifest.RevisionDatabase{Kind: manifest.IDA64, Holder: test.holder}
			assert.Equal(t, test.exp, databaseStatus(db, "alice"))
		})
	}
}

var ansiEscape = regexp.MustCompile("\033\\[[0-9;]*m")

func TestRender(t *testing.T) {
	m := demoManifest()
	store := cache.NewWithFs(afero.NewMemMapFs(), "/cache")

	i64, err := m.ResolveDatabase([]string{"demo", "fw", "boot.img", "i64"})
	require.NoError(t, err)
	require.NoError(t, store.WriteArtifact(i64, []byte("ida")))

	out := bytes.NewBuffer(nil)
	render(out, m, "alice", store)
	assert.Contains(t, out.String(), goterm.Color("checked out by bob", goterm.RED))

	var rows [][]string
	plain := ansiEscape.ReplaceAllString(out.String(), "")
	for _, line := range strings.Split(strings.TrimRight(plain, "\n"), "\n") {
		rows = append(rows, strings.Fields(line))
	}

	assert.Equal(t, [][]string{
		{"demo/"},
		{"app.bin"},
		{"ghdb", "-", "available"},
		{"fw/"},
		{"boot.img"},
		{"bndb", "v0", "checked", "out", "by", "bob"},
		{"i64", "v1", "checked", "out", "by", "you", "local"},
	}, rows)
}

func TestSummarize(t *testing.T) {
	out := bytes.NewBuffer(nil)
	summarize(out, demoManifest(), "alice")
	assert.Equal(t, "Refreshed demo: 3 database(s), 2 checked out, 1 by you\n", out.String())
}
