package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/revsync/pkg/errors"
)

const demoJSON = `{
  "demo": {
    "__file__type__": false,
    "keep": {"__file__type__": false},
    "samples": {
      "__file__type__": false,
      "nested": {"__file__type__": false}
    },
    "app.bin": {
      "__file__type__": true,
      "__locked__": null,
      "__rev_dbs__": {
        "bndb": {"versions": ["v0"], "latest": "v0", "checked-out": null},
        "ghdb": {"versions": ["initial", "renamed funcs"], "latest": 1, "checked-out": "alice"}
      }
    }
  }
}`

func TestParse(t *testing.T) {
	m, err := Parse("demo", []byte(demoJSON))
	require.NoError(t, err)

	assert.Equal(t, "demo", m.Project)
	assert.Equal(t, []string{"app.bin", "keep", "samples"}, m.Root.Names())

	binary, ok := m.Root.Children["app.bin"].(*Binary)
	require.True(t, ok)
	assert.Equal(t, []ToolKind{BinaryNinja, Ghidra}, binary.Kinds())

	bndb := binary.Databases[BinaryNinja]
	assert.Equal(t, []Version{{Index: 0, Label: "v0"}}, bndb.Versions)
	assert.False(t, bndb.CheckedOut())
	assert.Equal(t, "app.bin.bndb", bndb.FileName())

	ghdb := binary.Databases[Ghidra]
	latest, ok := ghdb.Latest()
	assert.True(t, ok)
	assert.Equal(t, Version{Index: 1, Label: "renamed funcs"}, latest)
	assert.Equal(t, "alice", ghdb.Holder)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"MissingProject", `{"other": {"__file__type__": false}}`},
		{"NotJSON", `PROJECT_DOES_NOT_EXIST`},
		{"UnknownKind", `{"demo": {"a": {"__file__type__": true,
			"__rev_dbs__": {"exe": {"versions": ["v0"], "latest": "v0"}}}}}`},
		{"LatestNotLast", `{"demo": {"a": {"__file__type__": true,
			"__rev_dbs__": {"i64": {"versions": ["v0", "v1"], "latest": "v0"}}}}}`},
		{"LatestIndexNotLast", `{"demo": {"a": {"__file__type__": true,
			"__rev_dbs__": {"i64": {"versions": ["v0", "v1"], "latest": 0}}}}}`},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse("demo", []byte(test.json))
			assert.Error(t, err)
		})
	}
}

func TestResolve(t *testing.T) {
	m, err := Parse("demo", []byte(demoJSON))
	require.NoError(t, err)

	node, err := m.Resolve([]string{"demo"})
	assert.NoError(t, err)
	assert.Equal(t, m.Root, node)

	node, err = m.Resolve([]string{"demo", "samples", "nested"})
	assert.NoError(t, err)
	assert.Equal(t, "nested", node.Name())
	assert.Equal(t, []string{"demo", "samples", "nested"}, PathOf(node))

	db, err := m.ResolveDatabase([]string{"demo", "app.bin", "ghdb"})
	assert.NoError(t, err)
	assert.Equal(t, Ghidra, db.Kind)
	assert.Equal(t, []string{"demo", "app.bin", "ghdb"}, PathOf(db))

	notFound := [][]string{
		nil,
		{"other"},
		{"demo", "gone"},
		{"demo", "samples", "gone"},
		{"demo", "app.bin", "i64"},
		{"demo", "app.bin", "exe"},
		{"demo", "app.bin", "bndb", "v0"},
	}
	for _, path := range notFound {
		_, err := m.Resolve(path)
		assert.True(t, errors.IsNotFound(err), "%v", path)
	}

	_, err = m.ResolveFolder([]string{"demo", "app.bin"})
	assert.True(t, errors.IsNotFound(err))

	_, err = m.ResolveDatabase([]string{"demo", "app.bin"})
	assert.True(t, errors.IsNotFound(err))
}

func TestSelect(t *testing.T) {
	m := New("demo")
	db := m.Root.AddBinary("app.bin").AddDatabase(IDA64, "v0", "v1", "v2")

	v, err := db.Select("")
	assert.NoError(t, err)
	assert.Equal(t, Version{Index: 2, Label: "v2"}, v)

	v, err = db.Select("v0")
	assert.NoError(t, err)
	assert.Equal(t, Version{Index: 0, Label: "v0"}, v)

	_, err = db.Select("v9")
	assert.True(t, errors.IsNotFound(err))

	empty := m.Root.AddBinary("other.bin").AddDatabase(Hopper)
	_, err = empty.Select("")
	assert.True(t, errors.IsNotFound(err))
}

func TestMarshalRoundTrip(t *testing.T) {
	m := New("demo")
	firmware := m.Root.AddFolder("firmware")
	db := firmware.AddBinary("boot.img").AddDatabase(Rizin, "v0", "v1")
	db.Holder = "bob"
	m.Root.AddFolder("empty")

	data, err := Marshal(m)
	require.NoError(t, err)

	parsed, err := Parse("demo", data)
	require.NoError(t, err)

	var paths [][]string
	parsed.Walk(func(n Node) {
		paths = append(paths, PathOf(n))
	})
	assert.Equal(t, [][]string{
		{"demo"},
		{"demo", "empty"},
		{"demo", "firmware"},
		{"demo", "firmware", "boot.img"},
		{"demo", "firmware", "boot.img", "rzdb"},
	}, paths)

	parsedDB, err := parsed.ResolveDatabase([]string{"demo", "firmware", "boot.img", "rzdb"})
	require.NoError(t, err)
	assert.Equal(t, db.Versions, parsedDB.Versions)
	assert.Equal(t, "bob", parsedDB.Holder)
	assert.Len(t, parsed.Databases(), 1)
}

func TestToolKind(t *testing.T) {
	for _, kind := range Kinds {
		parsed, ok := ParseToolKind(string(kind))
		assert.True(t, ok)
		assert.Equal(t, kind, parsed)
	}

	_, ok := ParseToolKind("exe")
	assert.False(t, ok)

	assert.True(t, Ghidra.Archived())
	assert.True(t, AndroidStudio.Archived())
	assert.False(t, BinaryNinja.Archived())
	assert.True(t, Rizin.NeedsBinary())
	assert.True(t, Hopper.StripsExtension())
}

func TestDetachAttach(t *testing.T) {
	m := New("demo")
	src := m.Root.AddFolder("src")
	dst := m.Root.AddFolder("dst")
	db := src.AddBinary("app.bin").AddDatabase(JEB, "v0")

	binary := src.Detach("app.bin")
	assert.NotNil(t, binary)
	assert.Nil(t, src.Detach("app.bin"))
	assert.Nil(t, binary.Parent())

	assert.True(t, dst.Attach("renamed.bin", binary))
	assert.Equal(t, []string{"demo", "dst", "renamed.bin", "jdb2"}, PathOf(db))
	assert.Equal(t, "renamed.bin.jdb2", db.FileName())

	assert.False(t, dst.Attach("renamed.bin", m.Root.AddFolder("other")))
}
