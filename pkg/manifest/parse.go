package manifest

import (
	"bytes"
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"github.com/sidkik/revsync/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Keys with special meaning in the manifest JSON. Every other key of a folder
// object is the name of a child.
const (
	keyFileType   = "__file__type__"
	keyLocked     = "__locked__"
	keyRevDbs     = "__rev_dbs__"
	keyVersions   = "versions"
	keyLatest     = "latest"
	keyCheckedOut = "checked-out"
)

type rawDatabase struct {
	Versions   []jsoniter.RawMessage `json:"versions"`
	Latest     jsoniter.RawMessage   `json:"latest"`
	CheckedOut *string               `json:"checked-out"`
}

// Parse decodes the manifest of `project` from the JSON returned by the
// server. The JSON is an object keyed by the project name, whose value is
// the root folder.
func Parse(project string, data []byte) (*Manifest, error) {
	var top map[string]jsoniter.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, errors.WithContext(err, "decode manifest")
	}

	rootJSON, ok := top[project]
	if !ok {
		return nil, errors.New("manifest doesn't contain project %q", project)
	}

	root, err := parseFolder(project, rootJSON, nil)
	if err != nil {
		return nil, errors.WithContext(err, fmt.Sprintf("parse %q", project))
	}
	return &Manifest{Project: project, Root: root}, nil
}

func parseFolder(name string, data jsoniter.RawMessage, parent *Folder) (*Folder, error) {
	var fields map[string]jsoniter.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, errors.WithContext(err, "decode folder")
	}

	folder := &Folder{
		FolderName: name,
		Children:   map[string]Node{},
		parent:     parent,
	}
	for key, value := range fields {
		if isReserved(key) || !isObject(value) {
			continue
		}

		child, err := parseNode(key, value, folder)
		if err != nil {
			return nil, errors.WithContext(err, fmt.Sprintf("parse %q", key))
		}
		folder.Children[key] = child
	}
	return folder, nil
}

func parseNode(name string, data jsoniter.RawMessage, parent *Folder) (Node, error) {
	var marker struct {
		FileType *bool `json:"__file__type__"`
	}
	if err := json.Unmarshal(data, &marker); err != nil {
		return nil, errors.WithContext(err, "decode file type")
	}

	// Nodes without a marker are treated like folders.
	if marker.FileType == nil || !*marker.FileType {
		return parseFolder(name, data, parent)
	}
	return parseBinary(name, data, parent)
}

func parseBinary(name string, data jsoniter.RawMessage, parent *Folder) (*Binary, error) {
	var fields struct {
		RevDbs map[string]rawDatabase `json:"__rev_dbs__"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, errors.WithContext(err, "decode binary")
	}

	binary := &Binary{
		BinaryName: name,
		Databases:  map[ToolKind]*RevisionDatabase{},
		parent:     parent,
	}
	for ext, raw := range fields.RevDbs {
		kind, ok := ParseToolKind(ext)
		if !ok {
			return nil, errors.New("unsupported database kind %q", ext)
		}

		db, err := parseDatabase(kind, raw, binary)
		if err != nil {
			return nil, errors.WithContext(err, fmt.Sprintf("parse %q", ext))
		}
		binary.Databases[kind] = db
	}
	return binary, nil
}

func parseDatabase(kind ToolKind, raw rawDatabase, binary *Binary) (*RevisionDatabase, error) {
	db := &RevisionDatabase{Kind: kind, binary: binary}
	if raw.CheckedOut != nil {
		db.Holder = *raw.CheckedOut
	}

	for i, rawLabel := range raw.Versions {
		db.Versions = append(db.Versions, Version{Index: i, Label: label(rawLabel)})
	}

	if err := checkLatest(db.Versions, raw.Latest); err != nil {
		return nil, err
	}
	return db, nil
}

// checkLatest ensures that `latest` references the last version. The server
// may encode it either as the version's index or its label.
func checkLatest(versions []Version, latest jsoniter.RawMessage) error {
	if len(latest) == 0 || bytes.Equal(latest, []byte("null")) {
		return nil
	}

	if len(versions) == 0 {
		return errors.New("latest is set but there are no versions")
	}
	last := versions[len(versions)-1]

	if idx, err := strconv.Atoi(string(latest)); err == nil {
		if idx != last.Index {
			return errors.New("latest index %d doesn't reference the last version %d",
				idx, last.Index)
		}
		return nil
	}

	if l := label(latest); l != last.Label {
		return errors.New("latest %q doesn't reference the last version %q", l, last.Label)
	}
	return nil
}

// label returns the string value of `raw` if it's a JSON string, and the raw
// JSON text otherwise.
func label(raw jsoniter.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

func isReserved(key string) bool {
	return key == keyFileType || key == keyLocked || key == keyRevDbs
}

func isObject(raw jsoniter.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// Marshal encodes the manifest in the same format that Parse accepts.
func Marshal(m *Manifest) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		m.Project: marshalFolder(m.Root),
	})
}

func marshalFolder(folder *Folder) map[string]interface{} {
	out := map[string]interface{}{keyFileType: false}
	for name, child := range folder.Children {
		switch node := child.(type) {
		case *Folder:
			out[name] = marshalFolder(node)
		case *Binary:
			out[name] = marshalBinary(node)
		}
	}
	return out
}

func marshalBinary(binary *Binary) map[string]interface{} {
	var locked interface{}
	dbs := map[string]interface{}{}
	for kind, db := range binary.Databases {
		versions := []string{}
		for _, v := range db.Versions {
			versions = append(versions, v.Label)
		}

		var latest, holder interface{}
		if l, ok := db.Latest(); ok {
			latest = l.Label
		}
		if db.Holder != "" {
			holder = db.Holder
			locked = db.Holder
		}

		dbs[string(kind)] = map[string]interface{}{
			keyVersions:   versions,
			keyLatest:     latest,
			keyCheckedOut: holder,
		}
	}

	return map[string]interface{}{
		keyFileType: true,
		keyLocked:   locked,
		keyRevDbs:   dbs,
	}
}
