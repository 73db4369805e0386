// Package manifest models the authoritative remote project tree.
//
// A Manifest is never edited locally. Every refresh parses a new Manifest
// from the server's response and throws away the previous one.
package manifest

import (
	"sort"

	"github.com/sidkik/revsync/pkg/errors"
)

// Node is a Folder, Binary or RevisionDatabase.
type Node interface {
	Name() string
	Parent() Node
}

// Folder is a directory in the project tree.
type Folder struct {
	FolderName string
	Children   map[string]Node

	// Expanded is a view hint. It's set on every folder after a refresh.
	Expanded bool

	parent *Folder
}

// Binary is an uploaded analysis target, together with the databases that
// were created for it.
type Binary struct {
	BinaryName string
	Databases  map[ToolKind]*RevisionDatabase

	parent *Folder
}

// RevisionDatabase is a versioned, lockable tool database derived from a
// Binary.
type RevisionDatabase struct {
	Kind     ToolKind
	Versions []Version

	// Holder is the user who has the database checked out. It's empty if the
	// database is available.
	Holder string

	binary *Binary
}

// Version is an entry in the append-only history of a RevisionDatabase.
type Version struct {
	// Index is the position in the history. It's what the server expects
	// when selecting a version.
	Index int

	// Label is the opaque description listed by the server.
	Label string
}

// Manifest is the tree of a single project.
type Manifest struct {
	Project string
	Root    *Folder
}

// Name implements the Node interface.
func (f *Folder) Name() string { return f.FolderName }

// Parent implements the Node interface.
func (f *Folder) Parent() Node {
	if f.parent == nil {
		return nil
	}
	return f.parent
}

// Names returns the names of the folder's children in sorted order.
func (f *Folder) Names() []string {
	var names []string
	for name := range f.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Name implements the Node interface.
func (b *Binary) Name() string { return b.BinaryName }

// Parent implements the Node interface.
func (b *Binary) Parent() Node {
	if b.parent == nil {
		return nil
	}
	return b.parent
}

// Kinds returns the kinds of the binary's databases in sorted order.
func (b *Binary) Kinds() []ToolKind {
	var kinds []ToolKind
	for kind := range b.Databases {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Name implements the Node interface.
func (db *RevisionDatabase) Name() string { return string(db.Kind) }

// Parent implements the Node interface.
func (db *RevisionDatabase) Parent() Node {
	if db.binary == nil {
		return nil
	}
	return db.binary
}

// Binary returns the binary that the database belongs to.
func (db *RevisionDatabase) Binary() *Binary {
	return db.binary
}

// FileName is the name the server and the analysis tool use for the
// database's artifact.
func (db *RevisionDatabase) FileName() string {
	return db.binary.BinaryName + "." + string(db.Kind)
}

// CheckedOut returns whether anyone holds the checkout lock.
func (db *RevisionDatabase) CheckedOut() bool {
	return db.Holder != ""
}

// Latest returns the newest version. It returns false if the database has no
// history.
func (db *RevisionDatabase) Latest() (Version, bool) {
	if len(db.Versions) == 0 {
		return Version{}, false
	}
	return db.Versions[len(db.Versions)-1], true
}

// Select returns the version with the given label. An empty label selects the
// latest version.
func (db *RevisionDatabase) Select(label string) (Version, error) {
	if label == "" {
		if latest, ok := db.Latest(); ok {
			return latest, nil
		}
		return Version{}, errors.NewNotFound(append(PathOf(db), "latest"))
	}

	for _, v := range db.Versions {
		if v.Label == label {
			return v, nil
		}
	}
	return Version{}, errors.NewNotFound(append(PathOf(db), label))
}

// Resolve returns the node at `segments`. The first segment is the project
// name. Once a Binary is reached, the next segment selects one of its
// databases by tool extension.
// A NotFound error means the manifest is stale and should be refreshed.
func (m *Manifest) Resolve(segments []string) (Node, error) {
	if len(segments) == 0 || m.Root == nil || segments[0] != m.Root.FolderName {
		return nil, errors.NewNotFound(segments)
	}

	var curr Node = m.Root
	for i, segment := range segments[1:] {
		switch node := curr.(type) {
		case *Folder:
			child, ok := node.Children[segment]
			if !ok {
				return nil, errors.NewNotFound(segments[:i+2])
			}
			curr = child
		case *Binary:
			kind, ok := ParseToolKind(segment)
			if !ok {
				return nil, errors.NewNotFound(segments[:i+2])
			}
			db, ok := node.Databases[kind]
			if !ok {
				return nil, errors.NewNotFound(segments[:i+2])
			}
			curr = db
		default:
			return nil, errors.NewNotFound(segments[:i+2])
		}
	}
	return curr, nil
}

// ResolveFolder is like Resolve, but fails if the node isn't a Folder.
func (m *Manifest) ResolveFolder(segments []string) (*Folder, error) {
	node, err := m.Resolve(segments)
	if err != nil {
		return nil, err
	}

	folder, ok := node.(*Folder)
	if !ok {
		return nil, errors.NewNotFound(segments)
	}
	return folder, nil
}

// ResolveDatabase is like Resolve, but fails if the node isn't a
// RevisionDatabase.
func (m *Manifest) ResolveDatabase(segments []string) (*RevisionDatabase, error) {
	node, err := m.Resolve(segments)
	if err != nil {
		return nil, err
	}

	db, ok := node.(*RevisionDatabase)
	if !ok {
		return nil, errors.NewNotFound(segments)
	}
	return db, nil
}

// PathOf returns the segments from the project root to `node`.
func PathOf(node Node) []string {
	var path []string
	for curr := node; curr != nil; curr = curr.Parent() {
		path = append([]string{curr.Name()}, path...)
	}
	return path
}

// Walk calls `fn` for every node in the tree in depth-first order, visiting
// children in sorted order.
func (m *Manifest) Walk(fn func(Node)) {
	if m.Root == nil {
		return
	}

	stack := []Node{m.Root}
	for len(stack) > 0 {
		curr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(curr)

		switch node := curr.(type) {
		case *Folder:
			names := node.Names()
			for i := len(names) - 1; i >= 0; i-- {
				stack = append(stack, node.Children[names[i]])
			}
		case *Binary:
			kinds := node.Kinds()
			for i := len(kinds) - 1; i >= 0; i-- {
				stack = append(stack, node.Databases[kinds[i]])
			}
		}
	}
}

// Databases returns every RevisionDatabase in the tree.
func (m *Manifest) Databases() (dbs []*RevisionDatabase) {
	m.Walk(func(node Node) {
		if db, ok := node.(*RevisionDatabase); ok {
			dbs = append(dbs, db)
		}
	})
	return dbs
}
