package manifest

// New returns a manifest containing only the project's root folder.
func New(project string) *Manifest {
	return &Manifest{
		Project: project,
		Root:    &Folder{FolderName: project, Children: map[string]Node{}},
	}
}

// AddFolder creates a child folder, or returns the existing child folder of
// the same name.
func (f *Folder) AddFolder(name string) *Folder {
	if existing, ok := f.Children[name].(*Folder); ok {
		return existing
	}

	child := &Folder{FolderName: name, Children: map[string]Node{}, parent: f}
	f.Children[name] = child
	return child
}

// AddBinary creates a child binary, or returns the existing child binary of
// the same name.
func (f *Folder) AddBinary(name string) *Binary {
	if existing, ok := f.Children[name].(*Binary); ok {
		return existing
	}

	child := &Binary{BinaryName: name, Databases: map[ToolKind]*RevisionDatabase{}, parent: f}
	f.Children[name] = child
	return child
}

// AddDatabase creates a database of the given kind with the given history.
func (b *Binary) AddDatabase(kind ToolKind, labels ...string) *RevisionDatabase {
	db := &RevisionDatabase{Kind: kind, binary: b}
	for _, label := range labels {
		db.Append(label)
	}
	b.Databases[kind] = db
	return db
}

// Append adds a new version to the end of the history.
func (db *RevisionDatabase) Append(label string) Version {
	v := Version{Index: len(db.Versions), Label: label}
	db.Versions = append(db.Versions, v)
	return v
}

// Detach removes the child `name` from the folder and returns it. It returns
// nil if there's no such child.
func (f *Folder) Detach(name string) Node {
	child, ok := f.Children[name]
	if !ok {
		return nil
	}

	delete(f.Children, name)
	setParent(child, nil)
	return child
}

// Attach adds `node` as a child of the folder under `name`, renaming it if
// necessary. It returns false if the name is already taken.
func (f *Folder) Attach(name string, node Node) bool {
	if _, ok := f.Children[name]; ok {
		return false
	}

	switch n := node.(type) {
	case *Folder:
		n.FolderName = name
	case *Binary:
		n.BinaryName = name
	default:
		return false
	}

	setParent(node, f)
	f.Children[name] = node
	return true
}

func setParent(node Node, parent *Folder) {
	switch n := node.(type) {
	case *Folder:
		n.parent = parent
	case *Binary:
		n.parent = parent
	}
}
