package manifest

// ToolKind is the file extension of a RevisionDatabase. It identifies the
// analysis tool that produced the database.
type ToolKind string

// The supported tool kinds.
const (
	BinaryNinja   ToolKind = "bndb"
	IDA64         ToolKind = "i64"
	IDA32         ToolKind = "idb"
	Hopper        ToolKind = "hop"
	Rizin         ToolKind = "rzdb"
	Ghidra        ToolKind = "ghdb"
	JEB           ToolKind = "jdb2"
	AndroidStudio ToolKind = "asp"
)

// Kinds lists every supported tool kind.
var Kinds = []ToolKind{
	BinaryNinja, IDA64, IDA32, Hopper, Rizin, Ghidra, JEB, AndroidStudio,
}

// ParseToolKind returns the ToolKind for the extension `ext`.
func ParseToolKind(ext string) (ToolKind, bool) {
	for _, kind := range Kinds {
		if string(kind) == ext {
			return kind, true
		}
	}
	return "", false
}

// Archived returns whether the tool stores its project as a directory tree
// that has to be packed into a single artifact for transport.
func (k ToolKind) Archived() bool {
	return k == Ghidra || k == AndroidStudio
}

// NeedsBinary returns whether the tool needs the original binary next to the
// database to open it.
func (k ToolKind) NeedsBinary() bool {
	return k == Rizin
}

// StripsExtension returns whether the tool drops the binary's own extension
// when saving, e.g. `app.bndb` instead of `app.bin.bndb`.
func (k ToolKind) StripsExtension() bool {
	return k == Hopper || k == BinaryNinja
}
