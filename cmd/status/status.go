package status

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/buger/goterm"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sidkik/revsync/cmd/util"
	"github.com/sidkik/revsync/pkg/cache"
	"github.com/sidkik/revsync/pkg/manifest"
)

// Mocked for unit testing.
var stdout io.Writer = os.Stdout

// New creates a new `status` command.
func New() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the project tree and the checkout state of every database",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			util.RunInProject(project, func(ctx context.Context, deps *util.Deps) error {
				m, _ := deps.Engine.Current(deps.Session.Project)
				render(stdout, m, deps.Session.User, deps.Store)
				return nil
			})
		},
	}
	util.AddProjectFlag(cmd, &project)
	return cmd
}

// NewRefresh creates a new `refresh` command.
func NewRefresh() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch the project tree and remove stale local copies",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			util.RunInProject(project, func(ctx context.Context, deps *util.Deps) error {
				m, _ := deps.Engine.Current(deps.Session.Project)
				summarize(stdout, m, deps.Session.User)
				return nil
			})
		},
	}
	util.AddProjectFlag(cmd, &project)
	return cmd
}

type statusString struct {
	color int
	msg   string
}

func (ss statusString) String() string {
	return goterm.Color(ss.msg, ss.color)
}

func databaseStatus(db *manifest.RevisionDatabase, user string) statusString {
	switch db.Holder {
	case "":
		return statusString{color: goterm.GREEN, msg: "available"}
	case user:
		return statusString{color: goterm.YELLOW, msg: "checked out by you"}
	default:
		return statusString{color: goterm.RED, msg: "checked out by " + db.Holder}
	}
}

func render(w io.Writer, m *manifest.Manifest, user string, store *cache.Store) {
	out := tabwriter.NewWriter(w, 0, 10, 3, ' ', 0)
	m.Walk(func(node manifest.Node) {
		indent := strings.Repeat("  ", len(manifest.PathOf(node))-1)
		switch node := node.(type) {
		case *manifest.Folder:
			fmt.Fprintf(out, "%s%s/\t\t\t\n", indent, node.Name())
		case *manifest.Binary:
			fmt.Fprintf(out, "%s%s\t\t\t\n", indent, node.Name())
		case *manifest.RevisionDatabase:
			latest := "-"
			if v, ok := node.Latest(); ok {
				latest = v.Label
			}

			local := ""
			if isLocal(store, node) {
				local = "local"
			}
			fmt.Fprintf(out, "%s%s\t%s\t%s\t%s\n", indent, node.Name(), latest,
				databaseStatus(node, user), local)
		}
	})
	out.Flush()
}

func isLocal(store *cache.Store, db *manifest.RevisionDatabase) bool {
	for _, path := range store.WorkingPaths(db) {
		if exists, _ := afero.Exists(store.Fs(), path); exists {
			return true
		}
	}
	return false
}

func summarize(w io.Writer, m *manifest.Manifest, user string) {
	var total, held, mine int
	for _, db := range m.Databases() {
		total++
		if db.CheckedOut() {
			held++
		}
		if db.Holder == user {
			mine++
		}
	}
	fmt.Fprintf(w, "Refreshed %s: %d database(s), %d checked out, %d by you\n",
		m.Project, total, held, mine)
}
