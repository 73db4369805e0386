package watch

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sidkik/revsync/cmd/util"
	"github.com/sidkik/revsync/pkg/errors"
	"github.com/sidkik/revsync/pkg/fswatch"
	"github.com/sidkik/revsync/pkg/manifest"
)

// DefaultInterval is how often the project is refreshed.
const DefaultInterval = 30 * time.Second

// Mocked for unit testing.
var (
	stdout io.Writer = os.Stdout
	clock            = clockwork.NewRealClock()
)

// New creates a new `watch` command.
func New() *cobra.Command {
	var project string
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Report lock changes and local edits to checked out databases",
		Long: "Periodically refresh the project, and print when databases are\n" +
			"checked out or released by other users. Databases that are checked\n" +
			"out by you are watched for local edits, so that you're reminded to\n" +
			"check them in.",
		Args: cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			util.RunInProject(project, func(ctx context.Context, deps *util.Deps) error {
				return run(ctx, deps, interval)
			})
		},
	}
	util.AddProjectFlag(cmd, &project)
	cmd.Flags().DurationVar(&interval, "interval", DefaultInterval,
		"How often to refresh the project.")
	return cmd
}

func run(ctx context.Context, deps *util.Deps, interval time.Duration) error {
	m, ok := deps.Engine.Current(deps.Session.Project)
	if !ok {
		return errors.NewNotFound([]string{deps.Session.Project})
	}

	w := &watcher{
		out:  stdout,
		user: deps.Session.User,
		refresh: func(ctx context.Context) (*manifest.Manifest, error) {
			return deps.Engine.Refresh(ctx, deps.Session)
		},
		holders: holders(m),
		roots:   map[string][]string{},
	}

	for _, db := range m.Databases() {
		if db.Holder != w.user {
			continue
		}

		for _, path := range deps.Store.WorkingPaths(db) {
			if exists, _ := afero.Exists(deps.Store.Fs(), path); exists {
				w.roots[path] = manifest.PathOf(db)
			}
		}
	}

	var events <-chan struct{}
	if len(w.roots) != 0 {
		updates, stop, err := fswatch.Watch(w.rootPaths())
		if err != nil {
			return errors.WithContext(err, "watch")
		}
		defer stop()
		events = updates

		if w.snapshot, err = fswatch.TakeSnapshot(w.rootPaths()); err != nil {
			return errors.WithContext(err, "snapshot")
		}
	}

	fmt.Fprintf(w.out, "Watching %s (%d local database file(s)). Press Ctrl-C to stop.\n",
		deps.Session.Project, len(w.roots))
	loop(ctx, clock, interval, events, w.onTick, w.onChange)
	return nil
}

// loop calls `onTick` every `interval`, and `onChange` whenever `events`
// fires, until the context is cancelled.
func loop(ctx context.Context, clk clockwork.Clock, interval time.Duration,
	events <-chan struct{}, onTick, onChange func(context.Context)) {
	tick := clk.After(interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			onTick(ctx)
			tick = clk.After(interval)
		case <-events:
			onChange(ctx)
		}
	}
}

type watcher struct {
	out     io.Writer
	user    string
	refresh func(context.Context) (*manifest.Manifest, error)

	// holders maps database paths to the user that has them checked out.
	holders map[string]string

	// roots maps the local files of the databases checked out by the user to
	// their database paths.
	roots    map[string][]string
	snapshot fswatch.Snapshot
}

func (w *watcher) onTick(ctx context.Context) {
	m, err := w.refresh(ctx)
	if err != nil {
		log.WithError(err).Warn("Failed to refresh")
		return
	}

	curr := holders(m)
	var paths []string
	for path := range curr {
		paths = append(paths, path)
	}
	for path := range w.holders {
		if _, ok := curr[path]; !ok {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)

	for _, path := range paths {
		prev, existed := w.holders[path]
		holder, exists := curr[path]
		switch {
		case !exists:
			fmt.Fprintf(w.out, "%s was deleted\n", path)
		case !existed:
			fmt.Fprintf(w.out, "%s was added\n", path)
		case prev == holder:
		case holder == "":
			fmt.Fprintf(w.out, "%s is now available\n", path)
		case holder == w.user:
			fmt.Fprintf(w.out, "%s is now checked out by you\n", path)
		default:
			fmt.Fprintf(w.out, "%s is now checked out by %s\n", path, holder)
		}
	}
	w.holders = curr
}

func (w *watcher) onChange(ctx context.Context) {
	snapshot, err := fswatch.TakeSnapshot(w.rootPaths())
	if err != nil {
		log.WithError(err).Warn("Failed to hash local databases")
		return
	}

	// Archived projects have more than one root per database.
	reported := map[string]struct{}{}
	for _, root := range w.snapshot.Changed(snapshot, w.rootPaths()) {
		path := w.roots[root]
		key := strings.Join(path, "/")
		if _, ok := reported[key]; ok {
			continue
		}
		reported[key] = struct{}{}

		fmt.Fprintf(w.out, "%s was modified locally. Run `revsync checkin %s` to upload it.\n",
			key, strings.Join(path[1:], "/"))
	}
	w.snapshot = snapshot
}

func (w *watcher) rootPaths() []string {
	var paths []string
	for path := range w.roots {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func holders(m *manifest.Manifest) map[string]string {
	result := map[string]string{}
	for _, db := range m.Databases() {
		result[strings.Join(manifest.PathOf(db), "/")] = db.Holder
	}
	return result
}
