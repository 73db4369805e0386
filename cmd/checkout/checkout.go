package checkout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sidkik/revsync/cmd/util"
	"github.com/sidkik/revsync/pkg/checkout"
)

// Mocked for unit testing.
var stdout io.Writer = os.Stdout

// New creates a new `checkout` command.
func New() *cobra.Command {
	var project, label string
	cmd := &cobra.Command{
		Use:   "checkout PATH",
		Short: "Lock a database and download it for editing",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			util.RunInProject(project, func(ctx context.Context, deps *util.Deps) error {
				return checkoutDatabase(ctx, deps, args[0], label)
			})
		},
	}
	util.AddProjectFlag(cmd, &project)
	cmd.Flags().StringVar(&label, "version", "",
		"The version to check out. Defaults to the latest version.")
	return cmd
}

// NewCheckin creates a new `checkin` command.
func NewCheckin() *cobra.Command {
	var project, comment string
	var keep bool
	cmd := &cobra.Command{
		Use:   "checkin PATH",
		Short: "Upload the local copy of a checked out database as a new version",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			util.RunInProject(project, func(ctx context.Context, deps *util.Deps) error {
				return checkin(ctx, deps, args[0], comment, keep)
			})
		},
	}
	util.AddProjectFlag(cmd, &project)
	cmd.Flags().StringVarP(&comment, "message", "m", "",
		"A description of the changes. Defaults to "+checkout.DefaultComment+".")
	cmd.Flags().BoolVar(&keep, "keep", false,
		"Keep the database checked out after uploading it.")
	return cmd
}

// NewUndoCheckout creates a new `undo-checkout` command.
func NewUndoCheckout() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "undo-checkout PATH",
		Short: "Release the lock on a database without uploading it",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			util.RunInProject(project, func(ctx context.Context, deps *util.Deps) error {
				return undoCheckout(ctx, deps, args[0])
			})
		},
	}
	util.AddProjectFlag(cmd, &project)
	return cmd
}

// NewOpen creates a new `open` command.
func NewOpen() *cobra.Command {
	var project, label string
	cmd := &cobra.Command{
		Use:   "open PATH",
		Short: "Download a database without locking it",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			util.RunInProject(project, func(ctx context.Context, deps *util.Deps) error {
				return open(ctx, deps, args[0], label)
			})
		},
	}
	util.AddProjectFlag(cmd, &project)
	cmd.Flags().StringVar(&label, "version", "",
		"The version to open. Defaults to the latest version.")
	return cmd
}

// NewFetch creates a new `fetch` command.
func NewFetch() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "fetch PATH",
		Short: "Download the original binary",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			util.RunInProject(project, func(ctx context.Context, deps *util.Deps) error {
				return fetch(ctx, deps, args[0])
			})
		},
	}
	util.AddProjectFlag(cmd, &project)
	return cmd
}

// NewPush creates a new `push` command.
func NewPush() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "push PATH",
		Short: "Upload the databases that were created locally for a binary",
		Long: "Upload the databases that an analysis tool created in the local\n" +
			"directory of the binary at PATH. Databases that already exist on the\n" +
			"server are left unchanged.",
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			util.RunInProject(project, func(ctx context.Context, deps *util.Deps) error {
				return push(ctx, deps, args[0])
			})
		},
	}
	util.AddProjectFlag(cmd, &project)
	return cmd
}

func checkoutDatabase(ctx context.Context, deps *util.Deps, path, label string) error {
	segments := deps.ParsePath(path)
	result, err := deps.Coordinator.Checkout(ctx, deps.Session, segments, label)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Checked out %s (%s) to %s\n",
		strings.Join(segments, "/"), result.Version.Label, result.Path)
	return nil
}

func checkin(ctx context.Context, deps *util.Deps, path, comment string, keep bool) error {
	segments := deps.ParsePath(path)
	if err := deps.Coordinator.Checkin(ctx, deps.Session, segments, comment, keep); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Checked in %s\n", strings.Join(segments, "/"))
	return nil
}

func undoCheckout(ctx context.Context, deps *util.Deps, path string) error {
	segments := deps.ParsePath(path)
	if err := deps.Coordinator.UndoCheckout(ctx, deps.Session, segments); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Released %s\n", strings.Join(segments, "/"))
	return nil
}

func open(ctx context.Context, deps *util.Deps, path, label string) error {
	segments := deps.ParsePath(path)
	result, err := deps.Coordinator.Open(ctx, deps.Session, segments, label)
	if err != nil {
		return err
	}

	if result.Unchanged {
		fmt.Fprintf(stdout, "%s is checked out by you. Kept the local copy at %s\n",
			strings.Join(segments, "/"), result.Path)
		return nil
	}

	fmt.Fprintf(stdout, "Opened %s (%s) at %s\n",
		strings.Join(segments, "/"), result.Version.Label, result.Path)
	if result.Warning != "" {
		fmt.Fprintf(stdout, "WARNING: %s\n", result.Warning)
	}
	return nil
}

func fetch(ctx context.Context, deps *util.Deps, path string) error {
	local, err := deps.Coordinator.FetchBinary(ctx, deps.Session, deps.ParsePath(path))
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Downloaded %s\n", local)
	return nil
}

func push(ctx context.Context, deps *util.Deps, path string) error {
	uploaded, err := deps.Coordinator.PushLocal(ctx, deps.Session, deps.ParsePath(path))
	if err != nil {
		return err
	}

	if len(uploaded) == 0 {
		fmt.Fprintln(stdout, "No local databases found")
		return nil
	}

	for _, name := range uploaded {
		fmt.Fprintf(stdout, "Uploaded %s\n", name)
	}
	return nil
}
