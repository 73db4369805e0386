package tree

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sidkik/revsync/cmd/util"
	"github.com/sidkik/revsync/pkg/errors"
	"github.com/sidkik/revsync/pkg/manifest"
)

// Mocked for unit testing.
var (
	stdout io.Writer = os.Stdout
	fs               = afero.NewOsFs()
)

// NewMkdir creates a new `mkdir` command.
func NewMkdir() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "mkdir PATH",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			util.RunInProject(project, func(ctx context.Context, deps *util.Deps) error {
				return mkdir(ctx, deps, args[0])
			})
		},
	}
	util.AddProjectFlag(cmd, &project)
	return cmd
}

// NewRename creates a new `rename` command.
func NewRename() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "rename PATH NAME",
		Short: "Rename a folder",
		Args:  cobra.ExactArgs(2),
		Run: func(_ *cobra.Command, args []string) {
			util.RunInProject(project, func(ctx context.Context, deps *util.Deps) error {
				return deps.Mutator.Rename(ctx, deps.Session, deps.ParsePath(args[0]), args[1])
			})
		},
	}
	util.AddProjectFlag(cmd, &project)
	return cmd
}

// NewMove creates a new `move` command.
func NewMove() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "move SRC DEST",
		Short: "Move a folder or binary into another folder",
		Args:  cobra.ExactArgs(2),
		Run: func(_ *cobra.Command, args []string) {
			util.RunInProject(project, func(ctx context.Context, deps *util.Deps) error {
				return deps.Mutator.Move(ctx, deps.Session,
					deps.ParsePath(args[0]), deps.ParsePath(args[1]))
			})
		},
	}
	util.AddProjectFlag(cmd, &project)
	return cmd
}

// NewRemove creates a new `rm` command.
func NewRemove() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "rm PATH",
		Short: "Delete a folder, binary or database",
		Long: "Delete a folder, binary or database from the server.\n" +
			"Nothing is deleted if a database below PATH is checked out.",
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			util.RunInProject(project, func(ctx context.Context, deps *util.Deps) error {
				return remove(ctx, deps, args[0])
			})
		},
	}
	util.AddProjectFlag(cmd, &project)
	return cmd
}

// NewUpload creates a new `upload` command.
func NewUpload() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "upload LOCAL_PATH [FOLDER]",
		Short: "Upload a binary, or a directory of binaries",
		Long: "Upload the file at LOCAL_PATH as a new binary in FOLDER.\n" +
			"If LOCAL_PATH is a directory, it's recreated in FOLDER along with\n" +
			"everything in it. FOLDER defaults to the project root.",
		Args: cobra.RangeArgs(1, 2),
		Run: func(_ *cobra.Command, args []string) {
			var folder string
			if len(args) == 2 {
				folder = args[1]
			}

			util.RunInProject(project, func(ctx context.Context, deps *util.Deps) error {
				return upload(ctx, deps, args[0], folder)
			})
		},
	}
	util.AddProjectFlag(cmd, &project)
	return cmd
}

func mkdir(ctx context.Context, deps *util.Deps, path string) error {
	segments := deps.ParsePath(path)
	if len(segments) < 2 {
		return errors.NewFriendlyError("A folder name is required.")
	}

	parent, name := segments[:len(segments)-1], segments[len(segments)-1]
	return deps.Mutator.MakeFolder(ctx, deps.Session, parent, name)
}

func remove(ctx context.Context, deps *util.Deps, path string) error {
	segments := deps.ParsePath(path)
	m, ok := deps.Engine.Current(deps.Session.Project)
	if !ok {
		return errors.NewNotFound(segments)
	}

	node, err := m.Resolve(segments)
	if err != nil {
		return err
	}

	if _, ok := node.(*manifest.Folder); ok {
		err = deps.Mutator.DeleteFolder(ctx, deps.Session, segments)
	} else {
		err = deps.Mutator.DeleteFile(ctx, deps.Session, segments)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Deleted %s\n", strings.Join(segments, "/"))
	return nil
}

func upload(ctx context.Context, deps *util.Deps, localPath, folder string) error {
	fi, err := fs.Stat(localPath)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NewFriendlyError("%s doesn't exist.", localPath)
		}
		return errors.WithContext(err, "stat")
	}

	segments := deps.ParsePath(folder)
	if fi.IsDir() {
		err = deps.Mutator.UploadDir(ctx, deps.Session, segments, localPath)
	} else {
		err = deps.Mutator.UploadFile(ctx, deps.Session, segments, localPath)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Uploaded %s to %s\n", localPath, strings.Join(segments, "/"))
	return nil
}
