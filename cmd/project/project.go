package project

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/revsync/cmd/util"
	"github.com/sidkik/revsync/pkg/config"
	"github.com/sidkik/revsync/pkg/errors"
	"github.com/sidkik/revsync/pkg/validate"
)

// Mocked for unit testing.
var (
	stdout    io.Writer = os.Stdout
	writeUser           = config.WriteUser
)

// New creates a new `project` command.
func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage the projects on the server",
	}

	var members []string
	createCmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a project and open it",
		Args:  projectNameArg,
		Run: func(_ *cobra.Command, args []string) {
			util.Run(args[0], func(ctx context.Context, deps *util.Deps) error {
				return create(ctx, deps, members)
			})
		},
	}
	createCmd.Flags().StringSliceVarP(&members, "member", "m", nil,
		"A user to give access to the project. Can be repeated.")

	var prune bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the projects that you can open",
		Long: "List the projects that you can open, and the local project\n" +
			"directories whose projects were deleted on the server.",
		Args: cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			util.Run("", func(ctx context.Context, deps *util.Deps) error {
				return list(ctx, deps, prune)
			})
		},
	}
	listCmd.Flags().BoolVar(&prune, "prune", false,
		"Remove the local directories of projects that were deleted on the server.")

	cmd.AddCommand(
		listCmd,
		createCmd,
		&cobra.Command{
			Use:   "delete NAME",
			Short: "Delete a project and its local directory",
			Args:  projectNameArg,
			Run: func(_ *cobra.Command, args []string) {
				util.Run(args[0], remove)
			},
		},
		&cobra.Command{
			Use:   "open NAME",
			Short: "Open a project and make it the default for other commands",
			Args:  projectNameArg,
			Run: func(_ *cobra.Command, args []string) {
				util.Run(args[0], open)
			},
		},
		newUsers(),
	)
	return cmd
}

// projectNameArg requires exactly one valid project name. An empty name would
// otherwise fall back to the configured project.
func projectNameArg(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(1)(cmd, args); err != nil {
		return err
	}
	return validate.Check(validate.KindProject, args[0])
}

func newUsers() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List the members of a project",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			util.Run(project, listMembers)
		},
	}
	util.AddProjectFlag(cmd, &project)

	addCmd := &cobra.Command{
		Use:   "add USER...",
		Short: "Give users access to a project",
		Args:  cobra.MinimumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			util.Run(project, func(ctx context.Context, deps *util.Deps) error {
				return addMembers(ctx, deps, args)
			})
		},
	}
	removeCmd := &cobra.Command{
		Use:   "remove USER...",
		Short: "Revoke the access of users to a project",
		Args:  cobra.MinimumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			util.Run(project, func(ctx context.Context, deps *util.Deps) error {
				return removeMembers(ctx, deps, args)
			})
		},
	}
	for _, subcmd := range []*cobra.Command{addCmd, removeCmd} {
		util.AddProjectFlag(subcmd, &project)
	}

	cmd.AddCommand(
		addCmd,
		removeCmd,
		&cobra.Command{
			Use:   "all",
			Short: "List every user known to the server",
			Args:  cobra.NoArgs,
			Run: func(_ *cobra.Command, _ []string) {
				util.Run("", listUsers)
			},
		},
	)
	return cmd
}

func list(ctx context.Context, deps *util.Deps, prune bool) error {
	projects, err := deps.Engine.Projects(ctx)
	if err != nil {
		return err
	}

	for _, project := range projects {
		marker := " "
		if project == deps.Config.Project {
			marker = "*"
		}
		fmt.Fprintf(stdout, "%s %s\n", marker, project)
	}

	if prune {
		pruned, err := deps.Engine.PruneProjects(projects)
		for _, project := range pruned {
			fmt.Fprintf(stdout, "Removed the local copy of deleted project %s\n", project)
		}
		return err
	}

	stale, err := deps.Store.StaleProjects(projects)
	if err != nil {
		return errors.WithContext(err, "find deleted projects")
	}
	if len(stale) != 0 {
		fmt.Fprintf(stdout, "\nThese projects were deleted on the server, but are still stored "+
			"locally:\n  %s\nRun `revsync project list --prune` to remove them.\n",
			strings.Join(stale, "\n  "))
	}
	return nil
}

func create(ctx context.Context, deps *util.Deps, members []string) error {
	if _, err := deps.Engine.Create(ctx, deps.Session, members); err != nil {
		return err
	}
	return setDefault(deps)
}

func remove(ctx context.Context, deps *util.Deps) error {
	if err := deps.Engine.Delete(ctx, deps.Session); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Deleted project %s\n", deps.Session.Project)

	if deps.Config.Project != deps.Session.Project {
		return nil
	}

	cfg := deps.Config
	cfg.Project = ""
	return errors.WithContext(writeUser(cfg), "write config")
}

func open(ctx context.Context, deps *util.Deps) error {
	if _, err := deps.Engine.Open(ctx, deps.Session); err != nil {
		return err
	}
	return setDefault(deps)
}

func setDefault(deps *util.Deps) error {
	cfg := deps.Config
	cfg.Project = deps.Session.Project
	if err := writeUser(cfg); err != nil {
		return errors.WithContext(err, "write config")
	}

	log.WithField("project", cfg.Project).Debug("Updated default project")
	fmt.Fprintf(stdout, "Opened project %s in %s\n",
		cfg.Project, deps.Store.Path(cfg.Project))
	return nil
}

func listMembers(ctx context.Context, deps *util.Deps) error {
	if err := deps.RequireProject(); err != nil {
		return err
	}

	members, err := deps.Engine.Members(ctx, deps.Session)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, strings.Join(members, "\n"))
	return nil
}

func addMembers(ctx context.Context, deps *util.Deps, users []string) error {
	if err := deps.RequireProject(); err != nil {
		return err
	}
	return deps.Engine.AddMembers(ctx, deps.Session, users)
}

func removeMembers(ctx context.Context, deps *util.Deps, users []string) error {
	if err := deps.RequireProject(); err != nil {
		return err
	}
	return deps.Engine.RemoveMembers(ctx, deps.Session, users)
}

func listUsers(ctx context.Context, deps *util.Deps) error {
	users, err := deps.Client.ListUsers(ctx)
	if err != nil {
		return errors.WithContext(err, "list users")
	}
	fmt.Fprintln(stdout, strings.Join(users, "\n"))
	return nil
}
