package user

import (
	"context"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/revsync/cmd/util"
	"github.com/sidkik/revsync/pkg/config"
	"github.com/sidkik/revsync/pkg/errors"
	"github.com/sidkik/revsync/pkg/transport"
)

// Mocked for unit testing.
var (
	stdout            io.Writer = os.Stdout
	promptNewPassword           = config.PromptNewPassword
)

// New creates a new `user` command.
func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts on the server",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "passwd",
			Short: "Change your password",
			Args:  cobra.NoArgs,
			Run: func(_ *cobra.Command, _ []string) {
				util.Run("", changePassword)
			},
		},
		&cobra.Command{
			Use:   "add USERNAME",
			Short: "Create a user account. Only the admin user can do this",
			Args:  cobra.ExactArgs(1),
			Run: func(_ *cobra.Command, args []string) {
				util.Run("", func(ctx context.Context, deps *util.Deps) error {
					return add(ctx, deps, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "delete USERNAME...",
			Short: "Delete user accounts. Only the admin user can do this",
			Args:  cobra.MinimumNArgs(1),
			Run: func(_ *cobra.Command, args []string) {
				util.Run("", func(ctx context.Context, deps *util.Deps) error {
					return remove(ctx, deps, args)
				})
			},
		},
	)
	return cmd
}

func changePassword(ctx context.Context, deps *util.Deps) error {
	password, err := promptNewPassword(deps.Session.User)
	if err != nil {
		return err
	}

	if err := deps.Client.ChangePassword(ctx, password); err != nil {
		return errors.WithContext(err, "change password")
	}

	fmt.Fprintf(stdout, "Changed the password of %s. "+
		"Use the new password from now on, and update %s if it's set.\n",
		deps.Session.User, config.PasswordEnvKey)
	return nil
}

func add(ctx context.Context, deps *util.Deps, username string) error {
	if err := requireAdmin(deps); err != nil {
		return err
	}

	if username == "" {
		return errors.NewFriendlyError("The username can't be empty.")
	}

	password, err := promptNewPassword(username)
	if err != nil {
		return err
	}

	if err := deps.Client.AddUser(ctx, username, password); err != nil {
		return errors.WithContext(err, "add user")
	}

	log.WithField("user", username).Debug("Added user")
	fmt.Fprintf(stdout, "Added user %s\n", username)
	return nil
}

func remove(ctx context.Context, deps *util.Deps, users []string) error {
	if err := requireAdmin(deps); err != nil {
		return err
	}

	for _, user := range users {
		if user == transport.AdminUser {
			return errors.NewFriendlyError("The %s user can't be deleted.", transport.AdminUser)
		}
	}

	if err := deps.Client.DeleteUsers(ctx, users); err != nil {
		return errors.WithContext(err, "delete users")
	}

	for _, user := range users {
		fmt.Fprintf(stdout, "Deleted user %s\n", user)
	}
	return nil
}

func requireAdmin(deps *util.Deps) error {
	if deps.Session.User != transport.AdminUser {
		return errors.NewFriendlyError("Only the %s user can manage accounts. "+
			"You're logged in as %s.", transport.AdminUser, deps.Session.User)
	}
	return nil
}
