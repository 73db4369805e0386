package login

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
	"github.com/sidkik/revsync/pkg/version"
)

// Mocked for unit testing.
var stdout io.Writer = os.Stdout

// New creates a new `login` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Check that the configured credentials are accepted by the server",
		Long: "Connect to the configured server, check that it runs a compatible\n" +
			"version, and list the projects that the user can open.\n" +
			"The password is read from "+config.PasswordEnvKey+", or prompted for.",
		Run: func(_ *cobra.Command, _ []string) {
			util.Run("", func(ctx context.Context, deps *util.Deps) error {
				return Main(ctx, deps.Client, deps.Session.User)
			})
		},
	}
}

// Main verifies that `client` can reach the server and is authenticated.
func Main(ctx context.Context, client transport.Client, username string) error {
	serverVersion, err := client.Ping(ctx)
	if err != nil {
		return errors.WithContext(err, "ping")
	}

	if err := version.CheckServer(serverVersion); err != nil {
		return err
	}
	log.WithField("version", serverVersion).Debug("Server version is compatible")

	// Pinging doesn't require credentials, so list the projects to check
	// them.
	projects, err := client.ListProjects(ctx)
	if err != nil {
		return errors.WithContext(err, "list projects")
	}

	fmt.Fprintf(stdout, "Logged in as %s. %d project(s) available.\n", username, len(projects))
	return nil
}
