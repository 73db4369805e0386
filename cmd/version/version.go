package version

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sidkik/revsync/cmd/util"
	"github.com/sidkik/revsync/pkg/errors"
	"github.com/sidkik/revsync/pkg/version"
)

// New creates a new `version` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the local and remote version of revsync.",
		Long: "Print the local version of revsync and the version advertised\n" +
			"by the configured server.",
		Run: func(_ *cobra.Command, args []string) {
			fmt.Printf("local version:  %s\n", version.Version)
			util.Run("", run)
		},
	}
}

func run(ctx context.Context, deps *util.Deps) error {
	remoteVersion, err := deps.Client.Ping(ctx)
	if err != nil {
		return errors.WithContext(err, "get remote version")
	}

	if remoteVersion == "" {
		remoteVersion = "unknown"
	}
	fmt.Printf("server version: %s\n", remoteVersion)
	return nil
}
