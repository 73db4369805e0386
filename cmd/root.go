package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	checkoutCmd "github.com/sidkik/revsync/cmd/checkout"
	configCmd "github.com/sidkik/revsync/cmd/config"
	"github.com/sidkik/revsync/cmd/login"
	"github.com/sidkik/revsync/cmd/project"
	"github.com/sidkik/revsync/cmd/status"
	treeCmd "github.com/sidkik/revsync/cmd/tree"
	"github.com/sidkik/revsync/cmd/user"
	"github.com/sidkik/revsync/cmd/util"
	"github.com/sidkik/revsync/cmd/version"
	"github.com/sidkik/revsync/cmd/watch"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "REVSYNC_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	if os.Getenv(verboseLogKey) == "true" {
		log.SetLevel(log.DebugLevel)
	}

	rootCmd := &cobra.Command{
		Use:          "revsync",
		Short:        "Check out and check in shared binary analysis databases",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		configCmd.New(),
		login.New(),
		version.New(),
		project.New(),
		user.New(),
		status.New(),
		status.NewRefresh(),
		treeCmd.NewMkdir(),
		treeCmd.NewRename(),
		treeCmd.NewMove(),
		treeCmd.NewRemove(),
		treeCmd.NewUpload(),
		checkoutCmd.New(),
		checkoutCmd.NewCheckin(),
		checkoutCmd.NewUndoCheckout(),
		checkoutCmd.NewOpen(),
		checkoutCmd.NewFetch(),
		checkoutCmd.NewPush(),
		watch.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}
