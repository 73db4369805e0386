package config

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/user"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/revsync/cmd/util"
	"github.com/sidkik/revsync/pkg/config"
	"github.com/sidkik/revsync/pkg/errors"
)

// Mocked for unit testing.
var (
	stdout          io.Writer = os.Stdout
	stdin           io.Reader = os.Stdin
	guessDefaults             = guessDefaultsImpl
	parseUserConfig           = config.ParseUser
	stat                      = os.Stat
	getCurrentUser            = user.Current
)

// New creates a new `config` command.
func New() *cobra.Command {
	var cliOpts config.User
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Setup the revsync user configuration",
		Run: func(_ *cobra.Command, _ []string) {
			if err := SetupConfig(cliOpts); err != nil {
				err = errors.NewFriendlyError("Failed to setup configuration:\n%s", err)
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&cliOpts.Server, "server", "",
		"Set the server address in the config. "+
			"Optional: If not set, `revsync config` will interactively prompt.")
	cmd.Flags().StringVar(&cliOpts.Username, "username", "",
		"Set the username in the config. "+
			"Optional: If not set, `revsync config` will interactively prompt.")
	cmd.Flags().StringVar(&cliOpts.Cert, "cert", "",
		"Set the path to the server's CA certificate in the config. "+
			"Optional: If not set, `revsync config` will interactively prompt.")
	cmd.Flags().StringVar(&cliOpts.CacheDir, "cache-dir", "",
		"Set the directory that projects are stored in. "+
			"Optional: If not set, `revsync config` will interactively prompt.")

	// Setup the commands for querying the contents of the user config.
	type getterSpec struct {
		use, short string
		fn         func(config.User) string
	}

	getters := []getterSpec{
		{
			use:   "get-server",
			short: "Get the currently configured server address",
			fn:    func(cfg config.User) string { return cfg.Server },
		},
		{
			use:   "get-project",
			short: "Get the currently opened project",
			fn:    func(cfg config.User) string { return cfg.Project },
		},
		{
			use:   "get-cache-dir",
			short: "Get the directory that projects are stored in",
			fn:    func(cfg config.User) string { return cfg.CacheDir },
		},
	}
	for _, getter := range getters {
		getter := getter
		cmd.AddCommand(&cobra.Command{
			Use:   getter.use,
			Short: getter.short,
			Run: func(_ *cobra.Command, _ []string) {
				cfg, err := parseUserConfig()
				if err != nil {
					err = errors.WithContext(err, "read config")
					util.HandleFatalError(err)
				}

				fmt.Fprintln(stdout, getter.fn(cfg))
			},
		})
	}

	return cmd
}

// SetupConfig prompts for the settings that weren't set in `cliOpts`, and
// writes the result to the user config.
func SetupConfig(cliOpts config.User) error {
	cfg, err := generateConfig(cliOpts)
	if err != nil {
		return errors.WithContext(err, "generate config")
	}

	if err := config.WriteUser(cfg); err != nil {
		return errors.WithContext(err, "write config")
	}

	path, err := config.GetUserConfigPath()
	if err != nil {
		return errors.WithContext(err, "get user config path")
	}

	fmt.Fprintf(stdout, "Wrote config to %s\n", path)
	return nil
}

func serverValidationFn(server string) (string, bool) {
	addr, err := url.Parse(server)
	if err != nil || addr.Host == "" {
		return "The server address must be a URL, such as https://revsync.example.com:5000. " +
			"Please enter another address.", false
	}

	if addr.Scheme != "http" && addr.Scheme != "https" {
		return "The server address must start with http:// or https://. " +
			"Please enter another address.", false
	}
	return "", true
}

func usernameValidationFn(username string) (string, bool) {
	if username == "" || strings.ContainsAny(username, " \t") {
		return "The username must be non-empty and can't contain whitespace. " +
			"Please enter another username.", false
	}
	return "", true
}

func certValidationFn(path string) (string, bool) {
	if path == "" {
		return "", true
	}

	if _, err := stat(path); err != nil {
		return fmt.Sprintf("Failed to read %s: %s\n"+
			"Please enter another path, or leave it empty.", path, err), false
	}
	return "", true
}

type prompt struct {
	helpString, prompt, defaultAnswer, currAnswer string
	field                                         *string
	validationFn                                  func(string) (string, bool)
}

// generateConfig interacts with the user to decide what the user's desired
// configuration is.
// It makes best guesses at reasonable defaults, and allows users to explicitly
// override them if desired.
func generateConfig(cliOpts config.User) (config.User, error) {
	defaults := guessDefaults()
	currConfig, err := parseUserConfig()
	if err != nil {
		currConfig = config.User{}
		log.WithError(err).Debug("Failed to read current config")
	}

	cfg := cliOpts
	if cfg.Project == "" {
		cfg.Project = currConfig.Project
	}

	var prompts []prompt
	if cliOpts.Server == "" {
		prompts = append(prompts, prompt{
			helpString: "Enter the address of the revsync server.\n" +
				"It should include the scheme and port, such as https://revsync.example.com:5000.",
			prompt:        "Server address",
			defaultAnswer: defaults.Server,
			currAnswer:    currConfig.Server,
			field:         &cfg.Server,
			validationFn:  serverValidationFn,
		})
	}

	if cliOpts.Username == "" {
		prompts = append(prompts, prompt{
			helpString: "Enter your username on the revsync server.\n" +
				"It defaults to your local username.",
			prompt:        "Username",
			defaultAnswer: defaults.Username,
			currAnswer:    currConfig.Username,
			field:         &cfg.Username,
			validationFn:  usernameValidationFn,
		})
	}

	if cliOpts.Cert == "" {
		prompts = append(prompts, prompt{
			helpString: "Enter the path to the CA certificate that signed the server's certificate.\n" +
				"Leave it empty to use the system's certificate authorities.",
			prompt:        "Path to CA certificate",
			defaultAnswer: defaults.Cert,
			currAnswer:    currConfig.Cert,
			field:         &cfg.Cert,
			validationFn:  certValidationFn,
		})
	}

	if cliOpts.CacheDir == "" {
		prompts = append(prompts, prompt{
			helpString: "Enter the directory that projects should be stored in.\n" +
				"Databases are checked out into this directory.",
			prompt:        "Project directory",
			defaultAnswer: defaults.CacheDir,
			currAnswer:    currConfig.CacheDir,
			field:         &cfg.CacheDir,
		})
	}

	for _, prompt := range prompts {
		var resp string
		for {
			resp, err = promptUser(prompt.helpString, prompt.prompt,
				prompt.defaultAnswer, prompt.currAnswer)
			if err != nil {
				return config.User{}, errors.WithContext(err, "read response")
			}

			if prompt.validationFn == nil {
				break
			}

			validationErr, ok := prompt.validationFn(resp)
			if ok {
				break
			}

			fmt.Fprintln(stdout, validationErr)
		}

		*prompt.field = resp
	}

	return cfg, nil
}

// guessDefaults tries to guess reasonable defaults for the fields in the user
// config.
func guessDefaultsImpl() (cfg config.User) {
	cfg.CacheDir = config.DefaultCacheDir

	if username, err := guessUsername(); err == nil {
		cfg.Username = username
	} else {
		log.WithError(err).Info("Failed to guess username")
	}

	return cfg
}

func guessUsername() (string, error) {
	currConfig, err := parseUserConfig()
	if err == nil && currConfig.Username != "" {
		return currConfig.Username, nil
	}

	user, err := getCurrentUser()
	if err != nil {
		return "", errors.WithContext(err, "get current user")
	}
	return user.Username, nil
}

func promptUser(helpString, prompt, defaultAnswer, currAnswer string) (string, error) {
	// Display a new line at the end to separate different fields to make it
	// look clearer.
	defer fmt.Fprintln(stdout)

	options := []string{}
	if defaultAnswer != "" {
		options = append(options, defaultAnswer)
	}
	if currAnswer != "" && currAnswer != defaultAnswer {
		options = append(options, currAnswer)
	}
	options = append(options, "(Enter manually)")

	fmt.Fprintln(stdout, helpString+"\n"+prompt+":")

	stdinReader := bufio.NewReader(stdin)

	if nOptions := len(options); nOptions > 1 {
		// defaultAnswer or currAnswer exists.
		fmt.Fprintln(stdout)
		for i, option := range options {
			if i == 0 {
				option = fmt.Sprintf("%s (recommended)", option)
			}
			fmt.Fprintf(stdout, "\t%d. %s\n", i+1, option)
		}
		fmt.Fprintln(stdout)

		for {
			fmt.Fprintf(stdout, "Please choose one [1-%d]: ", nOptions)
			choiceStr, err := stdinReader.ReadString('\n')
			if err != nil {
				return "", err
			}

			var choice int
			choiceStr = strings.TrimRight(choiceStr, "\n")

			// Default to the first choice if user doesn't enter anything.
			if choiceStr == "" {
				choice = 1
			} else {
				choice, err = strconv.Atoi(choiceStr)
				if err != nil || choice < 1 || choice > nOptions {
					// Try again if the input is invalid.
					continue
				}
			}

			if choice == nOptions {
				// Enter manually.
				break
			}

			return options[choice-1], nil
		}
	}

	fmt.Fprint(stdout, "Please enter manually: ")
	resp, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}

	return strings.TrimRight(resp, "\n"), nil
}
