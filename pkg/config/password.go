package config

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/sidkik/revsync/pkg/errors"
)

// PasswordEnvKey is the environment variable that's checked for the password
// before prompting for it.
const PasswordEnvKey = "REVSYNC_PASSWORD"

// Mocked out for unit testing.
var (
	getenv       = os.Getenv
	isTerminal   = term.IsTerminal
	readPassword = term.ReadPassword
)

// GetPassword returns the password of `username`. It's read from the
// environment if set, and prompted for without echo otherwise.
func GetPassword(username string) (string, error) {
	if password := getenv(PasswordEnvKey); password != "" {
		return password, nil
	}

	fd := int(os.Stdin.Fd())
	if !isTerminal(fd) {
		return "", errors.NewFriendlyError("No password available for %q. "+
			"Set %s, or run revsync from a terminal.", username, PasswordEnvKey)
	}

	fmt.Fprintf(os.Stderr, "Password for %s: ", username)
	password, err := readPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", errors.WithContext(err, "read password")
	}
	return string(password), nil
}

// PromptNewPassword prompts twice for a new password for `username`, and
// fails unless both entries match. It never reads the environment.
func PromptNewPassword(username string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !isTerminal(fd) {
		return "", errors.NewFriendlyError("A new password can only be entered from a terminal.")
	}

	var entries [2]string
	for i, prompt := range []string{"New password for %s: ", "Retype new password for %s: "} {
		fmt.Fprintf(os.Stderr, prompt, username)
		password, err := readPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", errors.WithContext(err, "read password")
		}
		entries[i] = string(password)
	}

	switch {
	case entries[0] == "":
		return "", errors.NewFriendlyError("The password can't be empty.")
	case entries[0] != entries[1]:
		return "", errors.NewFriendlyError("The passwords don't match.")
	}
	return entries[0], nil
}
