package config

import (
	"fmt"
	"os"

	"github.com/ghodss/yaml"
	"github.com/spf13/afero"

	"github.com/sidkik/revsync/pkg/errors"
	"github.com/sidkik/revsync/pkg/validate"
)

// malformedConfigTemplate is shown when the user config isn't valid yaml, or
// has fields that revsync doesn't know about. The yaml library only reports
// a message, so it's passed on as is.
const malformedConfigTemplate = "Failed to read the revsync config at %q.\n" +
	"Check that every field has the right type, and that there are no fields " +
	"other than version, server, username, cert, cacheDir and project.\n\n" +
	"The parser reported:\n" +
	"%s"

// UnsupportedVersionError is returned when the user config was written for
// a config version that this binary doesn't read.
type UnsupportedVersionError struct {
	Path, Supported, Found string
}

func (err UnsupportedVersionError) Error() string {
	return err.FriendlyMessage()
}

// FriendlyMessage implements the friendly error interface.
func (err UnsupportedVersionError) FriendlyMessage() string {
	return fmt.Sprintf("The revsync config at %q has version %q, but this "+
		"version of revsync only reads version %q.\n"+
		"Run `revsync config` to rewrite it.", err.Path, err.Found, err.Supported)
}

// readUser loads the user config at `path`. Files without a version are
// treated as InitialUserConfigVersion.
// The version is checked before unknown fields are rejected, so that a
// config from a newer release is reported as such.
func readUser(path string) (User, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return User{}, errors.FileNotFound{Path: path}
		}
		return User{}, errors.WithContext(err, "read file")
	}

	loose := User{Version: InitialUserConfigVersion}
	if err := yaml.Unmarshal(data, &loose); err != nil {
		return User{}, errors.NewFriendlyError(malformedConfigTemplate, path, err)
	}

	if loose.Version != SupportedUserConfigVersion {
		return User{}, UnsupportedVersionError{
			Path:      path,
			Supported: SupportedUserConfigVersion,
			Found:     loose.Version,
		}
	}

	cfg := User{Version: InitialUserConfigVersion}
	if err := yaml.UnmarshalStrict(data, &cfg, yaml.DisallowUnknownFields); err != nil {
		return User{}, errors.NewFriendlyError(malformedConfigTemplate, path, err)
	}

	// The default project names a directory under the cache, so it must
	// never be able to point outside of it.
	if cfg.Project != "" && !validate.Name(cfg.Project) {
		return User{}, errors.NewFriendlyError("The revsync config at %q opens project %q, "+
			"which isn't a valid project name.\n"+
			"Run `revsync project open <name>` to choose another project.", path, cfg.Project)
	}
	return cfg, nil
}
