package config

import (
	"path/filepath"

	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/sidkik/revsync/pkg/errors"
	"github.com/sidkik/revsync/pkg/transport"
)

const (
	// UserConfigPath is the default path to the revsync user config.
	UserConfigPath = "~/.revsync.yaml"

	// DefaultCacheDir is where projects are stored if the config doesn't
	// say otherwise.
	DefaultCacheDir = "~/.revsync_projects"

	// InitialUserConfigVersion is the first version of the revsync user
	// config. Config files that do not specify a version will default to this
	// version.
	InitialUserConfigVersion = "v1alpha1"

	// SupportedUserConfigVersion is the supported version of the revsync user
	// config of the current binary.
	SupportedUserConfigVersion = "v1alpha1"
)

// User contains the server connection settings and the local cache location.
type User struct {
	Version  string `json:"version,omitempty"`
	Server   string `json:"server"`
	Username string `json:"username"`

	// Cert is the path to the PEM encoded CA certificate that signed the
	// server's certificate. If it's empty, the system roots are used.
	Cert string `json:"cert,omitempty"`

	CacheDir string `json:"cacheDir,omitempty"`

	// Project is the project that commands operate on by default. It's
	// updated whenever a project is opened.
	Project string `json:"project,omitempty"`
}

// homedirExpand will be overridden in mock tests
var homedirExpand = homedir.Expand

// ParseUser attempts to parse the User stored in the default path.
func ParseUser() (User, error) {
	path, err := GetUserConfigPath()
	if err != nil {
		return User{}, errors.WithContext(err, "expand config path")
	}

	config, err := readUser(path)
	if err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			return User{}, errors.NewFriendlyError("The revsync user config "+
				"file doesn't exist at %q. Please run `revsync config` to "+
				"create the user config file.", path)
		}
		return User{}, errors.WithContext(err, "parse")
	}

	if config.Server == "" {
		return User{}, errors.WithContext(errors.MissingFieldError{Field: "server"}, "parse")
	}

	if config.CacheDir == "" {
		config.CacheDir = DefaultCacheDir
	}

	for _, field := range []*string{&config.CacheDir, &config.Cert} {
		if *field == "" {
			continue
		}

		expanded, err := homedirExpand(*field)
		if err != nil {
			return User{}, errors.WithContext(err, "expand path")
		}

		// Evaluate relative paths relative to the config path.
		if !filepath.IsAbs(expanded) {
			expanded = filepath.Join(filepath.Dir(path), expanded)
		}
		*field = expanded
	}
	return config, nil
}

// WriteUser writes the given user config to disk.
func WriteUser(cfg User) error {
	cfg.Version = SupportedUserConfigVersion
	path, err := GetUserConfigPath()
	if err != nil {
		return errors.WithContext(err, "expand config path")
	}

	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if err := afero.WriteFile(fs, path, yamlBytes, 0600); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

// GetUserConfigPath returns the path to the user's revsync configuration.
// This path is expanded, so it can be directly passed to file operations.
func GetUserConfigPath() (string, error) {
	return homedirExpand(UserConfigPath)
}

// TransportConfig returns the settings for connecting to the configured
// server as the configured user.
func (u User) TransportConfig(password string) (transport.Config, error) {
	cfg := transport.Config{
		Server:   u.Server,
		Username: u.Username,
		Password: password,
	}

	if u.Cert != "" {
		cert, err := afero.ReadFile(fs, u.Cert)
		if err != nil {
			return transport.Config{}, errors.WithContext(err, "read CA certificate")
		}
		cfg.CACert = cert
	}
	return cfg, nil
}
