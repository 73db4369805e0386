package version

import (
	goversion "github.com/hashicorp/go-version"

	"github.com/sidkik/revsync/pkg/errors"
)

// EmptyValue is the value we use when running a version that wasn't compiled
// by `make`. This is helpful for telling when we're running in a unit test.
const EmptyValue = "set-by-make"

// Version is the latest tag on git for releases. On non-release commits, it may
// include additional information such as the most recent commit hash.
var Version = EmptyValue

// MinServerVersion is the oldest server release that speaks the protocol
// implemented by this client.
const MinServerVersion = "1.0.0"

// CheckServer returns a friendly error if the server advertises a version
// older than MinServerVersion. Servers that don't advertise a version are
// assumed to be compatible.
func CheckServer(serverVersion string) error {
	if serverVersion == "" {
		return nil
	}

	actual, err := goversion.NewVersion(serverVersion)
	if err != nil {
		return errors.WithContext(err, "parse server version")
	}

	minimum := goversion.Must(goversion.NewVersion(MinServerVersion))
	if actual.LessThan(minimum) {
		return errors.NewFriendlyError("The server is running version %s, "+
			"but this client requires at least %s.\n"+
			"Please ask your administrator to upgrade the server.",
			actual, minimum)
	}
	return nil
}
