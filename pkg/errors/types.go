package errors

import (
	"fmt"
	"strings"
)

// ErrBusy is returned when another operation in this session already holds
// the path being operated on.
var ErrBusy = New("another operation on this path is in progress")

// MissingFieldError represents a missing required field.
type MissingFieldError struct {
	Field string
}

func (err MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", err.Field)
}

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// ValidationError is returned before any remote call when a project, folder
// or rename target contains characters other than letters, digits and
// underscores.
type ValidationError struct {
	Kind string
	Name string
}

func (err ValidationError) Error() string {
	return fmt.Sprintf("invalid %s name %q", err.Kind, err.Name)
}

// FriendlyMessage implements the friendlyMessager interface.
func (err ValidationError) FriendlyMessage() string {
	return fmt.Sprintf("Invalid %s name %q.\n"+
		"Names can contain only letters, numbers and '_' (underscores).",
		err.Kind, err.Name)
}

// TransportError is returned when the server couldn't be reached, the request
// timed out, or the server certificate couldn't be verified. No local state is
// changed, so the request is safe to retry.
type TransportError struct {
	Op  string
	Err error
}

func (err TransportError) Error() string {
	return fmt.Sprintf("%s: connection to the server failed: %s", err.Op, err.Err)
}

// AuthError is returned when the server rejected the credentials.
type AuthError struct {
	Username string
}

func (err AuthError) Error() string {
	return fmt.Sprintf("authentication failed for user %q", err.Username)
}

// FriendlyMessage implements the friendlyMessager interface.
func (err AuthError) FriendlyMessage() string {
	return fmt.Sprintf("Login failed for %q.\n"+
		"Check the username and password and try again.", err.Username)
}

// ConflictReason is the specific cause of a ConflictError.
type ConflictReason string

const (
	// AlreadyCheckedOut means another user holds the checkout lock.
	AlreadyCheckedOut ConflictReason = "AlreadyCheckedOut"

	// CheckedOutConflict means a structural change touched a locked
	// RevisionDatabase.
	CheckedOutConflict ConflictReason = "CheckedOutConflict"

	// AlreadyExists means the target name is already taken.
	AlreadyExists ConflictReason = "AlreadyExists"

	// NotCheckedOut means the caller doesn't hold the checkout lock.
	NotCheckedOut ConflictReason = "NotCheckedOut"

	// NotFound means the addressed project or entry doesn't exist.
	NotFound ConflictReason = "NotFound"
)

// ConflictError means the request disagreed with the server's state. The local
// manifest is stale and should be refreshed before retrying.
type ConflictError struct {
	Reason ConflictReason
	Path   []string
}

func (err ConflictError) Error() string {
	if len(err.Path) == 0 {
		return string(err.Reason)
	}
	return fmt.Sprintf("%s: %s", strings.Join(err.Path, "/"), err.Reason)
}

// FriendlyMessage implements the friendlyMessager interface.
func (err ConflictError) FriendlyMessage() string {
	target := strings.Join(err.Path, "/")
	switch err.Reason {
	case AlreadyCheckedOut:
		return fmt.Sprintf("%q is already checked out.", target)
	case CheckedOutConflict:
		return fmt.Sprintf("%q contains checked out files.", target)
	case AlreadyExists:
		return fmt.Sprintf("%q already exists.", target)
	case NotCheckedOut:
		return fmt.Sprintf("%q is not checked out to you.", target)
	case NotFound:
		return fmt.Sprintf("%q does not exist. Run `revsync refresh` and try again.", target)
	}
	return err.Error()
}

// ServerError is a non-success response that didn't carry a known token.
type ServerError struct {
	Op     string
	Status int
	Body   string
}

func (err ServerError) Error() string {
	if err.Body == "" {
		return fmt.Sprintf("%s: server returned status %d", err.Op, err.Status)
	}
	return fmt.Sprintf("%s: server returned status %d: %s", err.Op, err.Status, err.Body)
}

// NewNotFound returns a ConflictError for a missing path.
func NewNotFound(path []string) error {
	return ConflictError{Reason: NotFound, Path: path}
}

// IsConflict returns whether the root cause of `err` is a ConflictError with
// the given reason.
func IsConflict(err error, reason ConflictReason) bool {
	conflict, ok := RootCause(err).(ConflictError)
	return ok && conflict.Reason == reason
}

// IsNotFound returns whether the root cause of `err` means the addressed
// entry doesn't exist.
func IsNotFound(err error) bool {
	return IsConflict(err, NotFound)
}

// IsRetryable returns whether the request that produced `err` can be retried
// unchanged. Only transport failures are retryable.
func IsRetryable(err error) bool {
	_, ok := RootCause(err).(TransportError)
	return ok
}
