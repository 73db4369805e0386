// Package session holds the identity that an operation is performed as.
package session

// Session is passed to every operation. It's never modified in place.
// Switching projects creates a new Session.
type Session struct {
	// User is the username that the server knows the caller as.
	User string

	// Project is the project that operations apply to.
	Project string
}

// New returns a Session for `user` operating on `project`.
func New(user, project string) Session {
	return Session{User: user, Project: project}
}

// WithProject returns a copy of the session that operates on `project`.
func (s Session) WithProject(project string) Session {
	s.Project = project
	return s
}
