// Package pathlock serializes operations on overlapping parts of a project.
//
// An operation on a path conflicts with operations on the same path, on any
// of its ancestors, and on any of its descendants. Conflicting operations are
// refused rather than queued, so a caller never blocks on another operation's
// network round trip.
package pathlock

import (
	"strings"
	"sync"

	"github.com/sidkik/revsync/pkg/errors"
)

// Locker tracks the paths that are currently held. The zero value is ready to
// use.
type Locker struct {
	lock sync.Mutex
	held map[string]struct{}
}

// Acquire reserves `path` for the caller. It returns errors.ErrBusy if an
// overlapping path is already held. The returned function releases the path.
func (l *Locker) Acquire(path []string) (release func(), err error) {
	key := strings.Join(path, "/")

	l.lock.Lock()
	defer l.lock.Unlock()

	if l.held == nil {
		l.held = map[string]struct{}{}
	}

	for other := range l.held {
		if overlaps(key, other) {
			return nil, errors.ErrBusy
		}
	}

	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.lock.Lock()
			delete(l.held, key)
			l.lock.Unlock()
		})
	}, nil
}

// Held returns whether anything at or below `path` is currently held.
func (l *Locker) Held(path []string) bool {
	key := strings.Join(path, "/")

	l.lock.Lock()
	defer l.lock.Unlock()

	for other := range l.held {
		if overlaps(key, other) {
			return true
		}
	}
	return false
}

func overlaps(a, b string) bool {
	return a == b || isAncestor(a, b) || isAncestor(b, a)
}

func isAncestor(ancestor, path string) bool {
	return strings.HasPrefix(path, ancestor+"/")
}
