package fswatch

import (
	"sort"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/revsync/pkg/errors"
)

func TestGetPathsToWatch(t *testing.T) {
	tests := []struct {
		name     string
		dirs     []string
		files    []string
		paths    []string
		expPaths []string
		expErr   error
	}{
		{
			name:     "Artifact",
			dirs:     []string{"/cache/demo/app.bin"},
			files:    []string{"/cache/demo/app.bin/app.bin.bndb"},
			paths:    []string{"/cache/demo/app.bin/app.bin.bndb"},
			expPaths: []string{"/cache/demo/app.bin", "/cache/demo/app.bin/app.bin.bndb"},
		},
		{
			name: "ExtractedProject",
			dirs: []string{"/cache/demo/app.bin/app.bin.rep/idx", "/cache/demo/app.bin/app.bin.rep/user"},
			files: []string{"/cache/demo/app.bin/app.bin.gpr",
				"/cache/demo/app.bin/app.bin.rep/idx/~index.dat"},
			paths: []string{"/cache/demo/app.bin/app.bin.gpr", "/cache/demo/app.bin/app.bin.rep"},
			expPaths: []string{"/cache/demo/app.bin", "/cache/demo/app.bin/app.bin.gpr",
				"/cache/demo/app.bin/app.bin.rep", "/cache/demo/app.bin/app.bin.rep/idx",
				"/cache/demo/app.bin/app.bin.rep/user"},
		},
		{
			name:   "Missing",
			paths:  []string{"/cache/demo/app.bin/app.bin.i64"},
			expErr: errors.FileNotFound{Path: "/cache/demo/app.bin/app.bin.i64"},
		},
	}

	for _, test := range tests {
		fs = afero.NewMemMapFs()
		for _, dir := range test.dirs {
			assert.NoError(t, fs.MkdirAll(dir, 0755))
		}
		for _, file := range test.files {
			assert.NoError(t, afero.WriteFile(fs, file, []byte("testfile"), 0644))
		}

		paths, err := getPathsToWatch(test.paths)
		if test.expErr != nil {
			assert.Equal(t, test.expErr, errors.RootCause(err), test.name)
			continue
		}
		assert.NoError(t, err, test.name)

		// Sort for consistency.
		sort.Strings(test.expPaths)
		sort.Strings(paths)
		assert.Equal(t, test.expPaths, paths, test.name)
	}
}

func TestSnapshotChanged(t *testing.T) {
	fs = afero.NewMemMapFs()
	roots := []string{
		"/cache/demo/app.bin/app.bin.bndb",
		"/cache/demo/app.bin/app.bin.rep",
		"/cache/demo/lib.so/lib.so.i64",
	}
	require.NoError(t, afero.WriteFile(fs, roots[0], []byte("bndb"), 0644))
	require.NoError(t, afero.WriteFile(fs, roots[1]+"/idx/~index.dat", []byte("index"), 0644))
	require.NoError(t, afero.WriteFile(fs, roots[2], []byte("ida"), 0644))

	before, err := TakeSnapshot(roots)
	require.NoError(t, err)
	assert.Len(t, before, 3)

	unchanged, err := TakeSnapshot(roots)
	require.NoError(t, err)
	assert.Empty(t, before.Changed(unchanged, roots))

	require.NoError(t, afero.WriteFile(fs, roots[1]+"/idx/~index.dat", []byte("edited"), 0644))
	require.NoError(t, fs.Remove(roots[2]))

	after, err := TakeSnapshot(roots)
	require.NoError(t, err)
	assert.Equal(t, []string{roots[1], roots[2]}, before.Changed(after, roots))
}

func TestTakeSnapshotMissingRoot(t *testing.T) {
	fs = afero.NewMemMapFs()
	snapshot, err := TakeSnapshot([]string{"/cache/demo/missing"})
	assert.NoError(t, err)
	assert.Empty(t, snapshot)
}

func TestCombineUpdates(t *testing.T) {
	t.Parallel()

	updates := make(chan fsnotify.Event, 1024)
	addEvents := func(num int) {
		for i := 0; i < num; i++ {
			updates <- fsnotify.Event{}
		}
	}

	// Seed with events.
	numUpdates := 100
	addEvents(numUpdates)
	combined := combineUpdates(updates)

	// Assert that the events are being combined.
	numCombined := countEvents(combined)
	assert.True(t, numCombined < numUpdates,
		"expected less combined events (%d) than %d", numCombined, numUpdates)

	// Add more events.
	addEvents(100)
	<-combined
}

func countEvents(c chan struct{}) (n int) {
	// Block until the first event.
	<-c
	n++

	// Count the number of events until there hasn't been any new events in 500
	// milliseconds.
	for {
		select {
		case <-c:
			n++
		case <-time.After(500 * time.Millisecond):
			return n
		}
	}
}
