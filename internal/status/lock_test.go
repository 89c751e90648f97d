package status

import (
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/require"
)

// newTestLock holds an exclusive lock on path through a separate file
// descriptor, as another checker process would
func newTestLock(t *testing.T, path string) func() {
	t.Helper()
	l := flock.New(path)
	locked, err := l.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	return func() { _ = l.Unlock() }
}
