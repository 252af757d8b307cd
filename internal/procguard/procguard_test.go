package procguard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nderr "github.com/notedex/notedex/internal/errors"
)

func TestAcquire_ExclusiveWithinProcess(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir)
	require.NoError(t, err)
	defer first.Release()

	_, err = Acquire(dir)

	require.Error(t, err)
	assert.True(t, nderr.HasCode(err, nderr.ErrCodeLockHeld))
}

func TestAcquire_ReacquireAfterRelease(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, first.Release())

	second, err := Acquire(dir)
	require.NoError(t, err)
	assert.NoError(t, second.Release())
}

func TestRelease_Idempotent(t *testing.T) {
	lock, err := Acquire(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())
}

func TestAcquire_DifferentDirsIndependent(t *testing.T) {
	a, err := Acquire(t.TempDir())
	require.NoError(t, err)
	defer a.Release()

	b, err := Acquire(t.TempDir())
	require.NoError(t, err)
	defer b.Release()
}
