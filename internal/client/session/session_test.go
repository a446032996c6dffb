package session

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwitchToLocal_LatchesOnce(t *testing.T) {
	s := New(nil)
	require.Equal(t, Live, s.Mode())

	var flips atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.SwitchToLocal() {
				flips.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), flips.Load())
	assert.True(t, s.IsLocal())
	assert.False(t, s.SwitchToLocal())
	assert.Equal(t, "local", s.Mode().String())
}

func TestMemoryKeeper(t *testing.T) {
	k := &MemoryKeeper{}

	require.NoError(t, k.Save("tok"))
	got, err := k.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok", got)

	require.NoError(t, k.Clear())
	got, _ = k.Load()
	assert.Empty(t, got)
}

func TestFileKeeper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	k := FileKeeper{Path: path}

	got, err := k.Load()
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, k.Save("tok"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err = k.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok", got)

	require.NoError(t, k.Clear())
	require.NoError(t, k.Clear())

	got, err = k.Load()
	require.NoError(t, err)
	assert.Empty(t, got)
}
