package attach

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, *[]string) {
	t.Helper()
	r := NewRegistry(t.TempDir())
	released := &[]string{}
	r.SetReleaseFunc(func(path string) error {
		*released = append(*released, path)
		return os.Remove(path)
	})
	return r, released
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pic.png")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestMintAndRevokeScope(t *testing.T) {
	r, released := newTestRegistry(t)
	src := writeTempFile(t, "bytes")

	url1, err := r.Mint("temp-1", src)
	require.NoError(t, err)
	url2, err := r.Mint("temp-1", src)
	require.NoError(t, err)
	assert.NotEqual(t, url1, url2)
	assert.Equal(t, 2, r.ScopeLen("temp-1"))

	path, ok := r.Resolve(url1)
	require.True(t, ok)
	_, err = os.Stat(path)
	require.NoError(t, err)

	r.RevokeScope("temp-1")
	assert.Equal(t, 0, r.ScopeLen("temp-1"))
	assert.Len(t, *released, 2)
	_, ok = r.Resolve(url1)
	assert.False(t, ok)
}

func TestRevokeIsIdempotent(t *testing.T) {
	r, released := newTestRegistry(t)
	src := writeTempFile(t, "x")

	url, err := r.Mint("temp-1", src)
	require.NoError(t, err)

	r.Revoke(url)
	r.Revoke(url)
	r.RevokeScope("temp-1")
	assert.Len(t, *released, 1, "handle released exactly once")
}

func TestRevokeRemovesFromEveryScope(t *testing.T) {
	r, released := newTestRegistry(t)
	src := writeTempFile(t, "x")

	url, err := r.Mint("temp-1", src)
	require.NoError(t, err)
	r.Track(PreviewScope("c1"), url)

	r.Revoke(url)
	assert.Equal(t, 0, r.ScopeLen("temp-1"))
	assert.Equal(t, 0, r.ScopeLen(PreviewScope("c1")))
	assert.Len(t, *released, 1)
}

func TestRekeyScope(t *testing.T) {
	r, _ := newTestRegistry(t)
	src := writeTempFile(t, "x")

	url, err := r.Mint(PreviewScope("new-42"), src)
	require.NoError(t, err)

	r.RekeyScope(PreviewScope("new-42"), PreviewScope("C9"))
	assert.Equal(t, 0, r.ScopeLen(PreviewScope("new-42")))
	assert.Equal(t, 1, r.ScopeLen(PreviewScope("C9")))

	// Revoking the old scope after a rekey must not touch the handle.
	r.RevokeScope(PreviewScope("new-42"))
	_, ok := r.Resolve(url)
	assert.True(t, ok)
}

func TestTrackIdempotent(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.Track("scope", "spool://abc")
	r.Track("scope", "spool://abc")
	assert.Equal(t, 1, r.ScopeLen("scope"))
}
