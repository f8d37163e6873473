package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, secret string) *BoltStore {
	t.Helper()
	s, err := OpenBolt(filepath.Join(t.TempDir(), "state.db"), []byte(secret))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBoltStoreRoundTrip(t *testing.T) {
	s := openTestStore(t, "test-secret")

	got, err := s.Get(KeyIdentity)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Set(KeyIdentity, []byte(`{"name":"alice"}`)))
	got, err = s.Get(KeyIdentity)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"name":"alice"}`), got)

	require.NoError(t, s.Remove(KeyIdentity))
	got, err = s.Get(KeyIdentity)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBoltStoreEncryptsAtRest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := OpenBolt(path, []byte("secret-a"))
	require.NoError(t, err)
	require.NoError(t, s.Set(KeyRelayState, []byte("plaintext-value")))
	require.NoError(t, s.Close())

	// A store opened with a different secret cannot read the entry; the
	// corrupt entry is cleared rather than surfaced.
	s2, err := OpenBolt(path, []byte("secret-b"))
	require.NoError(t, err)

	got, err := s2.Get(KeyRelayState)
	require.NoError(t, err)
	assert.Nil(t, got)

	// And it stays gone for the original secret too.
	require.NoError(t, s2.Close())
	s3, err := OpenBolt(path, []byte("secret-a"))
	require.NoError(t, err)
	defer s3.Close()
	got, err = s3.Get(KeyRelayState)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemory()
	require.NoError(t, s.Set("k", []byte("v")))

	got, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	// The returned slice is a copy.
	got[0] = 'x'
	again, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), again)

	require.NoError(t, s.Remove("k"))
	got, err = s.Get("k")
	require.NoError(t, err)
	assert.Nil(t, got)
}
