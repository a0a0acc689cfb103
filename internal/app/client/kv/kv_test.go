package kv

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := New(fs, "/state")
	require.NoError(t, err)

	_, ok, err := s.Get("sync_device_id")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set("sync_device_id", []byte(`"abc"`)))

	data, ok, err := s.Get("sync_device_id")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `"abc"`, string(data))

	exists, err := afero.Exists(fs, "/state/sync_device_id.json.tmp")
	require.NoError(t, err)
	assert.False(t, exists, "временный файл не остается после успешной записи")

	require.NoError(t, s.Delete("sync_device_id"))
	require.NoError(t, s.Delete("sync_device_id"))

	_, ok, err = s.Get("sync_device_id")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreRejectsBadKeys(t *testing.T) {
	s, err := New(afero.NewMemMapFs(), "/state")
	require.NoError(t, err)

	for _, key := range []string{"", "../etc", "a/b", ".hidden"} {
		err := s.Set(key, []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}

func TestStoreReadOnlyFs(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, base.MkdirAll("/state", 0700))

	s, err := New(afero.NewReadOnlyFs(base), "/state")
	require.NoError(t, err)

	assert.Error(t, s.Set("sync_cursor_state_v1", []byte("{}")))
}
