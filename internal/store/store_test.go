package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]KV {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return map[string]KV{
		"sqlite": db,
		"memory": NewMemory(),
	}
}

func TestKV(t *testing.T) {
	for name, kv := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := kv.Get("userId")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, kv.Set("userId", "u1"))
			require.NoError(t, kv.Set("userId", "u2"))
			require.NoError(t, kv.Set("tenantCode", "acme"))

			v, ok, err := kv.Get("userId")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "u2", v)

			require.NoError(t, kv.Delete("userId", "missing"))
			_, ok, err = kv.Get("userId")
			require.NoError(t, err)
			assert.False(t, ok)

			v, ok, err = kv.Get("tenantCode")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "acme", v)
		})
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Set("chatSessionId", "s1"))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	v, ok, err := db.Get("chatSessionId")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "s1", v)
}

func TestSQLiteStoresEmptyValue(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Set("accessToken", ""))
	v, ok, err := db.Get("accessToken")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "", v)
}
