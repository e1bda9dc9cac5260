package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()

	_, err := db.Get([]byte("missing"))
	require.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, db.Put([]byte("game:a"), []byte("1")))
	batch := NewBatch()
	batch.Put([]byte("game:b"), []byte("2"))
	batch.Put([]byte("player:x"), []byte("3"))
	batch.Delete([]byte("game:a"))
	require.Equal(t, 3, batch.Len())
	require.NoError(t, db.Write(batch))

	_, err = db.Get([]byte("game:a"))
	require.True(t, errors.Is(err, ErrNotFound))

	value, err := db.Get([]byte("game:b"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), value)

	require.NoError(t, db.Delete([]byte("player:x")))
	_, err = db.Get([]byte("player:x"))
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestLevelDBPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db, err := NewLevelDB(dir)
	require.NoError(t, err)
	exerciseDatabase(t, db)
	db.Close()

	reopened, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer reopened.Close()

	value, err := reopened.Get([]byte("game:b"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), value)
}

func TestBoltDBPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	db, err := NewBoltDB(path)
	require.NoError(t, err)
	exerciseDatabase(t, db)
	db.Close()

	reopened, err := NewBoltDB(path)
	require.NoError(t, err)
	defer reopened.Close()

	value, err := reopened.Get([]byte("game:b"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), value)
}
