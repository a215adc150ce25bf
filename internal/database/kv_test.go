package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-image-organizer/internal/models"
)

// runKVContract exercises the behaviour every backend must share.
func runKVContract(t *testing.T, db KV) {
	t.Run("Put and Get", func(t *testing.T) {
		require.NoError(t, db.Put([]byte("record/p1/a"), []byte(`{"id":"a"}`)))
		got, err := db.Get([]byte("record/p1/a"))
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"a"}`, string(got))
	})

	t.Run("Put overwrites", func(t *testing.T) {
		require.NoError(t, db.Put([]byte("record/p1/a"), []byte(`{"id":"a","v":2}`)))
		got, err := db.Get([]byte("record/p1/a"))
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"a","v":2}`, string(got))
	})

	t.Run("Has", func(t *testing.T) {
		assert.True(t, db.Has([]byte("record/p1/a")))
		assert.False(t, db.Has([]byte("record/p1/missing")))
	})

	t.Run("Get missing", func(t *testing.T) {
		_, err := db.Get([]byte("record/p1/missing"))
		assert.True(t, errors.Is(err, ErrNotFound), "want ErrNotFound, got %v", err)
	})

	t.Run("Scan by prefix", func(t *testing.T) {
		require.NoError(t, db.Put([]byte("record/p1/b"), []byte(`{}`)))
		require.NoError(t, db.Put([]byte("record/p10/c"), []byte(`{}`)))
		require.NoError(t, db.Put([]byte("project/p1"), []byte(`{}`)))

		var keys []string
		err := db.Scan([]byte("record/p1/"), func(key, value []byte) error {
			keys = append(keys, string(key))
			return nil
		})
		require.NoError(t, err)
		sort.Strings(keys)
		assert.Equal(t, []string{"record/p1/a", "record/p1/b"}, keys)
	})

	t.Run("Scan non-ASCII prefix", func(t *testing.T) {
		require.NoError(t, db.Put([]byte("record/fotos-año/x"), []byte(`{}`)))
		require.NoError(t, db.Put([]byte("record/fotos-añoz/y"), []byte(`{}`)))

		var keys []string
		err := db.Scan([]byte("record/fotos-año/"), func(key, value []byte) error {
			keys = append(keys, string(key))
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"record/fotos-año/x"}, keys)

		require.NoError(t, db.Delete([]byte("record/fotos-año/x")))
		require.NoError(t, db.Delete([]byte("record/fotos-añoz/y")))
	})

	t.Run("Scan callback may write", func(t *testing.T) {
		err := db.Scan([]byte("record/p1/"), func(key, value []byte) error {
			return db.Delete(key)
		})
		require.NoError(t, err)
		assert.False(t, db.Has([]byte("record/p1/a")))
		assert.True(t, db.Has([]byte("record/p10/c")))
	})

	t.Run("Scan stops on error", func(t *testing.T) {
		stop := errors.New("stop")
		calls := 0
		err := db.Scan([]byte(""), func(key, value []byte) error {
			calls++
			return stop
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 1, calls)
	})

	t.Run("Delete missing", func(t *testing.T) {
		assert.ErrorIs(t, db.Delete([]byte("record/p1/missing")), ErrNotFound)
	})
}

func TestMemoryKV(t *testing.T) {
	db := NewMemory()
	defer db.Close()
	runKVContract(t, db)
}

func TestMemoryKVClosed(t *testing.T) {
	db := NewMemory()
	require.NoError(t, db.Close())
	assert.ErrorIs(t, db.Put([]byte("k"), []byte("v")), ErrClosed)
}

// TestSQLiteIntegrationBasicOperations tests core database operations
func TestSQLiteIntegrationBasicOperations(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	dbPath := filepath.Join(t.TempDir(), "nested", "test_integration.db")
	db, err := OpenSQLite(dbPath)
	require.NoError(t, err, "Failed to open database")
	defer db.Close()

	runKVContract(t, db)
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	db, err := OpenSQLite(dbPath)
	require.NoError(t, err)
	require.NoError(t, db.Put([]byte("job/1"), []byte(`{"id":"1"}`)))
	require.NoError(t, db.Close())

	db, err = OpenSQLite(dbPath)
	require.NoError(t, err)
	defer db.Close()
	got, err := db.Get([]byte("job/1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1"}`, string(got))
}

// TestSQLitePerformance tests basic performance characteristics
func TestSQLitePerformance(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping performance test in short mode")
	}

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test_performance.db"))
	require.NoError(t, err, "Failed to open database")
	defer db.Close()

	numEntries := 200
	start := time.Now()
	for i := 0; i < numEntries; i++ {
		key := fmt.Sprintf("record/perf/%05d", i)
		require.NoError(t, db.Put([]byte(key), []byte(`{"status":"scanned"}`)))
	}
	t.Logf("Inserted %d entries in %v", numEntries, time.Since(start))

	count := 0
	err = db.Scan([]byte("record/perf/"), func(key, value []byte) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, numEntries, count)
}

func TestBitcaskIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db, err := OpenBitcask(filepath.Join(t.TempDir(), "bitcask"))
	require.NoError(t, err)
	defer db.Close()

	runKVContract(t, db)
}

func TestRedisIntegration(t *testing.T) {
	addr := os.Getenv("ORGANIZER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ORGANIZER_TEST_REDIS_ADDR not set")
	}

	prefix := fmt.Sprintf("organizer-test-%d:", time.Now().UnixNano())
	db, err := OpenRedis(models.RedisConfig{Addr: addr, KeyPrefix: prefix})
	require.NoError(t, err)
	defer func() {
		db.Scan(nil, func(key, value []byte) error { return db.Delete(key) })
		db.Close()
	}()

	runKVContract(t, db)
}

func TestOpenSelectsBackend(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		db, err := Open(models.Config{DatabaseBackend: models.BackendMemory})
		require.NoError(t, err)
		defer db.Close()
		_, ok := db.(*Memory)
		assert.True(t, ok)
	})

	t.Run("sqlite under data dir", func(t *testing.T) {
		if testing.Short() {
			t.Skip("Skipping integration test in short mode")
		}
		dir := t.TempDir()
		db, err := Open(models.Config{DataDir: dir})
		require.NoError(t, err)
		defer db.Close()
		_, err = os.Stat(filepath.Join(dir, "organizer.db"))
		assert.NoError(t, err)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := Open(models.Config{DatabaseBackend: "mongo"})
		assert.Error(t, err)
	})
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `a\*b\?c\[d\]`, escapeGlob("a*b?c[d]"))
	assert.Equal(t, "record/p1/", escapeGlob("record/p1/"))
}
